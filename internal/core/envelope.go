package core

import (
	"net/mail"
	"strings"
)

// ParseSenderHeader splits a raw From header into display name,
// address and lowercased domain. It never fails: input net/mail
// rejects falls back to a manual split, and anything without a usable
// domain yields domain "".
func ParseSenderHeader(header string) (display, address, domain string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", ""
	}

	if addr, err := mail.ParseAddress(header); err == nil {
		display = addr.Name
		address = addr.Address
	} else if open := strings.LastIndex(header, "<"); open >= 0 {
		if end := strings.Index(header[open:], ">"); end > 0 {
			display = strings.Trim(strings.TrimSpace(header[:open]), `"`)
			address = header[open+1 : open+end]
		}
	} else {
		address = header
	}

	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		domain = strings.ToLower(address[at+1:])
	}
	return display, address, domain
}

// FillSender completes the derived sender fields from the raw header.
// Input adapters call it when the producer supplied only the From
// line; fields already set are kept.
func (e *EmailView) FillSender() {
	if e.SenderHeader == "" {
		return
	}
	_, address, domain := ParseSenderHeader(e.SenderHeader)
	if e.SenderAddress == "" {
		e.SenderAddress = address
	}
	if e.SenderDomain == "" {
		e.SenderDomain = domain
	}
}
