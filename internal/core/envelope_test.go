package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSenderHeader_DisplayNameAndAddress(t *testing.T) {
	display, address, domain := ParseSenderHeader(`"PayPal Support" <support@paypa1-secure.zip>`)

	require.Equal(t, "PayPal Support", display)
	require.Equal(t, "support@paypa1-secure.zip", address)
	require.Equal(t, "paypa1-secure.zip", domain)
}

func TestParseSenderHeader_BareAddressLowercasesDomain(t *testing.T) {
	_, address, domain := ParseSenderHeader("deals@Shop.Example")

	require.Equal(t, "deals@Shop.Example", address)
	require.Equal(t, "shop.example", domain)
}

func TestParseSenderHeader_MalformedFallsBackToAngleAddr(t *testing.T) {
	// The unquoted comma makes net/mail reject the header; the manual
	// split still recovers the angle-addr.
	display, address, domain := ParseSenderHeader("Deals, Inc <promo@deals.example>")

	require.Equal(t, "Deals, Inc", display)
	require.Equal(t, "promo@deals.example", address)
	require.Equal(t, "deals.example", domain)
}

func TestParseSenderHeader_NoUsableDomain(t *testing.T) {
	_, address, domain := ParseSenderHeader("postmaster")

	require.Equal(t, "postmaster", address)
	require.Empty(t, domain)
}

func TestParseSenderHeader_Blank(t *testing.T) {
	display, address, domain := ParseSenderHeader("   ")

	require.Empty(t, display)
	require.Empty(t, address)
	require.Empty(t, domain)
}

func TestFillSender_DerivesMissingFields(t *testing.T) {
	email := &EmailView{SenderHeader: "Shop <deals@shop.example>"}

	email.FillSender()

	require.Equal(t, "deals@shop.example", email.SenderAddress)
	require.Equal(t, "shop.example", email.SenderDomain)
}

func TestFillSender_KeepsExistingFields(t *testing.T) {
	email := &EmailView{
		SenderHeader:  "Shop <deals@shop.example>",
		SenderAddress: "set@other.example",
		SenderDomain:  "other.example",
	}

	email.FillSender()

	require.Equal(t, "set@other.example", email.SenderAddress)
	require.Equal(t, "other.example", email.SenderDomain)
}
