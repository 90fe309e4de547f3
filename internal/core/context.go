package core

import (
	"strings"
)

// BuildContext flattens one email and its engine verdicts into the
// key/value view policy conditions evaluate against. Classification,
// risk and extracted fields are merged into the email view at the top
// level; the same values stay reachable under grouped keys so dotted
// paths like "risk.score" work too. Header names are lowercased and
// multi-value headers joined.
func BuildContext(email *EmailView, classification ClassificationResult, risk RiskAssessment, extracted ExtractedFields) map[string]any {
	headers := make(map[string]any, len(email.Headers))
	for name, values := range email.Headers {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	emailGroup := map[string]any{
		"id":            email.ID,
		"user_id":       email.UserID,
		"subject":       email.Subject,
		"body":          email.Body,
		"sender":        email.SenderAddress,
		"sender_domain": email.SenderDomain,
		"urls":          email.URLs,
		"headers":       headers,
	}
	classGroup := map[string]any{
		"category":            classification.Category,
		"is_real_opportunity": classification.IsRealOpportunity,
		"confidence":          classification.Confidence,
		"source":              string(classification.Source),
		"model_version":       classification.ModelVersion,
	}
	riskGroup := map[string]any{
		"score":   int64(risk.Score),
		"factors": risk.Factors,
	}
	extractedGroup := map[string]any{}

	ctx := map[string]any{
		"email_id":      email.ID,
		"user_id":       email.UserID,
		"subject":       email.Subject,
		"body":          email.Body,
		"sender":        email.SenderAddress,
		"sender_domain": email.SenderDomain,
		"urls":          email.URLs,
		"headers":       headers,

		"category":            classification.Category,
		"is_real_opportunity": classification.IsRealOpportunity,
		"confidence":          classification.Confidence,

		"risk_score":   int64(risk.Score),
		"risk_factors": risk.Factors,

		"email":          emailGroup,
		"classification": classGroup,
		"risk":           riskGroup,
		"extracted":      extractedGroup,
	}

	if extracted.AmountCents != nil {
		ctx["amount_cents"] = *extracted.AmountCents
		extractedGroup["amount_cents"] = *extracted.AmountCents
	}
	if extracted.ExpiresAt != nil {
		ctx["expires_at"] = *extracted.ExpiresAt
		extractedGroup["expires_at"] = *extracted.ExpiresAt
	}
	if extracted.EventStartAt != nil {
		ctx["event_start_at"] = *extracted.EventStartAt
		extractedGroup["event_start_at"] = *extracted.EventStartAt
	}

	return ctx
}
