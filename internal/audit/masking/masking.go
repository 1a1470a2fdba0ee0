// Package masking redacts gateway secrets and customer contact details
// before they are written to the audit trail.
package masking

import "strings"

const maskToken = "****"

// Rule decides how a metadata value is redacted.
type Rule int

const (
	RuleNone Rule = iota
	// RuleSecret keeps the gateway prefix and the last four characters.
	RuleSecret
	// RuleEmail keeps the first character of the mailbox and the domain.
	RuleEmail
	// RuleDrop removes the value entirely.
	RuleDrop
)

var defaultRules = map[string]Rule{
	"gateway_reference":      RuleSecret,
	"gateway_transaction_id": RuleSecret,
	"trx_id":                 RuleSecret,
	"client_secret":          RuleSecret,
	"gateway_client_secret":  RuleDrop,
	"customer_email":         RuleEmail,
	"email":                  RuleEmail,
	"customer_phone":         RuleSecret,
}

// RuleFor reports the redaction applied to key.
func RuleFor(key string) Rule {
	return defaultRules[strings.ToLower(strings.TrimSpace(key))]
}

// Metadata returns a copy of input with sensitive keys redacted, nested maps
// included. Blank keys are dropped.
func Metadata(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		rule := RuleFor(key)
		if rule == RuleDrop {
			continue
		}
		out[key] = apply(rule, value)
	}
	return out
}

func apply(rule Rule, value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Metadata(v)
	case string:
		switch rule {
		case RuleSecret:
			return MaskSecret(v)
		case RuleEmail:
			return MaskEmail(v)
		}
	}
	return value
}

// MaskSecret hides a gateway identifier such as "pi_3Nx...": the prefix up
// to the last underscore survives, plus the last four characters.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	prefix, rest := value, ""
	if i := strings.LastIndex(value, "_"); i >= 0 && i < len(value)-1 {
		prefix, rest = value[:i+1], value[i+1:]
	} else {
		prefix, rest = "", value
	}
	if len(rest) <= 4 {
		return prefix + maskToken
	}
	return prefix + maskToken + rest[len(rest)-4:]
}

// MaskEmail turns "rahim@example.com" into "r****@example.com".
func MaskEmail(value string) string {
	value = strings.TrimSpace(value)
	at := strings.LastIndex(value, "@")
	if at <= 0 {
		return MaskSecret(value)
	}
	return value[:1] + maskToken + value[at:]
}
