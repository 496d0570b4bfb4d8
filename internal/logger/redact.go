package logger

import "strings"

const redacted = "[REDACTED]"

var piiFields = map[string]struct{}{
	"email":         {},
	"password":      {},
	"password_hash": {},
	"name":          {},
	"bio":           {},
	"ip_address":    {},
	"client_host":   {},
}

// Redact returns a copy of fields with PII values replaced. Nested maps are
// walked; the input is never modified.
func Redact(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if _, ok := piiFields[strings.ToLower(k)]; ok {
			out[k] = redacted
			continue
		}
		switch nested := v.(type) {
		case map[string]interface{}:
			out[k] = Redact(nested)
		case map[string]string:
			m := make(map[string]interface{}, len(nested))
			for nk, nv := range nested {
				m[nk] = nv
			}
			out[k] = Redact(m)
		default:
			out[k] = v
		}
	}
	return out
}
