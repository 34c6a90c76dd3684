package urlguard

import (
	"net/http"
	"strings"
)

// deniedHeaders are caller-supplied headers never forwarded to the target.
// The list covers connection management, credential leakage, spoofable
// provenance, and the payment headers themselves (which only the engine may
// set). Keys are lowercase.
var deniedHeaders = map[string]bool{
	"host":               true,
	"authorization":      true,
	"cookie":             true,
	"set-cookie":         true,
	"transfer-encoding":  true,
	"content-length":     true,
	"connection":         true,
	"x-payment":          true,
	"x-payment-required": true,
	"x-payment-response": true,
	"x-payment-identity": true,
	"x-forwarded-for":    true,
	"x-forwarded-host":   true,
	"x-real-ip":          true,
	"origin":             true,
	"referer":            true,
}

// SanitizeHeaders filters caller-supplied headers against the deny-list and
// strips CR/LF from every surviving value to prevent header injection. The
// same filter runs on the initial and the paid retry request.
func SanitizeHeaders(raw map[string]string) http.Header {
	out := http.Header{}
	for name, value := range raw {
		if deniedHeaders[strings.ToLower(strings.TrimSpace(name))] {
			continue
		}
		out.Set(name, stripCRLF(value))
	}
	return out
}

func stripCRLF(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	return strings.ReplaceAll(v, "\n", "")
}
