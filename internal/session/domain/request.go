package domain

import "strings"

// Request is the per-request input to session handling: inbound cookies and diagnostics.
type Request struct {
	Cookies    map[string]string
	ClientIP   string
	RequestURI string
	ScriptPath string
}

// Cookie returns a non-blank cookie value.
func (r Request) Cookie(name string) (string, bool) {
	v, ok := r.Cookies[name]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
