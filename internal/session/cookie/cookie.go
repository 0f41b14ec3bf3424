// Package cookie describes cookie changes as values so session code stays transport independent.
package cookie

import (
	"net/http"
	"time"

	"github.com/smallbiznis/identity/internal/config"
)

// Instruction is one Set-Cookie the transport must emit.
type Instruction struct {
	Name     string
	Value    string
	MaxAge   int
	Expires  time.Time
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

// Clears reports whether the instruction deletes the cookie.
func (i Instruction) Clears() bool {
	return i.MaxAge < 0
}

// Jar receives cookie instructions.
type Jar interface {
	Set(Instruction)
}

// Policy holds the attributes shared by every session cookie.
type Policy struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func NewPolicy(cfg config.Config) Policy {
	return Policy{
		Path:     "/",
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Set builds an instruction storing value until expiresAt. A zero expiresAt makes a browser-session cookie.
func (p Policy) Set(name, value string, now, expiresAt time.Time) Instruction {
	inst := p.base(name)
	inst.Value = value
	if !expiresAt.IsZero() {
		maxAge := int(expiresAt.Sub(now).Seconds())
		if maxAge < 1 {
			maxAge = 1
		}
		inst.MaxAge = maxAge
		inst.Expires = expiresAt
	}
	return inst
}

// Clear builds an instruction expiring the cookie in the past.
func (p Policy) Clear(name string) Instruction {
	inst := p.base(name)
	inst.MaxAge = -1
	inst.Expires = time.Unix(0, 0).UTC()
	return inst
}

func (p Policy) base(name string) Instruction {
	path := p.Path
	if path == "" {
		path = "/"
	}
	return Instruction{
		Name:     name,
		Path:     path,
		Domain:   p.Domain,
		Secure:   p.Secure,
		HTTPOnly: true,
		SameSite: p.SameSite,
	}
}

// Recorder is a Jar that keeps instructions in order. The last instruction per name wins.
type Recorder struct {
	items []Instruction
}

func (r *Recorder) Set(inst Instruction) {
	r.items = append(r.items, inst)
}

// Instructions returns every recorded instruction.
func (r *Recorder) Instructions() []Instruction {
	return append([]Instruction(nil), r.items...)
}

// Last returns the most recent instruction for name.
func (r *Recorder) Last(name string) (Instruction, bool) {
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].Name == name {
			return r.items[i], true
		}
	}
	return Instruction{}, false
}

// Effective collapses the recording to the final instruction per cookie, first-set order.
func (r *Recorder) Effective() []Instruction {
	seen := make(map[string]int, len(r.items))
	out := make([]Instruction, 0, len(r.items))
	for _, inst := range r.items {
		if idx, ok := seen[inst.Name]; ok {
			out[idx] = inst
			continue
		}
		seen[inst.Name] = len(out)
		out = append(out, inst)
	}
	return out
}
