// Package redact masks personal data in assistant replies.
package redact

import (
	"fmt"
	"regexp"
)

// Placeholder replaces every match.
const Placeholder = "[REDACTED]"

// Default patterns.
const (
	EmailPattern      = `\b[A-Za-z0-9.*%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`
	PhonePattern      = `\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`
	CreditCardPattern = `\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`
	SSNPattern        = `\b\d{3}[- ]?\d{2}[- ]?\d{4}\b`
)

// Config holds one pattern per category. Empty patterns are skipped.
type Config struct {
	Email       string
	Phone       string
	CreditCard  string
	SSN         string
	UserDefined string
}

// DefaultConfig returns the built-in patterns with no user-defined one.
func DefaultConfig() Config {
	return Config{
		Email:      EmailPattern,
		Phone:      PhonePattern,
		CreditCard: CreditCardPattern,
		SSN:        SSNPattern,
	}
}

// Redactor applies compiled patterns in a fixed order.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles cfg. Card numbers run before phone and SSN patterns so
// their digit groups are not partially masked.
func New(cfg Config) (*Redactor, error) {
	ordered := []struct {
		name, expr string
	}{
		{"credit card", cfg.CreditCard},
		{"email", cfg.Email},
		{"ssn", cfg.SSN},
		{"phone", cfg.Phone},
		{"user defined", cfg.UserDefined},
	}

	r := &Redactor{}
	for _, p := range ordered {
		if p.expr == "" {
			continue
		}
		re, err := regexp.Compile(p.expr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern: %w", p.name, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Redact returns s with every match replaced by Placeholder. A nil
// Redactor returns s unchanged.
func (r *Redactor) Redact(s string) string {
	if r == nil {
		return s
	}
	for _, re := range r.patterns {
		s = re.ReplaceAllLiteralString(s, Placeholder)
	}
	return s
}
