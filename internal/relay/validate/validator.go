// Package validate checks the shape of inbound chat frames before any policy runs.
package validate

import (
	"strings"
	"unicode/utf8"

	apperrors "github.com/ItsCrafted/blooket-hacks/internal/errors"
)

// Default field limits, in characters.
const (
	DefaultMaxName    = 50
	DefaultMaxContent = 5000
)

// ReservedMarker is a control sequence clients use for formatting; it may not be
// relayed in either field.
const ReservedMarker = "[+"

// Limits bounds the size of the two user-supplied fields.
type Limits struct {
	MaxName    int
	MaxContent int
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{MaxName: DefaultMaxName, MaxContent: DefaultMaxContent}
}

// Validator rejects names and content that are too long or carry forbidden sequences.
type Validator struct {
	limits Limits
}

// New creates a validator. Non-positive limits fall back to the defaults.
func New(limits Limits) *Validator {
	if limits.MaxName <= 0 {
		limits.MaxName = DefaultMaxName
	}
	if limits.MaxContent <= 0 {
		limits.MaxContent = DefaultMaxContent
	}
	return &Validator{limits: limits}
}

// Validate returns nil when both fields are acceptable. The error names the field and
// carries CodeFieldTooLong or CodeFieldForbidden.
func (v *Validator) Validate(name, content string) error {
	if err := check("name", name, v.limits.MaxName); err != nil {
		return err
	}
	return check("content", content, v.limits.MaxContent)
}

func check(field, value string, max int) error {
	if n := utf8.RuneCountInString(value); n > max {
		return apperrors.Newf(apperrors.CodeFieldTooLong, "%s has %d characters, limit %d", field, n, max).
			WithMetadata("field", field)
	}
	if strings.ContainsAny(value, "\r\n") {
		return apperrors.Newf(apperrors.CodeFieldForbidden, "%s contains a line break", field).
			WithMetadata("field", field)
	}
	if strings.Contains(value, ReservedMarker) {
		return apperrors.Newf(apperrors.CodeFieldForbidden, "%s contains %q", field, ReservedMarker).
			WithMetadata("field", field)
	}
	return nil
}
