// Package sanitize validates identifiers that arrive from clients and end
// up in storage keys, URLs and log fields.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxIdentifierLength bounds workspace, initiative and signal identifiers.
const MaxIdentifierLength = 64

// Validation errors.
var (
	// ErrInvalidIdentifier indicates an identifier has the wrong shape.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidSource indicates a webhook source name has the wrong shape.
	ErrInvalidSource = errors.New("invalid source name")
)

// identifierPattern: alphanumeric start, then alphanumerics, '-' or '_'.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// sourcePattern is stricter because the source name becomes a metrics
// label and a stored source type.
var sourcePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ValidateID checks an identifier. kind names the field in the error.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidIdentifier, kind)
	}
	if strings.ContainsAny(id, "/\\.") {
		return fmt.Errorf("%w: %s contains path characters", ErrInvalidIdentifier, kind)
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("%w: %s must be 1-%d letters, digits, '-' or '_'", ErrInvalidIdentifier, kind, MaxIdentifierLength)
	}
	return nil
}

// ValidateWorkspaceID checks a workspace identifier.
func ValidateWorkspaceID(id string) error {
	return ValidateID("workspace id", id)
}

// ValidateSource checks a webhook source name such as "zendesk".
func ValidateSource(name string) error {
	if !sourcePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must be 1-32 lowercase letters, digits, '-' or '_'", ErrInvalidSource, name)
	}
	return nil
}

// SourceName normalizes a free-form source label into a valid source name:
// lowercased, invalid runs replaced by '-', trimmed and truncated. It
// returns fallback when nothing usable remains.
func SourceName(s, fallback string) string {
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.Trim(b.String(), "-_")
	if len(out) > 32 {
		out = strings.Trim(out[:32], "-_")
	}
	if ValidateSource(out) != nil {
		return fallback
	}
	return out
}
