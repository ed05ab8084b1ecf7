package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"slug", "acme", false},
		{"dashes", "ws-1", false},
		{"uuid", "0b8e3c5e-6f1a-4c52-9a0e-3d1f2b7c9e10", false},
		{"underscore", "team_a", false},
		{"mixed case", "Acme", false},
		{"max length", strings.Repeat("a", MaxIdentifierLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxIdentifierLength+1), true},
		{"traversal", "../etc", true},
		{"slash", "a/b", true},
		{"dot", "a.b", true},
		{"leading dash", "-acme", true},
		{"space", "ac me", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID("workspace id", tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIdentifier)
				assert.Contains(t, err.Error(), "workspace id")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateSource(t *testing.T) {
	tests := []struct {
		source  string
		wantErr bool
	}{
		{"zendesk", false},
		{"app-store", false},
		{"nps_survey", false},
		{"Zendesk", true},
		{"", true},
		{"-x", true},
		{strings.Repeat("a", 33), true},
		{"a b", true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			err := ValidateSource(tt.source)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSource)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSourceName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Zendesk", "zendesk"},
		{"  App Store Reviews ", "app-store-reviews"},
		{"intercom.io", "intercom-io"},
		{"!!!", "api"},
		{"", "api"},
		{strings.Repeat("ab ", 20), "ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SourceName(tt.in, "api")
			assert.Equal(t, tt.want, got)
			assert.NoError(t, ValidateSource(got))
		})
	}
}
