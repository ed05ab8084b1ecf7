package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issueOpened = `{
  "action": "opened",
  "issue": {
    "number": 12,
    "title": "Export hangs",
    "body": "Exporting 10k rows never finishes.",
    "html_url": "https://github.com/acme/app/issues/12",
    "user": {"login": "octocat"},
    "labels": [{"name": "bug"}, {"name": "exports"}]
  },
  "repository": {"full_name": "acme/app", "name": "app", "owner": {"login": "acme"}}
}`

const commentCreated = `{
  "action": "created",
  "issue": {"number": 12, "title": "Export hangs"},
  "comment": {
    "id": 987,
    "body": "  Same here with XLSX.  ",
    "html_url": "https://github.com/acme/app/issues/12#issuecomment-987",
    "user": {"login": "hubot"}
  },
  "repository": {"full_name": "acme/app", "name": "app", "owner": {"login": "acme"}}
}`

func TestParseGitHubEvent_Issue(t *testing.T) {
	in, err := ParseGitHubEvent("issues", []byte(issueOpened))
	require.NoError(t, err)
	assert.Equal(t, "Export hangs\n\nExporting 10k rows never finishes.", in.Verbatim)
	assert.Equal(t, SourceGitHub, in.SourceType)
	assert.Equal(t, "acme/app#12", in.SourceRef)
	assert.Equal(t, []string{"bug", "exports"}, in.Tags)
	assert.Equal(t, "octocat", in.Metadata["author"])
	assert.Equal(t, "https://github.com/acme/app/issues/12", in.Metadata["url"])
}

func TestParseGitHubEvent_Comment(t *testing.T) {
	in, err := ParseGitHubEvent("issue_comment", []byte(commentCreated))
	require.NoError(t, err)
	assert.Equal(t, "Same here with XLSX.", in.Verbatim)
	assert.Equal(t, "acme/app#12/comment/987", in.SourceRef)
	assert.Equal(t, "hubot", in.Metadata["author"])
	assert.Empty(t, in.Tags)
}

func TestParseGitHubEvent_Ignored(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   string
	}{
		{"closed issue", "issues", `{"action":"closed","issue":{"number":1},"repository":{"full_name":"a/b"}}`},
		{"edited comment", "issue_comment", `{"action":"edited","comment":{"id":1,"body":"x"},"repository":{"full_name":"a/b"}}`},
		{"ping", "ping", `{"zen":"Keep it logically awesome."}`},
		{"push", "push", `{"ref":"refs/heads/main"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGitHubEvent(tt.eventType, []byte(tt.payload))
			assert.ErrorIs(t, err, ErrIgnoredEvent)
		})
	}
}

func TestParseGitHubEvent_Invalid(t *testing.T) {
	_, err := ParseGitHubEvent("issues", []byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseGitHubEvent("issues", []byte(`{"action":"opened"}`))
	assert.ErrorIs(t, err, ErrInvalidInput)
}
