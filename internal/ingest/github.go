package ingest

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
)

// SourceGitHub is the source type of signals from GitHub webhooks.
const SourceGitHub = "github"

// ParseGitHubEvent maps a GitHub webhook to a signal. Opened, edited and
// reopened issues and newly created issue comments are accepted; every
// other event returns ErrIgnoredEvent. The workspace is left to the
// caller.
func ParseGitHubEvent(eventType string, payload []byte) (Input, error) {
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	switch e := event.(type) {
	case *github.IssuesEvent:
		switch e.GetAction() {
		case "opened", "edited", "reopened":
		default:
			return Input{}, fmt.Errorf("%w: issues action %q", ErrIgnoredEvent, e.GetAction())
		}
		issue := e.GetIssue()
		repo := e.GetRepo().GetFullName()
		if issue == nil || repo == "" {
			return Input{}, fmt.Errorf("%w: issue event without issue or repository", ErrInvalidInput)
		}
		return Input{
			Verbatim:   issueText(issue.GetTitle(), issue.GetBody()),
			SourceType: SourceGitHub,
			SourceRef:  fmt.Sprintf("%s#%d", repo, issue.GetNumber()),
			Tags:       labelNames(issue.Labels),
			Metadata: map[string]any{
				"event":      "issues",
				"action":     e.GetAction(),
				"repository": repo,
				"number":     issue.GetNumber(),
				"url":        issue.GetHTMLURL(),
				"author":     issue.GetUser().GetLogin(),
			},
		}, nil

	case *github.IssueCommentEvent:
		if e.GetAction() != "created" {
			return Input{}, fmt.Errorf("%w: issue_comment action %q", ErrIgnoredEvent, e.GetAction())
		}
		comment := e.GetComment()
		repo := e.GetRepo().GetFullName()
		if comment == nil || repo == "" {
			return Input{}, fmt.Errorf("%w: comment event without comment or repository", ErrInvalidInput)
		}
		number := e.GetIssue().GetNumber()
		return Input{
			Verbatim:   strings.TrimSpace(comment.GetBody()),
			SourceType: SourceGitHub,
			SourceRef:  fmt.Sprintf("%s#%d/comment/%d", repo, number, comment.GetID()),
			Metadata: map[string]any{
				"event":      "issue_comment",
				"action":     e.GetAction(),
				"repository": repo,
				"number":     number,
				"url":        comment.GetHTMLURL(),
				"author":     comment.GetUser().GetLogin(),
			},
		}, nil

	default:
		return Input{}, fmt.Errorf("%w: %s", ErrIgnoredEvent, eventType)
	}
}

func issueText(title, body string) string {
	title, body = strings.TrimSpace(title), strings.TrimSpace(body)
	if body == "" {
		return title
	}
	return title + "\n\n" + body
}

func labelNames(labels []*github.Label) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if name := l.GetName(); name != "" {
			out = append(out, name)
		}
	}
	return out
}
