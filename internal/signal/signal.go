// Package signal defines the pipeline's domain types.
package signal

import (
	"strings"
	"time"
)

// Severity is how badly a signal affects the user.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities in descending urgency. Index order is significant.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Index returns the position of s in Severities, or -1 for unknown values.
func (s Severity) Index() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the enumerated severities.
func (s Severity) Valid() bool { return s.Index() >= 0 }

// ParseSeverity normalizes v and returns nil when it is not an enumerated
// severity.
func ParseSeverity(v string) *Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return nil
	}
	return &s
}

// MaxSeverity returns the more urgent of a and b. Nil loses to any value.
func MaxSeverity(a, b *Severity) *Severity {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Index() < a.Index():
		return b
	default:
		return a
	}
}

// Frequency is how often a signal's problem occurs.
type Frequency string

const (
	FrequencyCommon     Frequency = "common"
	FrequencyOccasional Frequency = "occasional"
	FrequencyRare       Frequency = "rare"
)

// Valid reports whether f is one of the enumerated frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyCommon, FrequencyOccasional, FrequencyRare:
		return true
	}
	return false
}

// ParseFrequency normalizes v and returns nil when it is not an enumerated
// frequency.
func ParseFrequency(v string) *Frequency {
	f := Frequency(strings.ToLower(strings.TrimSpace(v)))
	if !f.Valid() {
		return nil
	}
	return &f
}

// Status is a signal's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusLinked    Status = "linked"
	StatusDismissed Status = "dismissed"
	StatusMerged    Status = "merged"
)

// Method records how a classification was decided.
type Method string

const (
	MethodEmbedding Method = "embedding"
	MethodLLM       Method = "llm"
)

// Classification is the outcome of matching a signal against initiatives.
type Classification struct {
	MatchedProjectID   string    `json:"matchedProjectId,omitempty"`
	MatchedProjectName string    `json:"matchedProjectName,omitempty"`
	Confidence         float64   `json:"confidence"`
	Method             Method    `json:"method"`
	IsNewInitiative    bool      `json:"isNewInitiative"`
	Reason             string    `json:"reason"`
	ClassifiedAt       time.Time `json:"classifiedAt"`
}

// Signal is one piece of qualitative feedback.
type Signal struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspaceId"`
	ProjectID   *string `json:"projectId,omitempty"`

	Verbatim       string  `json:"verbatim"`
	Interpretation *string `json:"interpretation,omitempty"`

	Severity         *Severity  `json:"severity,omitempty"`
	Frequency        *Frequency `json:"frequency,omitempty"`
	UserSegment      *string    `json:"userSegment,omitempty"`
	AIInterpretation *string    `json:"aiInterpretation,omitempty"`

	Embedding      []float32       `json:"-"`
	Classification *Classification `json:"classification,omitempty"`

	Status      Status     `json:"status"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`

	SourceType     string         `json:"sourceType"`
	SourceRef      string         `json:"sourceRef,omitempty"`
	SourceMetadata map[string]any `json:"sourceMetadata,omitempty"`
	Tags           []string       `json:"tags,omitempty"`

	MergedInto *string    `json:"mergedInto,omitempty"`
	MergedBy   *string    `json:"mergedBy,omitempty"`
	MergedAt   *time.Time `json:"mergedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EffectiveInterpretation prefers the human interpretation over the AI one.
func (s *Signal) EffectiveInterpretation() string {
	if s.Interpretation != nil && *s.Interpretation != "" {
		return *s.Interpretation
	}
	if s.AIInterpretation != nil {
		return *s.AIInterpretation
	}
	return ""
}

// HasEmbedding reports whether the signal carries a vector.
func (s *Signal) HasEmbedding() bool { return len(s.Embedding) > 0 }

// Initiative is an existing project signals can be linked to.
type Initiative struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"-"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Text is what the initiative's embedding is derived from.
func (i *Initiative) Text() string {
	if i.Description == "" {
		return i.Name
	}
	return i.Name + "\n\n" + i.Description
}

// Priority of a notification.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
)

// PriorityFor maps a cluster severity to a notification priority.
func PriorityFor(s *Severity) Priority {
	if s == nil {
		return PriorityMedium
	}
	switch *s {
	case SeverityCritical:
		return PriorityUrgent
	case SeverityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// NotificationClusterDiscovered is the only notification type emitted.
const NotificationClusterDiscovered = "cluster_discovered"

// Notification is an alert shown to a human. Never mutated.
type Notification struct {
	ID              string         `json:"id"`
	WorkspaceID     string         `json:"workspaceId"`
	Type            string         `json:"type"`
	Title           string         `json:"title"`
	Message         string         `json:"message"`
	Priority        Priority       `json:"priority"`
	ClusterID       string         `json:"clusterId,omitempty"`
	ClusterSize     int            `json:"clusterSize"`
	ClusterSeverity *Severity      `json:"clusterSeverity,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// Dismissal records that two signals are not duplicates.
type Dismissal struct {
	SignalID    string    `json:"signalId"`
	OtherID     string    `json:"otherId"`
	DismissedBy string    `json:"dismissedBy"`
	DismissedAt time.Time `json:"dismissedAt"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
