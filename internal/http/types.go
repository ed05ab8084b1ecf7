package http

import (
	"github.com/fyrsmithlabs/signald/internal/notify"
	"github.com/fyrsmithlabs/signald/internal/signal"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// BatchRequest is the body of POST /api/v1/signals/process. When IDs is
// empty, up to Limit unprocessed signals of WorkspaceID are processed.
type BatchRequest struct {
	IDs         []string `json:"ids,omitempty"`
	WorkspaceID string   `json:"workspaceId,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// MergeRequest is the body of POST /api/v1/signals/merge. With Auto set,
// the older of the two signals becomes the primary.
type MergeRequest struct {
	PrimaryID   string `json:"primaryId"`
	SecondaryID string `json:"secondaryId"`
	ActorID     string `json:"actorId"`
	Auto        bool   `json:"auto,omitempty"`
}

// MergeResponse reports the surviving signal.
type MergeResponse struct {
	PrimaryID string `json:"primaryId"`
}

// DismissRequest is the body of POST /api/v1/signals/dismiss.
type DismissRequest struct {
	SignalID string `json:"signalId"`
	OtherID  string `json:"otherId"`
	ActorID  string `json:"actorId"`
}

// InitiativeRequest is the body of PUT .../initiatives/:id.
type InitiativeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// InitiativeResponse is an upserted initiative.
type InitiativeResponse struct {
	Initiative *signal.Initiative `json:"initiative"`
	Embedded   bool               `json:"embedded"`
	Warning    string             `json:"warning,omitempty"`
}

// ReembedResponse reports how many initiatives gained an embedding.
type ReembedResponse struct {
	Embedded int    `json:"embedded"`
	Warning  string `json:"warning,omitempty"`
}

// ClusterNotification is the filter outcome for one cluster.
type ClusterNotification struct {
	ClusterID string `json:"clusterId"`
	notify.Decision
}

// NotifyResponse is the response body for POST .../clusters/notify.
type NotifyResponse struct {
	Summary string                `json:"summary"`
	Results []ClusterNotification `json:"results"`
}
