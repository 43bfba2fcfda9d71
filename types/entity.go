package types

import "time"

// CompletionStatus records whether the backend already holds a release
type CompletionStatus string

const (
	CompletionUnknown       CompletionStatus = "unknown"
	CompletionNotDownloaded CompletionStatus = "not_downloaded"
	CompletionDownloaded    CompletionStatus = "downloaded"
)

// EntityKind is the release type sent to the backend
type EntityKind string

const (
	EntityKindAlbum  EntityKind = "album"
	EntityKindSingle EntityKind = "single"
)

// Entity is a downloadable release discovered in the page document
type Entity struct {
	Identity    string           `json:"identity"`
	DisplayName string           `json:"displayName"`
	ResourceURL string           `json:"resourceUrl,omitempty"`
	OwnerName   string           `json:"ownerName,omitempty"`
	Kind        EntityKind       `json:"kind"`
	Completion  CompletionStatus `json:"completion"`
	ConfirmedAt time.Time        `json:"confirmedAt,omitempty"`
}

// CacheEntry memoizes one completion check
type CacheEntry struct {
	Identity   string           `json:"identity"`
	Status     CompletionStatus `json:"status"`
	ObservedAt time.Time        `json:"observedAt"`
}

// ControlState is the presentation state of a download control
type ControlState string

const (
	ControlStateActionable ControlState = "actionable"
	ControlStateBusy       ControlState = "busy"
	ControlStateCompleted  ControlState = "completed"
	ControlStateError      ControlState = "error"
)
