// Package events carries DOI lifecycle notifications from the repository to
// subscribers such as the audit log, metrics and the Kafka relay.
package events

import "time"

// Kind names an event type.
type Kind string

const (
	// KindDoiAdded fires after a DOI is inserted.
	KindDoiAdded Kind = "doi.added"
	// KindDoiEdited fires before an edited DOI is persisted.
	KindDoiEdited Kind = "doi.edited"
	// KindDoiDeleting fires before a DOI is deleted.
	KindDoiDeleting Kind = "doi.deleting"
	// KindDoiDeleted fires after a DOI is deleted.
	KindDoiDeleted Kind = "doi.deleted"
	// KindExportInitiated fires when a registration action is handed to an agency.
	KindExportInitiated Kind = "doi.export_initiated"
)

// DoiSnapshot is the immutable view of a DOI carried by events.
type DoiSnapshot struct {
	ID        int64  `json:"id"`
	ContextID int64  `json:"contextId"`
	Value     string `json:"doi"`
	Status    int    `json:"status"`
}

// Event is a single domain notification.
type Event struct {
	Kind       Kind           `json:"kind"`
	ContextID  int64          `json:"contextId"`
	Doi        *DoiSnapshot   `json:"doi,omitempty"`
	Previous   *DoiSnapshot   `json:"previous,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	Action     string         `json:"action,omitempty"`
	DoiIDs     []int64        `json:"doiIds,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}
