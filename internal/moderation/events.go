package moderation

import (
	"context"

	"github.com/google/uuid"
)

// Event types emitted by the lifecycle engine.
const (
	EventApplicationSubmitted = "application_submitted"
	EventApplicationDecided   = "application_decided"
	EventOwnershipTransferred = "ownership_transferred"
)

// Request kinds carried in events.
const (
	KindCreate   = "create"
	KindEdit     = "edit"
	KindTransfer = "transfer"
)

// Event describes a moderation outcome for the notification dispatcher.
// It carries IDs rather than resolved addresses; the dispatcher's consumer
// looks recipients up when it builds the actual notification.
type Event struct {
	Type             string     `json:"type"`
	Kind             string     `json:"kind"`
	VersionID        uuid.UUID  `json:"version_id"`
	OrganizationID   uuid.UUID  `json:"organization_id"`
	OrganizationName string     `json:"organization_name"`
	SubmitterID      uuid.UUID  `json:"submitter_id"`
	NewOwnerID       *uuid.UUID `json:"new_owner_id,omitempty"`
	Approved         bool       `json:"approved"`
	Reason           string     `json:"reason,omitempty"`
}

// Dispatcher delivers moderation events to the notification pipeline.
// Dispatch failures are logged by the caller and never roll back the
// decision that produced the event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}
