package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification statuses.
const (
	NotificationRecorded = "recorded"
	NotificationFailed   = "failed"
)

// Notification is a recorded moderation notification addressed to a
// submitter, new owner, or administrator. Delivery is handled outside
// this service; rows here are the durable outbox record, so SentAt is
// nil until a delivery channel confirms the send. The version and
// organization references go nil when their rows are deleted.
type Notification struct {
	ID             uuid.UUID  `json:"id"`
	VersionID      *uuid.UUID `json:"version_id,omitempty"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	EventType      string     `json:"event_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject"`
	Body           string     `json:"body"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
}
