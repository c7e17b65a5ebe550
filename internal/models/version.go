package models

import (
	"time"

	"github.com/google/uuid"
)

// VersionStatus is the moderation state of an organization version.
// A version starts pending and transitions exactly once to approved or
// rejected; there are no further transitions.
type VersionStatus string

const (
	VersionPending  VersionStatus = "pending"
	VersionApproved VersionStatus = "approved"
	VersionRejected VersionStatus = "rejected"
)

// OrganizationVersion is a staged, reviewable snapshot of proposed changes
// to an organization, including ownership transfers. Category IDs are an
// independent snapshot, unaffected by later live edits.
type OrganizationVersion struct {
	ID                 uuid.UUID     `json:"id"`
	OrganizationID     uuid.UUID     `json:"organization_id"`
	Name               string        `json:"name"`
	Description        string        `json:"description"`
	VolunteerFunctions string        `json:"volunteer_functions"`
	Phone              string        `json:"phone,omitempty"`
	Address            string        `json:"address,omitempty"`
	Latitude           *float64      `json:"latitude,omitempty"`
	Longitude          *float64      `json:"longitude,omitempty"`
	LogoKey            string        `json:"logo_key,omitempty"`
	Website            string        `json:"website,omitempty"`
	VKLink             string        `json:"vk_link,omitempty"`
	TelegramLink       string        `json:"telegram_link,omitempty"`
	OtherSocial        string        `json:"other_social,omitempty"`
	CityID             *uuid.UUID    `json:"city_id,omitempty"`
	CityName           string        `json:"city_name,omitempty"`
	CategoryIDs        []uuid.UUID   `json:"category_ids"`
	NewOwnerID         *uuid.UUID    `json:"new_owner_id,omitempty"`
	CreatedBy          uuid.UUID     `json:"created_by"`
	Status             VersionStatus `json:"status"`
	RejectionReason    string        `json:"rejection_reason,omitempty"`
	IsCurrent          bool          `json:"is_current"`
	ChangeDescription  string        `json:"change_description,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	ReviewedAt         *time.Time    `json:"reviewed_at,omitempty"`
	ReviewedBy         *uuid.UUID    `json:"reviewed_by,omitempty"`
}

// IsTransfer reports whether this version is an ownership-transfer request.
func (v *OrganizationVersion) IsTransfer() bool {
	return v.NewOwnerID != nil
}

// IsTerminal reports whether the version has been decided.
func (v *OrganizationVersion) IsTerminal() bool {
	return v.Status != VersionPending
}
