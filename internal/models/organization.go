package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the live, public-facing directory record of an NGO.
// It is never edited directly by owners: every change goes through an
// OrganizationVersion and is applied on approval.
type Organization struct {
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	CityID             *uuid.UUID  `json:"city_id,omitempty"`
	Description        string      `json:"description"`
	VolunteerFunctions string      `json:"volunteer_functions"`
	Phone              string      `json:"phone,omitempty"`
	Address            string      `json:"address,omitempty"`
	Latitude           *float64    `json:"latitude,omitempty"`
	Longitude          *float64    `json:"longitude,omitempty"`
	LogoKey            string      `json:"logo_key,omitempty"`
	Website            string      `json:"website,omitempty"`
	VKLink             string      `json:"vk_link,omitempty"`
	TelegramLink       string      `json:"telegram_link,omitempty"`
	OtherSocial        string      `json:"other_social,omitempty"`
	OwnerID            uuid.UUID   `json:"owner_id"`
	CategoryIDs        []uuid.UUID `json:"category_ids,omitempty"`
	IsApproved         bool        `json:"is_approved"`
	IsActive           bool        `json:"is_active"`
	HasPendingChanges  bool        `json:"has_pending_changes"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}
