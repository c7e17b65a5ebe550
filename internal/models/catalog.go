package models

import "github.com/google/uuid"

// Region is an administrative region cities belong to.
type Region struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// City is a reference city. RegionID is nil for cities created from a
// free-text submission until an administrator assigns a region.
type City struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	RegionID *uuid.UUID `json:"region_id,omitempty"`
	Region   string     `json:"region,omitempty"`
}

// Category is an activity direction an organization can be tagged with.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Color       string    `json:"color,omitempty"`
}
