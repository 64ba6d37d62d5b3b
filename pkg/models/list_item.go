package models

import (
	"time"
)

// ListItemStatus constants
const (
	ListItemStatusPending = "pending"
	ListItemStatusMatched = "matched"
	ListItemStatusError   = "error"
)

// ListItem represents one cleaned contributor submission row, staged for
// matching. Immutable input to the pipeline once staged; only status and the
// propagated facility_id are written back.
// Field order matches schema: id, source_id, row_index, contributor_id, ...
type ListItem struct {
	ID                   string     `json:"id" db:"id"`
	SourceID             string     `json:"source_id" db:"source_id"`
	RowIndex             int        `json:"row_index" db:"row_index"`
	ContributorID        string     `json:"contributor_id" db:"contributor_id"`
	Name                 string     `json:"name" db:"name"`
	Address              string     `json:"address" db:"address"`
	CountryCode          string     `json:"country_code" db:"country_code"`
	Lat                  *float64   `json:"lat,omitempty" db:"lat"`
	Lng                  *float64   `json:"lng,omitempty" db:"lng"`
	GeocodedLocationType *string    `json:"geocoded_location_type,omitempty" db:"geocoded_location_type"`
	Status               string     `json:"status" db:"status"`
	FacilityID           *string    `json:"facility_id,omitempty" db:"facility_id"`
	Fingerprint          string     `json:"-" db:"fingerprint"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// HasCoordinates returns true when both lat and lng are present
func (l *ListItem) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

// CleanedRecordMessage represents an incoming message from the cleaning
// pipeline. The upstream contract guarantees name, address and country_code
// are non-empty; violations are rejected at intake.
type CleanedRecordMessage struct {
	SourceID             string    `json:"source_id"`
	RowIndex             int       `json:"row_index"`
	ContributorID        string    `json:"contributor_id"`
	Name                 string    `json:"name"`
	Address              string    `json:"address"`
	CountryCode          string    `json:"country_code"`
	Lat                  *float64  `json:"lat,omitempty"`
	Lng                  *float64  `json:"lng,omitempty"`
	GeocodedLocationType *string   `json:"geocoded_location_type,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// ListItemListResponse is the response for listing staged items
type ListItemListResponse struct {
	Items      []ListItem `json:"items"`
	TotalCount int        `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}
