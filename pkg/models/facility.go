package models

import (
	"time"
)

// Facility represents a production location in the registry
// Field order matches schema: facility_id, name, address, country_code, ...
type Facility struct {
	FacilityID           string     `json:"facility_id" db:"facility_id"`
	Name                 string     `json:"name" db:"name"`
	Address              string     `json:"address" db:"address"`
	CountryCode          string     `json:"country_code" db:"country_code"`
	Lat                  *float64   `json:"lat,omitempty" db:"lat"`
	Lng                  *float64   `json:"lng,omitempty" db:"lng"`
	GeocodedLocationType *string    `json:"geocoded_location_type,omitempty" db:"geocoded_location_type"`
	IsActive             bool       `json:"is_active" db:"is_active"`
	MergedIntoID         *string    `json:"merged_into_id,omitempty" db:"merged_into_id"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt            *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsMerged returns true if this facility identity has been merged into another
func (f *Facility) IsMerged() bool {
	return f.MergedIntoID != nil
}

// Candidate is a facility snapshot returned by candidate retrieval, carrying
// the retrieval engine's raw relevance score (unbounded, see SearchRelevance)
type Candidate struct {
	Facility
	SearchScore float64 `json:"search_score" db:"search_score"`
}

// CreateFacilityRequest is the request for creating a facility directly
type CreateFacilityRequest struct {
	Name                 string   `json:"name" validate:"required"`
	Address              string   `json:"address" validate:"required"`
	CountryCode          string   `json:"country_code" validate:"required,len=2"`
	Lat                  *float64 `json:"lat,omitempty"`
	Lng                  *float64 `json:"lng,omitempty"`
	GeocodedLocationType *string  `json:"geocoded_location_type,omitempty"`
}

// MergeFacilityRequest is the request for merging one facility identity into another
type MergeFacilityRequest struct {
	TargetFacilityID string `json:"target_facility_id" validate:"required"`
	MergedBy         string `json:"merged_by" validate:"required"`
}

// FacilityListResponse is the response for listing facilities
type FacilityListResponse struct {
	Items      []Facility `json:"items"`
	TotalCount int        `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}
