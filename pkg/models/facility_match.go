package models

import (
	"encoding/json"
	"time"
)

// MatchStatus defines the lifecycle state of a match decision
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "PENDING"   // Ambiguous, awaiting moderator review
	MatchStatusAutomatic MatchStatus = "AUTOMATIC" // Decisively matched or decisively new
	MatchStatusConfirmed MatchStatus = "CONFIRMED" // Moderator accepted a suggested candidate
	MatchStatusRejected  MatchStatus = "REJECTED"  // Moderator rejected all suggestions
	MatchStatusMerged    MatchStatus = "MERGED"    // Facility identity merged away
)

// CanTransitionTo reports whether a status transition is allowed.
// PENDING resolves to CONFIRMED or REJECTED; CONFIRMED and AUTOMATIC may
// later become MERGED. REJECTED and MERGED are terminal.
func (s MatchStatus) CanTransitionTo(target MatchStatus) bool {
	switch s {
	case MatchStatusPending:
		return target == MatchStatusConfirmed || target == MatchStatusRejected
	case MatchStatusConfirmed, MatchStatusAutomatic:
		return target == MatchStatusMerged
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is allowed
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusRejected || s == MatchStatusMerged
}

// FieldScore is one matcher's confidence contribution for one pair
type FieldScore struct {
	Matcher    string  `json:"matcher"`
	Confidence float64 `json:"confidence"`
}

// MatchResult is the aggregate outcome for one (item, candidate) pair
type MatchResult struct {
	FacilityID  string       `json:"facility_id"`
	Confidence  float64      `json:"confidence"`
	FieldScores []FieldScore `json:"field_scores"`
	Rank        int          `json:"rank"`
}

// MatchDecision is the in-memory outcome of matching one list item, before
// it is persisted as a FacilityMatch
type MatchDecision struct {
	ListItemID string        `json:"list_item_id"`
	FacilityID *string       `json:"facility_id"` // nil means new facility
	Status     MatchStatus   `json:"status"`
	Confidence float64       `json:"confidence"`
	Results    []MatchResult `json:"results"`
}

// IsNewFacility returns true when no existing facility was proposed
func (d *MatchDecision) IsNewFacility() bool {
	return d.FacilityID == nil
}

// FacilityMatch is the persisted, auditable match decision for one list item.
// Superseded records are marked inactive rather than deleted.
// Field order matches schema: id, list_item_id, facility_id, status, ...
type FacilityMatch struct {
	ID         string          `json:"id" db:"id"`
	ListItemID string          `json:"list_item_id" db:"list_item_id"`
	FacilityID *string         `json:"facility_id,omitempty" db:"facility_id"`
	Status     MatchStatus     `json:"status" db:"status"`
	Confidence float64         `json:"confidence" db:"confidence"`
	Results    json.RawMessage `json:"results" db:"results"` // full ranked MatchResult list
	IsActive   bool            `json:"is_active" db:"is_active"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy *string         `json:"resolved_by,omitempty" db:"resolved_by"`
}

// RankedResults decodes the persisted results payload
func (m *FacilityMatch) RankedResults() ([]MatchResult, error) {
	if len(m.Results) == 0 {
		return nil, nil
	}
	var results []MatchResult
	if err := json.Unmarshal(m.Results, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ConfirmMatchRequest is the request for confirming a pending match
type ConfirmMatchRequest struct {
	FacilityID string `json:"facility_id" validate:"required"`
	ResolvedBy string `json:"resolved_by" validate:"required"`
}

// RejectMatchRequest is the request for rejecting all suggestions of a pending match
type RejectMatchRequest struct {
	ResolvedBy string `json:"resolved_by" validate:"required"`
}

// FacilityMatchListResponse is the response for listing match records
type FacilityMatchListResponse struct {
	Items      []FacilityMatch `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}
