// Package candidates bounds the matching search space: instead of comparing
// a submission against the entire registry, a retriever fetches a capped set
// of plausibly matching facilities for the cumulative matcher to score.
package candidates

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/juniper/internal/repositories/facility"
	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

// Retriever fetches plausible match candidates for a list item. Candidates
// are always scoped to the item's country; an empty result is a valid
// outcome meaning "likely new facility". Errors surface so the caller can
// retry, never silently degrade to "no candidates".
type Retriever interface {
	FindCandidates(ctx context.Context, item *models.ListItem) ([]models.Candidate, error)
}

// SQLRetriever retrieves candidates from the Postgres registry via trigram
// similarity on name and address
type SQLRetriever struct {
	facilityRepo  *facility.Repository
	logger        ectologger.Logger
	maxCandidates int
}

// NewSQLRetriever creates a new SQL-backed retriever
func NewSQLRetriever(facilityRepo *facility.Repository, logger ectologger.Logger, maxCandidates int) *SQLRetriever {
	if maxCandidates < 1 {
		maxCandidates = 50
	}
	return &SQLRetriever{
		facilityRepo:  facilityRepo,
		logger:        logger,
		maxCandidates: maxCandidates,
	}
}

// FindCandidates implements Retriever
func (r *SQLRetriever) FindCandidates(ctx context.Context, item *models.ListItem) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidates.SQLRetriever.FindCandidates")
	defer span.End()

	found, err := r.facilityRepo.FindCandidates(ctx, item, r.maxCandidates)
	if err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"list_item_id":    item.ID,
		"country_code":    item.CountryCode,
		"candidate_count": len(found),
	}).Debug("Retrieved match candidates")

	return found, nil
}
