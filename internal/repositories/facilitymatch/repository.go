// Package facilitymatch persists match decisions and their moderation
// lifecycle. Decisions are written atomically with the propagation of the
// facility identity onto the originating list item; superseded decisions are
// deactivated, never deleted, preserving the audit history.
package facilitymatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/facilityid"
	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

var matchColumns = []string{
	"id", "list_item_id", "facility_id", "status", "confidence", "results",
	"is_active", "created_at", "updated_at", "resolved_at", "resolved_by",
}

// Repository handles facility match persistence
type Repository struct {
	db        database.DB
	logger    ectologger.Logger
	generator *facilityid.Generator
}

// NewRepository creates a new facility match repository
func NewRepository(db database.DB, logger ectologger.Logger, generator *facilityid.Generator) *Repository {
	return &Repository{
		db:        db,
		logger:    logger,
		generator: generator,
	}
}

// WriteDecision persists a match decision atomically: the prior active match
// for the list item is deactivated, the new record inserted and the facility
// identity propagated onto the item in one transaction. When the decision is
// "new facility", the facility row is created first from the item's fields
// and the generated identifier is propagated. Returns the written match.
func (r *Repository) WriteDecision(ctx context.Context, item *models.ListItem, decision *models.MatchDecision) (*models.FacilityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "facilitymatch.Repository.WriteDecision")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"list_item_id": decision.ListItemID,
		"status":       decision.Status,
	})

	resultsJSON, err := json.Marshal(decision.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match results: %w", err)
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	facilityID := decision.FacilityID
	if decision.IsNewFacility() && decision.Status == models.MatchStatusAutomatic {
		// Decisively new: mint the facility before the match record so the
		// propagated identity exists
		newID, err := r.generator.Generate(item.CountryCode, now)
		if err != nil {
			return nil, fmt.Errorf("failed to generate facility id: %w", err)
		}

		insert := sqlbuilder.PostgreSQL.NewInsertBuilder()
		insert.InsertInto("facilities")
		insert.Cols("facility_id", "name", "address", "country_code", "lat", "lng", "geocoded_location_type", "is_active", "created_at", "updated_at")
		insert.Values(newID, item.Name, item.Address, item.CountryCode, item.Lat, item.Lng, item.GeocodedLocationType, true, now, now)

		query, args := insert.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to create facility for new match")
			return nil, fmt.Errorf("failed to create facility: %w", err)
		}

		facilityID = &newID
	}

	// Supersede any prior active decision for this item
	deactivate := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	deactivate.Update("facility_matches")
	deactivate.Set(
		deactivate.Assign("is_active", false),
		deactivate.Assign("updated_at", now),
	)
	deactivate.Where(
		deactivate.Equal("list_item_id", decision.ListItemID),
		deactivate.Equal("is_active", true),
	)
	query, args := deactivate.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to deactivate prior match")
		return nil, fmt.Errorf("failed to deactivate prior match: %w", err)
	}

	match := &models.FacilityMatch{
		ID:         uuid.New().String(),
		ListItemID: decision.ListItemID,
		FacilityID: facilityID,
		Status:     decision.Status,
		Confidence: decision.Confidence,
		Results:    resultsJSON,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	insert := sqlbuilder.PostgreSQL.NewInsertBuilder()
	insert.InsertInto("facility_matches")
	insert.Cols("id", "list_item_id", "facility_id", "status", "confidence", "results", "is_active", "created_at", "updated_at")
	insert.Values(match.ID, match.ListItemID, match.FacilityID, string(match.Status), match.Confidence, database.JSONB[[]models.MatchResult]{Data: decision.Results}, match.IsActive, match.CreatedAt, match.UpdatedAt)

	query, args = insert.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to insert match record")
		return nil, fmt.Errorf("failed to insert match record: %w", err)
	}

	// Propagate the identity onto the list item. Pending decisions keep the
	// item pending until a moderator resolves them.
	itemStatus := models.ListItemStatusMatched
	var itemFacilityID *string
	if decision.Status == models.MatchStatusAutomatic {
		itemFacilityID = facilityID
	} else {
		itemStatus = models.ListItemStatusPending
	}

	update := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	update.Update("list_items")
	update.Set(
		update.Assign("facility_id", itemFacilityID),
		update.Assign("status", itemStatus),
		update.Assign("updated_at", now),
	)
	update.Where(update.Equal("id", decision.ListItemID))

	query, args = update.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to propagate facility onto list item")
		return nil, fmt.Errorf("failed to propagate facility onto list item: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit match decision: %w", err)
	}

	log.WithFields(map[string]any{"match_id": match.ID, "confidence": match.Confidence}).Debug("Wrote match decision")
	return match, nil
}

// Get retrieves a match record by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.FacilityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "facilitymatch.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(matchColumns...)
	sb.From("facility_matches")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var match models.FacilityMatch
	if err := r.db.GetContext(ctx, &match, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("match %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match")
	}

	return &match, nil
}

// GetActiveMatch retrieves the active match record for a list item, or nil
// when the item has never been matched
func (r *Repository) GetActiveMatch(ctx context.Context, listItemID string) (*models.FacilityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "facilitymatch.Repository.GetActiveMatch")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(matchColumns...)
	sb.From("facility_matches")
	sb.Where(
		sb.Equal("list_item_id", listItemID),
		sb.Equal("is_active", true),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var match models.FacilityMatch
	if err := r.db.GetContext(ctx, &match, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get active match")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get active match")
	}

	return &match, nil
}

// ListPending retrieves pending match records for moderator review, highest
// confidence first
func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.FacilityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "facilitymatch.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(matchColumns...)
	sb.From("facility_matches")
	sb.Where(
		sb.Equal("status", string(models.MatchStatusPending)),
		sb.Equal("is_active", true),
	)
	sb.OrderBy("confidence DESC", "created_at ASC")
	sb.Limit(limit)

	query, args := sb.Build()
	var matches []models.FacilityMatch
	if err := r.db.SelectContext(ctx, &matches, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending matches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending matches")
	}

	return matches, nil
}

// Confirm resolves a pending match: the moderator-accepted facility is
// recorded and propagated onto the list item in one transaction
func (r *Repository) Confirm(ctx context.Context, id string, facilityID string, resolvedBy string) (*models.FacilityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "facilitymatch.Repository.Confirm")
	defer span.End()

	return r.resolve(ctx, id, models.MatchStatusConfirmed, &facilityID, resolvedBy)
}

// Reject resolves a pending match as "no suggestion applies": the item is
// treated as a new facility, minted from its own fields
func (r *Repository) Reject(ctx context.Context, id string, resolvedBy string) (*models.FacilityMatch, error) {
	ctx, span := tracing.StartSpan(ctx, "facilitymatch.Repository.Reject")
	defer span.End()

	return r.resolve(ctx, id, models.MatchStatusRejected, nil, resolvedBy)
}

func (r *Repository) resolve(ctx context.Context, id string, target models.MatchStatus, facilityID *string, resolvedBy string) (*models.FacilityMatch, error) {
	match, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !match.Status.CanTransitionTo(target) {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("match %s is %s and cannot become %s", id, match.Status, target))
	}
	if !match.IsActive {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("match %s has been superseded", id))
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	if target == models.MatchStatusRejected {
		// Rejection means none of the suggestions apply: mint a new facility
		// from the submission itself
		item, err := r.getListItem(ctx, tx, match.ListItemID)
		if err != nil {
			return nil, err
		}

		newID, err := r.generator.Generate(item.CountryCode, now)
		if err != nil {
			return nil, fmt.Errorf("failed to generate facility id: %w", err)
		}

		insert := sqlbuilder.PostgreSQL.NewInsertBuilder()
		insert.InsertInto("facilities")
		insert.Cols("facility_id", "name", "address", "country_code", "lat", "lng", "geocoded_location_type", "is_active", "created_at", "updated_at")
		insert.Values(newID, item.Name, item.Address, item.CountryCode, item.Lat, item.Lng, item.GeocodedLocationType, true, now, now)

		query, args := insert.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to create facility for rejected match")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create facility")
		}

		facilityID = &newID
	}

	update := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	update.Update("facility_matches")
	update.Set(
		update.Assign("status", string(target)),
		update.Assign("facility_id", facilityID),
		update.Assign("resolved_at", now),
		update.Assign("resolved_by", resolvedBy),
		update.Assign("updated_at", now),
	)
	update.Where(
		update.Equal("id", id),
		update.Equal("status", string(models.MatchStatusPending)),
	)

	query, args := update.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve match")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve match")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("match %s was resolved concurrently", id))
	}

	itemUpdate := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	itemUpdate.Update("list_items")
	itemUpdate.Set(
		itemUpdate.Assign("facility_id", facilityID),
		itemUpdate.Assign("status", models.ListItemStatusMatched),
		itemUpdate.Assign("updated_at", now),
	)
	itemUpdate.Where(itemUpdate.Equal("id", match.ListItemID))

	query, args = itemUpdate.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to propagate resolution onto list item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to propagate resolution onto list item")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit match resolution")
	}

	match.Status = target
	match.FacilityID = facilityID
	match.ResolvedAt = &now
	match.ResolvedBy = &resolvedBy
	match.UpdatedAt = now

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"match_id":    id,
		"status":      target,
		"resolved_by": resolvedBy,
	}).Info("Resolved match")

	return match, nil
}

// MarkMerged marks every confirmed or automatic match pointing at a merged
// facility as MERGED and repoints the affected list items at the surviving
// identity
func (r *Repository) MarkMerged(ctx context.Context, facilityID, targetFacilityID string) error {
	ctx, span := tracing.StartSpan(ctx, "facilitymatch.Repository.MarkMerged")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	update := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	update.Update("facility_matches")
	update.Set(
		update.Assign("status", string(models.MatchStatusMerged)),
		update.Assign("facility_id", targetFacilityID),
		update.Assign("updated_at", now),
	)
	update.Where(
		update.Equal("facility_id", facilityID),
		update.In("status", string(models.MatchStatusConfirmed), string(models.MatchStatusAutomatic)),
		update.Equal("is_active", true),
	)

	query, args := update.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark matches as merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark matches as merged")
	}

	itemUpdate := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	itemUpdate.Update("list_items")
	itemUpdate.Set(
		itemUpdate.Assign("facility_id", targetFacilityID),
		itemUpdate.Assign("updated_at", now),
	)
	itemUpdate.Where(itemUpdate.Equal("facility_id", facilityID))

	query, args = itemUpdate.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to repoint list items at surviving facility")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint list items")
	}

	return tx.Commit(ctx)
}

func (r *Repository) getListItem(ctx context.Context, tx database.Tx, id string) (*models.ListItem, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "source_id", "row_index", "contributor_id", "name", "address", "country_code", "lat", "lng", "geocoded_location_type", "status", "facility_id", "created_at", "updated_at", "deleted_at")
	sb.From("list_items")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var item models.ListItem
	if err := tx.GetContext(ctx, &item, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("list item %s not found", id))
		}
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get list item")
	}

	return &item, nil
}
