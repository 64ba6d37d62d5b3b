// Package listitem persists staged contributor submission rows
package listitem

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/fingerprint"
	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

var listItemColumns = []string{
	"id", "source_id", "row_index", "contributor_id", "name", "address",
	"country_code", "lat", "lng", "geocoded_location_type", "status",
	"facility_id", "fingerprint", "created_at", "updated_at", "deleted_at",
}

// Repository handles list item persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new list item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert stages a cleaned record, keyed by (source_id, row_index) so
// replayed intake messages do not duplicate rows. A row whose content
// fingerprint is unchanged keeps its status and facility assignment; a
// changed row goes back to pending for rematching.
func (r *Repository) Upsert(ctx context.Context, item *models.ListItem) (*models.ListItem, error) {
	ctx, span := tracing.StartSpan(ctx, "listitem.Repository.Upsert")
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = models.ListItemStatusPending
	}
	item.Fingerprint = fingerprint.ForListItem(item)
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto("list_items")
	ib.Cols("id", "source_id", "row_index", "contributor_id", "name", "address", "country_code", "lat", "lng", "geocoded_location_type", "status", "fingerprint", "created_at", "updated_at")
	ib.Values(item.ID, item.SourceID, item.RowIndex, item.ContributorID, item.Name, item.Address, item.CountryCode, item.Lat, item.Lng, item.GeocodedLocationType, item.Status, item.Fingerprint, item.CreatedAt, item.UpdatedAt)

	ub := ib.OnConflict("source_id", "row_index")
	ub.Set(
		ub.Assign("name", database.Excluded("name")),
		ub.Assign("address", database.Excluded("address")),
		ub.Assign("country_code", database.Excluded("country_code")),
		ub.Assign("lat", database.Excluded("lat")),
		ub.Assign("lng", database.Excluded("lng")),
		ub.Assign("geocoded_location_type", database.Excluded("geocoded_location_type")),
		"status = CASE WHEN list_items.fingerprint = EXCLUDED.fingerprint THEN list_items.status ELSE EXCLUDED.status END",
		"facility_id = CASE WHEN list_items.fingerprint = EXCLUDED.fingerprint THEN list_items.facility_id ELSE NULL END",
		ub.Assign("fingerprint", database.Excluded("fingerprint")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()
	query += " RETURNING id"

	var id string
	if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": item.SourceID, "row_index": item.RowIndex}).Error("Failed to upsert list item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert list item")
	}
	item.ID = id

	return item, nil
}

// Get retrieves a list item by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ListItem, error) {
	ctx, span := tracing.StartSpan(ctx, "listitem.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(listItemColumns...)
	sb.From("list_items")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var item models.ListItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("list item %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get list item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get list item")
	}

	return &item, nil
}

// ListPendingBySource retrieves unprocessed items for a source batch in
// submission order, so re-running a batch is reproducible and already
// matched items are not fetched again
func (r *Repository) ListPendingBySource(ctx context.Context, sourceID string) ([]models.ListItem, error) {
	ctx, span := tracing.StartSpan(ctx, "listitem.Repository.ListPendingBySource")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(listItemColumns...)
	sb.From("list_items")
	sb.Where(
		sb.Equal("source_id", sourceID),
		sb.Equal("status", models.ListItemStatusPending),
		"deleted_at IS NULL",
	)
	sb.OrderBy("row_index ASC")

	query, args := sb.Build()
	var items []models.ListItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"source_id": sourceID}).Error("Failed to list pending items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending items")
	}

	return items, nil
}

// AssignFacility propagates the decided facility identity onto the item and
// marks it matched
func (r *Repository) AssignFacility(ctx context.Context, id string, facilityID *string) error {
	ctx, span := tracing.StartSpan(ctx, "listitem.Repository.AssignFacility")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("list_items")
	sb.Set(
		sb.Assign("facility_id", facilityID),
		sb.Assign("status", models.ListItemStatusMatched),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to assign facility to list item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to assign facility to list item")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("list item %s not found", id))
	}

	return nil
}

// MarkError marks an item as failed so it is surfaced instead of silently
// retried forever
func (r *Repository) MarkError(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "listitem.Repository.MarkError")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("list_items")
	sb.Set(
		sb.Assign("status", models.ListItemStatusError),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark list item as errored")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark list item as errored")
	}

	return nil
}

// UpdateCoordinates stores geocoded coordinates for an item that arrived
// without them
func (r *Repository) UpdateCoordinates(ctx context.Context, id string, lat, lng float64, locationType *string) error {
	ctx, span := tracing.StartSpan(ctx, "listitem.Repository.UpdateCoordinates")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("list_items")
	sb.Set(
		sb.Assign("lat", lat),
		sb.Assign("lng", lng),
		sb.Assign("geocoded_location_type", locationType),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update list item coordinates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update list item coordinates")
	}

	return nil
}
