// Package facility persists the production location registry
package facility

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/juniper/pkg/database"
	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

var facilityColumns = []string{
	"facility_id", "name", "address", "country_code", "lat", "lng",
	"geocoded_location_type", "is_active", "merged_into_id",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles facility persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new facility repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new facility into the registry
func (r *Repository) Create(ctx context.Context, facility *models.Facility) (*models.Facility, error) {
	ctx, span := tracing.StartSpan(ctx, "facility.Repository.Create")
	defer span.End()

	facility.IsActive = true
	facility.CreatedAt = time.Now().UTC()
	facility.UpdatedAt = facility.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("facilities")
	sb.Cols("facility_id", "name", "address", "country_code", "lat", "lng", "geocoded_location_type", "is_active", "created_at", "updated_at")
	sb.Values(facility.FacilityID, facility.Name, facility.Address, facility.CountryCode, facility.Lat, facility.Lng, facility.GeocodedLocationType, facility.IsActive, facility.CreatedAt, facility.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"facility_id": facility.FacilityID}).Error("Failed to create facility")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create facility")
	}

	return facility, nil
}

// Get retrieves a facility by its stable identifier
func (r *Repository) Get(ctx context.Context, facilityID string) (*models.Facility, error) {
	ctx, span := tracing.StartSpan(ctx, "facility.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(facilityColumns...)
	sb.From("facilities")
	sb.Where(sb.Equal("facility_id", facilityID))

	query, args := sb.Build()
	var facility models.Facility
	if err := r.db.GetContext(ctx, &facility, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("facility %s not found", facilityID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get facility")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get facility")
	}

	return &facility, nil
}

// List retrieves facilities filtered by country with paging
func (r *Repository) List(ctx context.Context, countryCode string, page, pageSize int) ([]models.Facility, error) {
	ctx, span := tracing.StartSpan(ctx, "facility.Repository.List")
	defer span.End()

	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}
	if page < 1 {
		page = 1
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(facilityColumns...)
	sb.From("facilities")
	where := []string{
		sb.Equal("is_active", true),
		"deleted_at IS NULL",
	}
	if countryCode != "" {
		where = append(where, sb.Equal("country_code", countryCode))
	}
	sb.Where(where...)
	sb.OrderBy("facility_id ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var facilities []models.Facility
	if err := r.db.SelectContext(ctx, &facilities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list facilities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list facilities")
	}

	return facilities, nil
}

// FindCandidates retrieves plausibly matching facilities for a list item.
// Candidates are always scoped to the item's country, exclude inactive and
// merged-away entries, and are capped at limit. The trigram similarity of
// name and address forms the retrieval relevance score. Zero hits is a valid
// outcome meaning "likely new facility".
func (r *Repository) FindCandidates(ctx context.Context, item *models.ListItem, limit int) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "facility.Repository.FindCandidates")
	defer span.End()

	if limit < 1 {
		limit = 50
	}

	query := `
		SELECT facility_id, name, address, country_code, lat, lng, geocoded_location_type,
			is_active, merged_into_id, created_at, updated_at, deleted_at,
			(similarity(name, $1) * 60 + similarity(address, $2) * 40) AS search_score
		FROM facilities
		WHERE country_code = $3
		AND is_active = TRUE
		AND merged_into_id IS NULL
		AND deleted_at IS NULL
		AND (name % $1 OR address % $2)
		ORDER BY search_score DESC, facility_id ASC
		LIMIT $4
	`

	var candidates []models.Candidate
	if err := r.db.SelectContext(ctx, &candidates, query, item.Name, item.Address, item.CountryCode, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"list_item_id": item.ID}).Error("Failed to find candidate facilities")
		return nil, fmt.Errorf("failed to find candidate facilities: %w", err)
	}

	return candidates, nil
}

// UpdateCoordinates sets geocoded coordinates on a facility
func (r *Repository) UpdateCoordinates(ctx context.Context, facilityID string, lat, lng float64, locationType *string) error {
	ctx, span := tracing.StartSpan(ctx, "facility.Repository.UpdateCoordinates")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("facilities")
	sb.Set(
		sb.Assign("lat", lat),
		sb.Assign("lng", lng),
		sb.Assign("geocoded_location_type", locationType),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.Equal("facility_id", facilityID))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update facility coordinates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update facility coordinates")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("facility %s not found", facilityID))
	}

	return nil
}

// Merge folds one facility identity into another. The merged facility is
// deactivated and keeps a pointer to the surviving identity so future
// candidate retrieval excludes it; the row is never deleted.
func (r *Repository) Merge(ctx context.Context, facilityID, targetFacilityID string) error {
	ctx, span := tracing.StartSpan(ctx, "facility.Repository.Merge")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("facilities")
	sb.Set(
		sb.Assign("is_active", false),
		sb.Assign("merged_into_id", targetFacilityID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(
		sb.Equal("facility_id", facilityID),
		"merged_into_id IS NULL",
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to merge facility")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to merge facility")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("facility %s not found or already merged", facilityID))
	}

	return nil
}
