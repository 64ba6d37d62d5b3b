package facility

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/juniper/internal/repositories/facility"
	"github.com/Ramsey-B/juniper/internal/repositories/facilitymatch"
	"github.com/Ramsey-B/juniper/pkg/events"
	"github.com/Ramsey-B/juniper/pkg/facilityid"
	"github.com/Ramsey-B/juniper/pkg/models"
)

var validate = validator.New()

// Register registers facility routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.POST("", Create)
	g.GET("/:id", Get)
	g.POST("/:id/merge", Merge)
}

// List lists facilities with optional country filter
func List(c echo.Context) error {
	ctx := c.Request().Context()

	countryCode := c.QueryParam("country_code")
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	ctx, repo, err := ectoinject.GetContext[*facility.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	facilities, err := repo.List(ctx, countryCode, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.FacilityListResponse{
		Items:      facilities,
		TotalCount: len(facilities),
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns a single facility by its identifier
func Get(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")
	if !facilityid.Validate(id) {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid facility id")
	}

	ctx, repo, err := ectoinject.GetContext[*facility.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Create registers a facility directly, outside the matching pipeline
func Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreateFacilityRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, generator, err := ectoinject.GetContext[*facilityid.Generator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	ctx, repo, err := ectoinject.GetContext[*facility.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	id, err := generator.Generate(req.CountryCode, time.Now().UTC())
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to generate facility id")
	}

	result, err := repo.Create(ctx, &models.Facility{
		FacilityID:           id,
		Name:                 req.Name,
		Address:              req.Address,
		CountryCode:          req.CountryCode,
		Lat:                  req.Lat,
		Lng:                  req.Lng,
		GeocodedLocationType: req.GeocodedLocationType,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// Merge folds a facility into another. The merged facility is deactivated,
// its matches move to the MERGED state and its list items are repointed at
// the surviving facility.
func Merge(c echo.Context) error {
	ctx := c.Request().Context()

	id := c.Param("id")

	var req models.MergeFacilityRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if id == req.TargetFacilityID {
		return httperror.NewHTTPError(http.StatusBadRequest, "cannot merge a facility into itself")
	}

	ctx, repo, err := ectoinject.GetContext[*facility.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	ctx, matchRepo, err := ectoinject.GetContext[*facilitymatch.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	// Target must exist and be active before the source is deactivated
	target, err := repo.Get(ctx, req.TargetFacilityID)
	if err != nil {
		return err
	}
	if target.IsMerged() || !target.IsActive {
		return httperror.NewHTTPError(http.StatusConflict, "target facility is not active")
	}

	if err := repo.Merge(ctx, id, req.TargetFacilityID); err != nil {
		return err
	}

	if err := matchRepo.MarkMerged(ctx, id, req.TargetFacilityID); err != nil {
		return err
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil {
		if err := emitter.EmitMerged(ctx, id, req.TargetFacilityID); err != nil && logger != nil {
			logger.WithContext(ctx).WithError(err).Warn("Failed to emit facility merged event")
		}
	}

	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"facility_id":        id,
			"target_facility_id": req.TargetFacilityID,
			"merged_by":          req.MergedBy,
		}).Info("Merged facility")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":             "merged",
		"facility_id":        id,
		"target_facility_id": req.TargetFacilityID,
	})
}
