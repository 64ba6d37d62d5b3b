package match

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/juniper/internal/repositories/facilitymatch"
	"github.com/Ramsey-B/juniper/pkg/events"
	"github.com/Ramsey-B/juniper/pkg/models"
)

var validate = validator.New()

// Register registers match review routes
func Register(g *echo.Group) {
	g.GET("", ListPending)
	g.GET("/:id", Get)
	g.POST("/:id/confirm", Confirm)
	g.POST("/:id/reject", Reject)
}

// ListPending lists matches awaiting moderator review, highest confidence
// first so reviewers see the most likely matches at the top of the queue
func ListPending(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	ctx, repo, err := ectoinject.GetContext[*facilitymatch.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	matches, err := repo.ListPending(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.FacilityMatchListResponse{
		Items:      matches,
		TotalCount: len(matches),
		Page:       1,
		PageSize:   limit,
	})
}

// Get returns a match record with its ranked candidate results
func Get(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[*facilitymatch.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Confirm resolves a pending match to a facility chosen by the moderator.
// The chosen facility does not have to be the suggested one; any candidate
// from the result list is accepted.
func Confirm(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ConfirmMatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*facilitymatch.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Confirm(ctx, c.Param("id"), req.FacilityID, req.ResolvedBy)
	if err != nil {
		return err
	}

	emitResolution(ctx, result, false)

	return c.JSON(http.StatusOK, result)
}

// Reject refuses every suggested candidate. A new facility is minted from
// the list item's own fields and the item is assigned to it.
func Reject(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.RejectMatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, repo, err := ectoinject.GetContext[*facilitymatch.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := repo.Reject(ctx, c.Param("id"), req.ResolvedBy)
	if err != nil {
		return err
	}

	emitResolution(ctx, result, true)

	return c.JSON(http.StatusOK, result)
}

// emitResolution publishes the lifecycle event for a resolved match. Event
// emission is best effort; the resolution is already committed.
func emitResolution(ctx context.Context, match *models.FacilityMatch, isNewFacility bool) {
	if match.FacilityID == nil {
		return
	}

	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err != nil {
		return
	}

	if isNewFacility {
		err = emitter.EmitCreated(ctx, *match.FacilityID, match.ListItemID)
	} else {
		err = emitter.EmitMatched(ctx, *match.FacilityID, match.ListItemID, match.Confidence)
	}
	if err != nil {
		if ctx, logger, logErr := ectoinject.GetContext[ectologger.Logger](ctx); logErr == nil {
			logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"match_id":    match.ID,
				"facility_id": *match.FacilityID,
			}).Warn("Failed to emit match resolution event")
		}
	}
}
