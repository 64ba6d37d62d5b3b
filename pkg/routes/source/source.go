package source

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/juniper/internal/repositories/listitem"
	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/processor"
)

// Register registers source routes
func Register(g *echo.Group) {
	g.POST("/:id/process", Process)
	g.GET("/:id/items", ListItems)
}

// Process runs the matching pipeline over every pending item of a source.
// Rerunning a partially processed source resumes from the unmatched items.
func Process(c echo.Context) error {
	ctx := c.Request().Context()

	sourceID := c.Param("id")
	if sourceID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "source id is required")
	}

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := proc.ProcessSource(ctx, sourceID)
	if err != nil {
		if ctx, logger, logErr := ectoinject.GetContext[ectologger.Logger](ctx); logErr == nil {
			logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source_id": sourceID,
			}).Error("Source processing failed")
		}
		return httperror.NewHTTPError(http.StatusInternalServerError, "source processing failed")
	}

	return c.JSON(http.StatusOK, summary)
}

// ListItems lists the staged items of a source that still await matching
func ListItems(c echo.Context) error {
	ctx := c.Request().Context()

	sourceID := c.Param("id")
	if sourceID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "source id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*listitem.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, err := repo.ListPendingBySource(ctx, sourceID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ListItemListResponse{
		Items:      items,
		TotalCount: len(items),
		Page:       1,
		PageSize:   len(items),
	})
}
