package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aquaregiaswarm-blip/scout/internal/runtime"
	"github.com/aquaregiaswarm-blip/scout/internal/store"
)

// PortfolioHandler manages the team's vendor portfolio, the input to
// partner recommendations on research dashboards.
type PortfolioHandler struct {
	Store *store.Store
}

func (h *PortfolioHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
	g.DELETE("/:id", h.delete)
}

func (h *PortfolioHandler) list(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	items, err := h.Store.ListPortfolio(c.Request().Context(), teamID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]interface{}{
			"id":                it.ID,
			"vendor_name":       it.VendorName,
			"partnership_level": it.PartnershipLevel,
			"capabilities":      it.Capabilities,
			"created_at":        it.CreatedAt,
			"updated_at":        it.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PortfolioHandler) create(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	var req PortfolioItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.VendorName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "vendor_name required")
	}
	id, err := h.Store.CreatePortfolioItem(c.Request().Context(), teamID, req.VendorName, req.PartnershipLevel, req.Capabilities)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *PortfolioHandler) delete(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	if err := h.Store.DeletePortfolioItem(c.Request().Context(), teamID, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "portfolio item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
