package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aquaregiaswarm-blip/scout/internal/runtime"
	"github.com/aquaregiaswarm-blip/scout/internal/store"
)

// CompaniesHandler exposes target-company and initiative CRUD scoped to
// the authenticated user's team.
type CompaniesHandler struct {
	Store *store.Store
}

func (h *CompaniesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
	g.GET("/:id/initiatives", h.listInitiatives)
	g.POST("/:id/initiatives", h.createInitiative)
}

// teamIDOf resolves the authenticated user's team.
func teamIDOf(c echo.Context, st *store.Store) (string, error) {
	userID, _ := c.Get("user_id").(string)
	u, err := st.GetUser(c.Request().Context(), userID)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return u.TeamID, nil
}

func (h *CompaniesHandler) list(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	items, err := h.Store.ListCompanies(c.Request().Context(), teamID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, co := range items {
		out = append(out, companyResponse(co))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CompaniesHandler) create(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	var req CompanyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	id, err := h.Store.CreateCompany(c.Request().Context(), teamID, req.Name, req.Industry)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func (h *CompaniesHandler) get(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	co, err := h.Store.GetCompany(c.Request().Context(), teamID, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "company not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, companyResponse(co))
}

// delete soft-deletes a company; its initiatives and findings stay in
// the database but disappear from listings.
func (h *CompaniesHandler) delete(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	if err := h.Store.DeleteCompany(c.Request().Context(), teamID, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "company not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CompaniesHandler) listInitiatives(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	companyID := c.Param("id")
	if _, err := h.Store.GetCompany(ctx, teamID, companyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "company not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	items, err := h.Store.ListInitiatives(ctx, companyID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, in := range items {
		out = append(out, initiativeResponse(in))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CompaniesHandler) createInitiative(c echo.Context) error {
	teamID, err := teamIDOf(c, h.Store)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	companyID := c.Param("id")
	if _, err := h.Store.GetCompany(ctx, teamID, companyID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "company not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	var req InitiativeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name required")
	}
	id, err := h.Store.CreateInitiative(ctx, companyID, req.Name, req.Description)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, IDResponse{ID: id})
}

func companyResponse(co store.Company) map[string]interface{} {
	return map[string]interface{}{
		"id":         co.ID,
		"name":       co.Name,
		"industry":   co.Industry,
		"created_at": co.CreatedAt,
		"updated_at": co.UpdatedAt,
	}
}

func initiativeResponse(in store.Initiative) map[string]interface{} {
	return map[string]interface{}{
		"id":                  in.ID,
		"company_id":          in.CompanyID,
		"name":                in.Name,
		"description":         in.Description,
		"discovered_by_agent": in.DiscoveredByAgent,
		"created_at":          in.CreatedAt,
		"updated_at":          in.UpdatedAt,
	}
}
