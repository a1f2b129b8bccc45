package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/aquaregiaswarm-blip/scout/internal/store"
)

var userCols = []string{"id", "team_id", "name", "email", "password_hash", "created_at"}

func expectGetUser(mock sqlmock.Sqlmock, userID, teamID string) {
	mock.ExpectQuery(`SELECT id, team_id, name, email, password_hash, created_at FROM users WHERE id=\$1`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(userID, teamID, "Ada", "ada@example.com", "hash", time.Now()))
}

func authedContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	return ctx, rec
}

func TestCreateCompany(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &CompaniesHandler{Store: &store.Store{DB: db}}

	expectGetUser(mock, "user-1", "team-1")
	mock.ExpectQuery(`INSERT INTO company_profiles`).
		WithArgs("team-1", "Acme", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("comp-1"))

	ctx, rec := authedContext(e, http.MethodPost, "/api/companies", `{"name":"Acme","industry":"manufacturing"}`)
	if err := h.create(ctx); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp IDResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "comp-1" {
		t.Fatalf("id = %s", resp.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateCompanyRequiresName(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &CompaniesHandler{Store: &store.Store{DB: db}}

	expectGetUser(mock, "user-1", "team-1")

	ctx, _ := authedContext(e, http.MethodPost, "/api/companies", `{"name":"   "}`)
	if code := httpCode(t, h.create(ctx)); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}

func TestGetCompanyScopedToTeam(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &CompaniesHandler{Store: &store.Store{DB: db}}

	expectGetUser(mock, "user-1", "team-1")
	// Another team's company is invisible, not forbidden.
	mock.ExpectQuery(`FROM company_profiles WHERE id=\$1 AND team_id=\$2`).
		WithArgs("comp-9", "team-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "company_name", "industry", "created_at", "updated_at"}))

	ctx, _ := authedContext(e, http.MethodGet, "/api/companies/comp-9", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("comp-9")
	if code := httpCode(t, h.get(ctx)); code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
}

func TestCreateInitiativeVerifiesCompanyOwnership(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &CompaniesHandler{Store: &store.Store{DB: db}}

	now := time.Now()
	expectGetUser(mock, "user-1", "team-1")
	mock.ExpectQuery(`FROM company_profiles WHERE id=\$1 AND team_id=\$2`).
		WithArgs("comp-1", "team-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "company_name", "industry", "created_at", "updated_at"}).
			AddRow("comp-1", "team-1", "Acme", "manufacturing", now, now))
	mock.ExpectQuery(`INSERT INTO initiatives`).
		WithArgs("comp-1", "Cloud Migration", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("init-1"))

	ctx, rec := authedContext(e, http.MethodPost, "/api/companies/comp-1/initiatives",
		`{"name":"Cloud Migration","description":"ERP move"}`)
	ctx.SetParamNames("id")
	ctx.SetParamValues("comp-1")
	if err := h.createInitiative(ctx); err != nil {
		t.Fatalf("createInitiative: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListInitiativesIncludesDiscoveryFlag(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	h := &CompaniesHandler{Store: &store.Store{DB: db}}

	now := time.Now()
	expectGetUser(mock, "user-1", "team-1")
	mock.ExpectQuery(`FROM company_profiles WHERE id=\$1 AND team_id=\$2`).
		WithArgs("comp-1", "team-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "company_name", "industry", "created_at", "updated_at"}).
			AddRow("comp-1", "team-1", "Acme", "", now, now))
	mock.ExpectQuery(`FROM initiatives WHERE company_profile_id=\$1`).
		WithArgs("comp-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_profile_id", "name", "description", "discovered_by_agent", "created_at", "updated_at"}).
			AddRow("init-2", "comp-1", "Data Platform", "", true, now, now).
			AddRow("init-1", "comp-1", "Cloud Migration", "ERP move", false, now, now))

	ctx, rec := authedContext(e, http.MethodGet, "/api/companies/comp-1/initiatives", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("comp-1")
	if err := h.listInitiatives(ctx); err != nil {
		t.Fatalf("listInitiatives: %v", err)
	}

	var out []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("initiatives = %d", len(out))
	}
	if out[0]["discovered_by_agent"] != true || out[1]["discovered_by_agent"] != false {
		t.Fatalf("discovery flags = %v, %v", out[0]["discovered_by_agent"], out[1]["discovered_by_agent"])
	}
}
