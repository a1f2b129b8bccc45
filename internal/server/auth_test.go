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
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/aquaregiaswarm-blip/scout/internal/store"
)

func newAuthHandler(t *testing.T) (*AuthHandler, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	h := &AuthHandler{Store: &store.Store{DB: db}, Secret: []byte("test-secret")}
	return h, mock, func() { db.Close() }
}

func postJSON(e *echo.Echo, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

func TestSignupCreatesTeamAndUser(t *testing.T) {
	e := echo.New()
	h, mock, done := newAuthHandler(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO teams`).
		WithArgs("Acme Sales").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("team-1"))
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("team-1", "Ada", "ada@example.com", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("user-1"))

	ctx, rec := postJSON(e, "/api/auth/signup",
		`{"name":"Ada","email":"ada@example.com","password":"hunter2hunter2","team_name":"Acme Sales"}`)
	if err := h.signup(ctx); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp IDResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != "user-1" {
		t.Fatalf("id = %s", resp.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	e := echo.New()
	h, mock, done := newAuthHandler(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO teams`).
		WithArgs("Ada").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("team-1"))
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("team-1", "Ada", "ada@example.com", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	ctx, _ := postJSON(e, "/api/auth/signup",
		`{"name":"Ada","email":"ada@example.com","password":"hunter2hunter2"}`)
	err := h.signup(ctx)
	if code := httpCode(t, err); code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", code)
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	e := echo.New()
	h, _, done := newAuthHandler(t)
	defer done()

	ctx, _ := postJSON(e, "/api/auth/signup", `{"name":"Ada","email":"ada@example.com","password":"short"}`)
	if code := httpCode(t, h.signup(ctx)); code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}

func TestLoginIssuesTokenAndCookie(t *testing.T) {
	e := echo.New()
	h, mock, done := newAuthHandler(t)
	defer done()

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	now := time.Now()
	mock.ExpectQuery(`SELECT id, team_id, name, email, password_hash, created_at FROM users WHERE email=\$1`).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "name", "email", "password_hash", "created_at"}).
			AddRow("user-1", "team-1", "Ada", "ada@example.com", string(hash), now))

	ctx, rec := postJSON(e, "/api/auth/login", `{"email":"ada@example.com","password":"hunter2hunter2"}`)
	if err := h.login(ctx); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	if got := rec.Header().Get("Authorization"); got != "Bearer "+resp.Token {
		t.Fatalf("authorization header = %q", got)
	}

	var cookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "auth" {
			cookie = ck
		}
	}
	if cookie == nil || cookie.Value != resp.Token || !cookie.HttpOnly {
		t.Fatalf("cookie = %+v", cookie)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	e := echo.New()
	h, mock, done := newAuthHandler(t)
	defer done()

	hash, err := bcrypt.GenerateFromPassword([]byte("the-right-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mock.ExpectQuery(`SELECT id, team_id, name, email, password_hash, created_at FROM users WHERE email=\$1`).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "name", "email", "password_hash", "created_at"}).
			AddRow("user-1", "team-1", "Ada", "ada@example.com", string(hash), time.Now()))

	ctx, _ := postJSON(e, "/api/auth/login", `{"email":"ada@example.com","password":"wrong-password"}`)
	if code := httpCode(t, h.login(ctx)); code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	e := echo.New()
	h, mock, done := newAuthHandler(t)
	defer done()

	mock.ExpectQuery(`SELECT id, team_id, name, email, password_hash, created_at FROM users WHERE email=\$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "name", "email", "password_hash", "created_at"}))

	ctx, _ := postJSON(e, "/api/auth/login", `{"email":"nobody@example.com","password":"hunter2hunter2"}`)
	if code := httpCode(t, h.login(ctx)); code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", code)
	}
}
