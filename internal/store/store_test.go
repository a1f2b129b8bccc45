package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/aquaregiaswarm-blip/scout/internal/agent/core"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &Store{DB: db}, mock, func() { db.Close() }
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (team_id, name, email, password_hash) VALUES ($1,$2,$3,$4) RETURNING id`)).
		WithArgs("team-1", "Ada", "ada@example.com", "hash").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := st.CreateUser(context.Background(), "team-1", "Ada", "ada@example.com", "hash")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetUserByEmailNotFound(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT id, team_id, name, email, password_hash, created_at FROM users WHERE email=\$1`).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "name", "email", "password_hash", "created_at"}))

	_, err := st.GetUserByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRequestStop(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	query := regexp.QuoteMeta(`UPDATE research_sessions SET status='stopped' WHERE id=$1 AND status IN ('pending','running')`)

	mock.ExpectExec(query).WithArgs("sess-1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.RequestStop(context.Background(), "sess-1"); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}

	// Already-finished session matches no rows.
	mock.ExpectExec(query).WithArgs("sess-2").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := st.RequestStop(context.Background(), "sess-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteCompanySoftDelete(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	query := regexp.QuoteMeta(`UPDATE company_profiles SET deleted_at=now() WHERE id=$1 AND team_id=$2 AND deleted_at IS NULL`)

	mock.ExpectExec(query).WithArgs("comp-1", "team-1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.DeleteCompany(context.Background(), "team-1", "comp-1"); err != nil {
		t.Fatalf("DeleteCompany: %v", err)
	}

	mock.ExpectExec(query).WithArgs("comp-1", "team-1").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := st.DeleteCompany(context.Background(), "team-1", "comp-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestGetSessionContext(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	cols := []string{"id", "status", "follow_up_question", "i_id", "i_name", "i_desc", "c_id", "c_name", "industry", "team_id"}
	mock.ExpectQuery(`FROM research_sessions rs`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("sess-1", "pending", "what changed?", "init-1", "Cloud Migration", "ERP to cloud", "comp-1", "Acme", "manufacturing", "team-1"))

	sc, err := st.GetSessionContext(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSessionContext: %v", err)
	}
	if sc.SessionID != "sess-1" || sc.InitiativeName != "Cloud Migration" || sc.CompanyName != "Acme" || sc.TeamID != "team-1" {
		t.Fatalf("unexpected context: %+v", sc)
	}
	if sc.FollowUpQuestion != "what changed?" {
		t.Fatalf("follow-up = %q", sc.FollowUpQuestion)
	}
}

func TestUpsertDashboard(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO dashboard_content`).
		WithArgs("init-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("dash-1"))

	id, err := st.UpsertDashboard(context.Background(), "init-1",
		map[string]interface{}{"executive_summary": "s"},
		[]core.Recommendation{{Vendor: "Vendor", Capability: "crm", Relevance: "fit"}})
	if err != nil {
		t.Fatalf("UpsertDashboard: %v", err)
	}
	if id != "dash-1" {
		t.Fatalf("id = %s", id)
	}
}

func TestListPortfolioDecodesCapabilities(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`FROM portfolio_items WHERE team_id=\$1`).
		WithArgs("team-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "team_id", "vendor_name", "partnership_level", "capabilities", "created_at", "updated_at"}).
			AddRow("p-1", "team-1", "Vendor", "gold", []byte(`["crm","analytics"]`), now, now))

	rows, err := st.ListPortfolio(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("ListPortfolio: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if len(rows[0].Capabilities) != 2 || rows[0].Capabilities[0] != "crm" {
		t.Fatalf("capabilities = %v", rows[0].Capabilities)
	}
}

func TestCreateSessionDefaultsPending(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO research_sessions`).
		WithArgs("init-1", "user-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1"))

	id, err := st.CreateSession(context.Background(), "init-1", "user-1", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id != "sess-1" {
		t.Fatalf("id = %s", id)
	}
}

func TestStopPathOnlyWhenActive(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	query := regexp.QuoteMeta(`UPDATE research_paths SET status='stopped', completed_at=now() WHERE id=$1 AND status='active'`)

	mock.ExpectExec(query).WithArgs("path-1").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := st.StopPath(context.Background(), "path-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
