// Package store is the Postgres persistence layer. All writes the cycle
// orchestrator performs go through here; it is the serialization point
// between concurrently running sessions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/aquaregiaswarm-blip/scout/internal/agent/core"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailTaken is returned when signup hits the unique email constraint.
var ErrEmailTaken = errors.New("email already registered")

type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.DB.Close() }

// User is one account row.
type User struct {
	ID           string
	TeamID       string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Company is one target-company row.
type Company struct {
	ID        string
	TeamID    string
	Name      string
	Industry  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Initiative is one research-initiative row.
type Initiative struct {
	ID                string
	CompanyID         string
	Name              string
	Description       string
	DiscoveredByAgent bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session is one research-session row.
type Session struct {
	ID               string
	InitiativeID     string
	TriggeredBy      string
	Status           string
	FollowUpQuestion string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	ErrorMessage     string
}

// Cycle is one research-cycle row.
type Cycle struct {
	ID               string
	SessionID        string
	Number           int
	Plan             json.RawMessage
	Confidence       json.RawMessage
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// PathRow is one research-path row.
type PathRow struct {
	ID           string
	CycleID      string
	AssignmentID string
	Topic        string
	Category     string
	Instructions string
	Status       string
	Reasoning    string
	ToolsUsed    int
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// FindingRow is one persisted finding.
type FindingRow struct {
	ID           string
	PathID       string
	InitiativeID string
	Category     string
	Content      json.RawMessage
	SourceURL    string
	Confidence   float64
	CreatedAt    time.Time
}

// Dashboard is the presentation-ready aggregate for an initiative.
type Dashboard struct {
	ID              string
	InitiativeID    string
	Content         json.RawMessage
	Recommendations json.RawMessage
	UpdatedAt       time.Time
}

// PortfolioRow is one vendor-portfolio row.
type PortfolioRow struct {
	ID               string
	TeamID           string
	VendorName       string
	PartnershipLevel string
	Capabilities     []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ---- User and team operations ----

// CreateTeam inserts a team and returns its id.
func (s *Store) CreateTeam(ctx context.Context, name string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO teams (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create team: %w", err)
	}
	return id, nil
}

// CreateUser inserts a user. A duplicate email maps to ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, teamID, name, email, passwordHash string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO users (team_id, name, email, password_hash) VALUES ($1,$2,$3,$4) RETURNING id`,
		teamID, name, email, passwordHash).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail looks a user up for login.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, team_id, name, email, password_hash, created_at FROM users WHERE email=$1`,
		email).Scan(&u.ID, &u.TeamID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUser loads a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, team_id, name, email, password_hash, created_at FROM users WHERE id=$1`,
		id).Scan(&u.ID, &u.TeamID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ---- Company operations ----

// CreateCompany inserts a company profile for a team.
func (s *Store) CreateCompany(ctx context.Context, teamID, name, industry string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO company_profiles (team_id, company_name, industry) VALUES ($1,$2,$3) RETURNING id`,
		teamID, name, nullable(industry)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create company: %w", err)
	}
	return id, nil
}

// ListCompanies returns a team's companies, excluding soft-deleted rows.
func (s *Store) ListCompanies(ctx context.Context, teamID string) ([]Company, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, team_id, company_name, COALESCE(industry,''), created_at, updated_at
		 FROM company_profiles WHERE team_id=$1 AND deleted_at IS NULL ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.TeamID, &c.Name, &c.Industry, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCompany loads one company scoped to a team.
func (s *Store) GetCompany(ctx context.Context, teamID, id string) (Company, error) {
	var c Company
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, team_id, company_name, COALESCE(industry,''), created_at, updated_at
		 FROM company_profiles WHERE id=$1 AND team_id=$2 AND deleted_at IS NULL`, id, teamID).
		Scan(&c.ID, &c.TeamID, &c.Name, &c.Industry, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Company{}, ErrNotFound
	}
	if err != nil {
		return Company{}, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

// DeleteCompany soft-deletes a company.
func (s *Store) DeleteCompany(ctx context.Context, teamID, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE company_profiles SET deleted_at=now() WHERE id=$1 AND team_id=$2 AND deleted_at IS NULL`,
		id, teamID)
	if err != nil {
		return fmt.Errorf("delete company: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- Initiative operations ----

// CreateInitiative inserts an initiative under a company.
func (s *Store) CreateInitiative(ctx context.Context, companyID, name, description string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO initiatives (company_profile_id, name, description) VALUES ($1,$2,$3) RETURNING id`,
		companyID, name, nullable(description)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create initiative: %w", err)
	}
	return id, nil
}

// ListInitiatives returns a company's initiatives.
func (s *Store) ListInitiatives(ctx context.Context, companyID string) ([]Initiative, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, company_profile_id, name, COALESCE(description,''), discovered_by_agent, created_at, updated_at
		 FROM initiatives WHERE company_profile_id=$1 ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list initiatives: %w", err)
	}
	defer rows.Close()

	var out []Initiative
	for rows.Next() {
		var it Initiative
		if err := rows.Scan(&it.ID, &it.CompanyID, &it.Name, &it.Description, &it.DiscoveredByAgent, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan initiative: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetInitiative loads one initiative.
func (s *Store) GetInitiative(ctx context.Context, id string) (Initiative, error) {
	var it Initiative
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, company_profile_id, name, COALESCE(description,''), discovered_by_agent, created_at, updated_at
		 FROM initiatives WHERE id=$1`, id).
		Scan(&it.ID, &it.CompanyID, &it.Name, &it.Description, &it.DiscoveredByAgent, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Initiative{}, ErrNotFound
	}
	if err != nil {
		return Initiative{}, fmt.Errorf("get initiative: %w", err)
	}
	return it, nil
}

// ---- Portfolio operations ----

// CreatePortfolioItem inserts one vendor partnership for a team.
func (s *Store) CreatePortfolioItem(ctx context.Context, teamID, vendorName, partnershipLevel string, capabilities []string) (string, error) {
	caps, err := json.Marshal(capabilities)
	if err != nil {
		return "", fmt.Errorf("marshal capabilities: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx,
		`INSERT INTO portfolio_items (team_id, vendor_name, partnership_level, capabilities)
		 VALUES ($1,$2,$3,$4) RETURNING id`,
		teamID, vendorName, nullable(partnershipLevel), caps).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create portfolio item: %w", err)
	}
	return id, nil
}

// ListPortfolio returns a team's portfolio rows.
func (s *Store) ListPortfolio(ctx context.Context, teamID string) ([]PortfolioRow, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, team_id, vendor_name, COALESCE(partnership_level,''), COALESCE(capabilities,'[]'::jsonb), created_at, updated_at
		 FROM portfolio_items WHERE team_id=$1 ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list portfolio: %w", err)
	}
	defer rows.Close()

	var out []PortfolioRow
	for rows.Next() {
		var p PortfolioRow
		var caps []byte
		if err := rows.Scan(&p.ID, &p.TeamID, &p.VendorName, &p.PartnershipLevel, &caps, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan portfolio item: %w", err)
		}
		if err := json.Unmarshal(caps, &p.Capabilities); err != nil {
			return nil, fmt.Errorf("decode capabilities: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePortfolioItem removes one vendor partnership.
func (s *Store) DeletePortfolioItem(ctx context.Context, teamID, id string) error {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM portfolio_items WHERE id=$1 AND team_id=$2`, id, teamID)
	if err != nil {
		return fmt.Errorf("delete portfolio item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPortfolioItems implements core.SessionStore for the synthesizer's
// recommendation pass.
func (s *Store) ListPortfolioItems(ctx context.Context, teamID string) ([]core.PortfolioItem, error) {
	rows, err := s.ListPortfolio(ctx, teamID)
	if err != nil {
		return nil, err
	}
	out := make([]core.PortfolioItem, 0, len(rows))
	for _, p := range rows {
		out = append(out, core.PortfolioItem{
			VendorName:       p.VendorName,
			PartnershipLevel: p.PartnershipLevel,
			Capabilities:     p.Capabilities,
		})
	}
	return out, nil
}

// ---- Session operations ----

// CreateSession inserts a pending session for an initiative.
func (s *Store) CreateSession(ctx context.Context, initiativeID, userID, followUpQuestion string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO research_sessions (initiative_id, triggered_by, status, follow_up_question)
		 VALUES ($1,$2,'pending',$3) RETURNING id`,
		initiativeID, userID, nullable(followUpQuestion)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, initiative_id, triggered_by, status, COALESCE(follow_up_question,''), started_at, completed_at, COALESCE(error_message,'')
		 FROM research_sessions WHERE id=$1`, id).
		Scan(&sess.ID, &sess.InitiativeID, &sess.TriggeredBy, &sess.Status, &sess.FollowUpQuestion, &sess.StartedAt, &sess.CompletedAt, &sess.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns an initiative's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, initiativeID string) ([]Session, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, initiative_id, triggered_by, status, COALESCE(follow_up_question,''), started_at, completed_at, COALESCE(error_message,'')
		 FROM research_sessions WHERE initiative_id=$1 ORDER BY started_at DESC NULLS LAST`, initiativeID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.InitiativeID, &sess.TriggeredBy, &sess.Status, &sess.FollowUpQuestion, &sess.StartedAt, &sess.CompletedAt, &sess.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// RequestStop flips a running or pending session to stopped. The flip is
// advisory: the orchestrator notices it between cycles.
func (s *Store) RequestStop(ctx context.Context, sessionID string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE research_sessions SET status='stopped' WHERE id=$1 AND status IN ('pending','running')`,
		sessionID)
	if err != nil {
		return fmt.Errorf("request stop: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// StopPath flips one active path to stopped.
func (s *Store) StopPath(ctx context.Context, pathID string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE research_paths SET status='stopped', completed_at=now() WHERE id=$1 AND status='active'`,
		pathID)
	if err != nil {
		return fmt.Errorf("stop path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- core.SessionStore: orchestrator persistence ----

// GetSessionContext loads the denormalized session view the orchestrator
// works on.
func (s *Store) GetSessionContext(ctx context.Context, sessionID string) (core.SessionContext, error) {
	var sc core.SessionContext
	err := s.DB.QueryRowContext(ctx, `
		SELECT rs.id, rs.status, COALESCE(rs.follow_up_question,''),
		       i.id, i.name, COALESCE(i.description,''),
		       c.id, c.company_name, COALESCE(c.industry,''), c.team_id
		FROM research_sessions rs
		JOIN initiatives i ON i.id = rs.initiative_id
		JOIN company_profiles c ON c.id = i.company_profile_id
		WHERE rs.id = $1`, sessionID).
		Scan(&sc.SessionID, &sc.Status, &sc.FollowUpQuestion,
			&sc.InitiativeID, &sc.InitiativeName, &sc.InitiativeDescription,
			&sc.CompanyID, &sc.CompanyName, &sc.Industry, &sc.TeamID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.SessionContext{}, ErrNotFound
	}
	if err != nil {
		return core.SessionContext{}, fmt.Errorf("get session context: %w", err)
	}
	return sc, nil
}

// StartSession marks a session running.
func (s *Store) StartSession(ctx context.Context, sessionID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE research_sessions SET status='running', started_at=now() WHERE id=$1`, sessionID)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// FinishSession records the terminal status and optional error message.
func (s *Store) FinishSession(ctx context.Context, sessionID, status string, errMsg *string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE research_sessions SET status=$2, completed_at=now(), error_message=$3 WHERE id=$1`,
		sessionID, status, errMsg)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// SessionStatus reads the current persisted status.
func (s *Store) SessionStatus(ctx context.Context, sessionID string) (string, error) {
	var status string
	err := s.DB.QueryRowContext(ctx,
		`SELECT status FROM research_sessions WHERE id=$1`, sessionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session status: %w", err)
	}
	return status, nil
}

// CreateCycle inserts a cycle row and returns its id.
func (s *Store) CreateCycle(ctx context.Context, sessionID string, number int) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO research_cycles (research_session_id, cycle_number) VALUES ($1,$2) RETURNING id`,
		sessionID, number).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create cycle: %w", err)
	}
	return id, nil
}

// SaveCyclePlan persists the planner's raw plan on the cycle.
func (s *Store) SaveCyclePlan(ctx context.Context, cycleID string, plan core.ResearchPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE research_cycles SET prime_agent_plan=$2 WHERE id=$1`, cycleID, raw)
	if err != nil {
		return fmt.Errorf("save cycle plan: %w", err)
	}
	return nil
}

// CompleteCycle stamps completion and the confidence snapshot.
func (s *Store) CompleteCycle(ctx context.Context, cycleID string, confidence map[string]string) error {
	raw, err := json.Marshal(confidence)
	if err != nil {
		return fmt.Errorf("marshal confidence: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`UPDATE research_cycles SET confidence_assessment=$2, completed_at=now() WHERE id=$1`, cycleID, raw)
	if err != nil {
		return fmt.Errorf("complete cycle: %w", err)
	}
	return nil
}

// CreatePath inserts an active path row for one planned item.
func (s *Store) CreatePath(ctx context.Context, cycleID string, p core.PlannedPath) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO research_paths (research_cycle_id, assignment_id, topic, category, instructions, status)
		 VALUES ($1,$2,$3,$4,$5,'active') RETURNING id`,
		cycleID, p.ID, p.Topic, p.Category, nullable(p.Instructions)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create path: %w", err)
	}
	return id, nil
}

// CompletePath records the outcome of one executed path.
func (s *Store) CompletePath(ctx context.Context, pathID, status string, toolCalls int, reasoning string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE research_paths SET status=$2, tools_used=$3, reasoning=$4, completed_at=now() WHERE id=$1`,
		pathID, status, toolCalls, nullable(reasoning))
	if err != nil {
		return fmt.Errorf("complete path: %w", err)
	}
	return nil
}

// InsertFinding persists one finding and returns its id.
func (s *Store) InsertFinding(ctx context.Context, pathID, initiativeID string, f core.Finding) (string, error) {
	content, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("marshal finding: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx,
		`INSERT INTO research_findings (research_path_id, initiative_id, category, content, source_url, source_type, confidence_score)
		 VALUES ($1,$2,$3,$4,$5,'web',$6) RETURNING id`,
		pathID, initiativeID, string(f.Category), content, nullable(f.SourceURL), f.Confidence).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert finding: %w", err)
	}
	return id, nil
}

// ListFindings returns an initiative's findings, newest first.
func (s *Store) ListFindings(ctx context.Context, initiativeID string) ([]FindingRow, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, research_path_id, initiative_id, category, content, COALESCE(source_url,''), confidence_score, created_at
		 FROM research_findings WHERE initiative_id=$1 ORDER BY created_at DESC`, initiativeID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []FindingRow
	for rows.Next() {
		var f FindingRow
		if err := rows.Scan(&f.ID, &f.PathID, &f.InitiativeID, &f.Category, &f.Content, &f.SourceURL, &f.Confidence, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpsertDashboard overwrites the initiative's dashboard aggregate. The
// aggregate is a pure function of accumulated findings, so overwriting is
// idempotent.
func (s *Store) UpsertDashboard(ctx context.Context, initiativeID string, content map[string]interface{}, recommendations []core.Recommendation) (string, error) {
	rawContent, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal dashboard content: %w", err)
	}
	rawRecs, err := json.Marshal(recommendations)
	if err != nil {
		return "", fmt.Errorf("marshal recommendations: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `
		INSERT INTO dashboard_content (initiative_id, content, portfolio_recommendations)
		VALUES ($1,$2,$3)
		ON CONFLICT (initiative_id) DO UPDATE
		SET content=EXCLUDED.content, portfolio_recommendations=EXCLUDED.portfolio_recommendations, updated_at=now()
		RETURNING id`,
		initiativeID, rawContent, rawRecs).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert dashboard: %w", err)
	}
	return id, nil
}

// GetDashboard loads the initiative's dashboard aggregate.
func (s *Store) GetDashboard(ctx context.Context, initiativeID string) (Dashboard, error) {
	var d Dashboard
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, initiative_id, content, COALESCE(portfolio_recommendations,'[]'::jsonb), updated_at
		 FROM dashboard_content WHERE initiative_id=$1`, initiativeID).
		Scan(&d.ID, &d.InitiativeID, &d.Content, &d.Recommendations, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Dashboard{}, ErrNotFound
	}
	if err != nil {
		return Dashboard{}, fmt.Errorf("get dashboard: %w", err)
	}
	return d, nil
}

// CountDiscoveredInitiatives counts agent-discovered initiatives for a
// company, enforcing the discovery cap.
func (s *Store) CountDiscoveredInitiatives(ctx context.Context, companyID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM initiatives WHERE company_profile_id=$1 AND discovered_by_agent=TRUE`,
		companyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count discovered initiatives: %w", err)
	}
	return n, nil
}

// CreateDiscoveredInitiative inserts an agent-discovered initiative.
func (s *Store) CreateDiscoveredInitiative(ctx context.Context, companyID, name, description string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO initiatives (company_profile_id, name, description, discovered_by_agent)
		 VALUES ($1,$2,$3,TRUE) RETURNING id`,
		companyID, name, description).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create discovered initiative: %w", err)
	}
	return id, nil
}

// ListStaleInitiatives returns initiatives whose dashboard has not been
// refreshed since the cutoff, for the scheduled refresh pass.
func (s *Store) ListStaleInitiatives(ctx context.Context, cutoff time.Time, limit int) ([]Initiative, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT i.id, i.company_profile_id, i.name, COALESCE(i.description,''), i.discovered_by_agent, i.created_at, i.updated_at
		FROM initiatives i
		JOIN dashboard_content d ON d.initiative_id = i.id
		WHERE d.updated_at < $1
		  AND NOT EXISTS (
		      SELECT 1 FROM research_sessions rs
		      WHERE rs.initiative_id = i.id AND rs.status IN ('pending','running'))
		ORDER BY d.updated_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale initiatives: %w", err)
	}
	defer rows.Close()

	var out []Initiative
	for rows.Next() {
		var it Initiative
		if err := rows.Scan(&it.ID, &it.CompanyID, &it.Name, &it.Description, &it.DiscoveredByAgent, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stale initiative: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SystemUserForInitiative picks a user on the owning team to attribute
// scheduled refresh sessions to.
func (s *Store) SystemUserForInitiative(ctx context.Context, initiativeID string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
		SELECT u.id FROM users u
		JOIN company_profiles c ON c.team_id = u.team_id
		JOIN initiatives i ON i.company_profile_id = c.id
		WHERE i.id = $1
		ORDER BY u.created_at ASC LIMIT 1`, initiativeID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("system user for initiative: %w", err)
	}
	return id, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
