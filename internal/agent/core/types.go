package core

import (
	"context"
	"time"
)

// FindingCategory is one of the six fixed intelligence categories.
type FindingCategory string

const (
	CategoryPeople      FindingCategory = "people"
	CategoryInitiative  FindingCategory = "initiative"
	CategoryTechnology  FindingCategory = "technology"
	CategoryCompetitive FindingCategory = "competitive"
	CategoryFinancial   FindingCategory = "financial"
	CategoryMarket      FindingCategory = "market"
)

// Categories returns all finding categories in canonical order.
func Categories() []FindingCategory {
	return []FindingCategory{
		CategoryPeople,
		CategoryInitiative,
		CategoryTechnology,
		CategoryCompetitive,
		CategoryFinancial,
		CategoryMarket,
	}
}

// ValidCategory reports whether s names a known category.
func ValidCategory(s string) bool {
	switch FindingCategory(s) {
	case CategoryPeople, CategoryInitiative, CategoryTechnology,
		CategoryCompetitive, CategoryFinancial, CategoryMarket:
		return true
	}
	return false
}

// ConfidenceLevel is an ordinal confidence rank for a category.
type ConfidenceLevel string

const (
	ConfidenceNone       ConfidenceLevel = "none"
	ConfidenceLow        ConfidenceLevel = "low"
	ConfidenceMedium     ConfidenceLevel = "medium"
	ConfidenceHigh       ConfidenceLevel = "high"
	ConfidenceSufficient ConfidenceLevel = "sufficient"
)

// Rank maps a confidence level onto its ordinal value. Unknown levels rank as none.
func (l ConfidenceLevel) Rank() int {
	switch l {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	case ConfidenceSufficient:
		return 4
	default:
		return 0
	}
}

// MaxLevel returns the higher-ranked of two confidence levels.
func MaxLevel(a, b ConfidenceLevel) ConfidenceLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ConfidenceAssessment maps each category to its current confidence level.
type ConfidenceAssessment map[FindingCategory]ConfidenceLevel

// NewConfidenceAssessment returns an assessment with every category at none.
func NewConfidenceAssessment() ConfidenceAssessment {
	a := make(ConfidenceAssessment, 6)
	for _, c := range Categories() {
		a[c] = ConfidenceNone
	}
	return a
}

// Clone returns an independent copy of the assessment.
func (a ConfidenceAssessment) Clone() ConfidenceAssessment {
	out := make(ConfidenceAssessment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Strings renders the assessment with plain string keys for JSON persistence.
func (a ConfidenceAssessment) Strings() map[string]string {
	out := make(map[string]string, len(a))
	for k, v := range a {
		out[string(k)] = string(v)
	}
	return out
}

// Session statuses.
const (
	SessionPending   = "pending"
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionStopped   = "stopped"
	SessionFailed    = "failed"
)

// Path statuses.
const (
	PathActive    = "active"
	PathCompleted = "completed"
	PathStopped   = "stopped"
	PathExhausted = "exhausted"
	PathError     = "error"
)

// PlannedPath is one research assignment produced by the planner.
type PlannedPath struct {
	ID           string `json:"id"`
	Topic        string `json:"topic"`
	Priority     string `json:"priority"`
	Category     string `json:"category"`
	Instructions string `json:"instructions"`
}

// ResearchPlan is the planner's output for one cycle.
type ResearchPlan struct {
	Analysis       string            `json:"analysis"`
	Paths          []PlannedPath     `json:"research_paths"`
	Confidence     map[string]string `json:"confidence_assessment"`
	ShouldContinue bool              `json:"should_continue"`
	Reasoning      string            `json:"reasoning"`
}

// Finding is one atomic piece of extracted intelligence.
type Finding struct {
	Category   FindingCategory `json:"category"`
	Summary    string          `json:"summary"`
	Details    string          `json:"details"`
	SourceURL  string          `json:"source_url,omitempty"`
	Confidence float64         `json:"confidence"`
}

// PathResult is the outcome of executing a single research path.
type PathResult struct {
	PathID            string          `json:"path_id"`
	Topic             string          `json:"topic"`
	Category          FindingCategory `json:"category"`
	Status            string          `json:"status"`
	Findings          []Finding       `json:"findings"`
	TangentialSignals []string        `json:"tangential_signals,omitempty"`
	SearchExhausted   bool            `json:"search_exhausted"`
	ToolCalls         int             `json:"tool_calls"`
	Turns             int             `json:"turns"`
	Error             string          `json:"error,omitempty"`
	RawResponse       string          `json:"raw_response,omitempty"`
}

// TangentialInitiative is a synthesis-level candidate for a separate initiative.
type TangentialInitiative struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

// Synthesis is the merged, presentation-ready intelligence structure.
type Synthesis struct {
	Categories            map[string]map[string]interface{} `json:"categories"`
	TangentialInitiatives []TangentialInitiative            `json:"tangential_initiatives,omitempty"`
	OverallAssessment     string                            `json:"overall_assessment"`
}

// PortfolioItem is one vendor partnership in a team's portfolio.
type PortfolioItem struct {
	VendorName       string   `json:"vendor_name"`
	PartnershipLevel string   `json:"partnership_level,omitempty"`
	Capabilities     []string `json:"capabilities,omitempty"`
}

// Recommendation ranks a portfolio vendor against synthesized intelligence.
type Recommendation struct {
	Vendor             string   `json:"vendor"`
	Capability         string   `json:"capability"`
	Relevance          string   `json:"relevance"`
	SupportingFindings []string `json:"supporting_findings,omitempty"`
}

// SessionContext is the denormalized view of a session the orchestrator works on.
type SessionContext struct {
	SessionID             string
	Status                string
	FollowUpQuestion      string
	InitiativeID          string
	InitiativeName        string
	InitiativeDescription string
	CompanyID             string
	CompanyName           string
	Industry              string
	TeamID                string
}

// FindingRecord pairs a persisted finding with its identifiers for indexing.
type FindingRecord struct {
	ID           string
	PathID       string
	InitiativeID string
	Finding      Finding
	CreatedAt    time.Time
}

// SessionStore is the persistence surface the cycle orchestrator drives.
// Implemented by internal/store; faked in tests.
type SessionStore interface {
	GetSessionContext(ctx context.Context, sessionID string) (SessionContext, error)
	StartSession(ctx context.Context, sessionID string) error
	FinishSession(ctx context.Context, sessionID, status string, errMsg *string) error
	SessionStatus(ctx context.Context, sessionID string) (string, error)

	CreateCycle(ctx context.Context, sessionID string, number int) (string, error)
	SaveCyclePlan(ctx context.Context, cycleID string, plan ResearchPlan) error
	CompleteCycle(ctx context.Context, cycleID string, confidence map[string]string) error

	CreatePath(ctx context.Context, cycleID string, p PlannedPath) (string, error)
	CompletePath(ctx context.Context, pathID, status string, toolCalls int, reasoning string) error

	InsertFinding(ctx context.Context, pathID, initiativeID string, f Finding) (string, error)

	ListPortfolioItems(ctx context.Context, teamID string) ([]PortfolioItem, error)
	UpsertDashboard(ctx context.Context, initiativeID string, content map[string]interface{}, recommendations []Recommendation) (string, error)

	CountDiscoveredInitiatives(ctx context.Context, companyID string) (int, error)
	CreateDiscoveredInitiative(ctx context.Context, companyID, name, description string) (string, error)
}

// ProgressPublisher delivers progress events to session subscribers.
// Publishing is best-effort: implementations log and swallow failures.
type ProgressPublisher interface {
	Publish(ctx context.Context, sessionID, eventType string, data map[string]interface{})
}

// FindingIndexer receives persisted findings for full-text search.
type FindingIndexer interface {
	IndexFinding(rec FindingRecord) error
}
