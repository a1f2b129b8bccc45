package core

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var orchestratorTracer trace.Tracer = otel.Tracer("scout/internal/agent/orchestrator")

// Limits on tangential-initiative discovery.
const (
	minTangentialSignalLen     = 30
	maxTangentialPerCycle      = 3
	maxDiscoveredPerCompany    = 5
	discoveredInitiativeMaxLen = 100
)

// Orchestrator drives the plan → research → synthesize cycle loop for one
// session at a time. Multiple orchestrators may run concurrently; the store
// is the only shared state.
type Orchestrator struct {
	planner     *Planner
	researcher  *Researcher
	synthesizer *Synthesizer
	store       SessionStore
	publisher   ProgressPublisher
	indexer     FindingIndexer
	maxCycles   int
	logger      *log.Logger
}

// NewOrchestrator wires the agents to persistence and progress publishing.
// indexer may be nil when finding search is disabled.
func NewOrchestrator(planner *Planner, researcher *Researcher, synthesizer *Synthesizer, store SessionStore, publisher ProgressPublisher, indexer FindingIndexer, maxCycles int, logger *log.Logger) *Orchestrator {
	if maxCycles <= 0 {
		maxCycles = 5
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		planner:     planner,
		researcher:  researcher,
		synthesizer: synthesizer,
		store:       store,
		publisher:   publisher,
		indexer:     indexer,
		maxCycles:   maxCycles,
		logger:      logger,
	}
}

// Run executes a full research session. Any error escaping the cycle loop
// transitions the session to failed with the message recorded; that is the
// only path to the failed state.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) error {
	ctx, span := orchestratorTracer.Start(ctx, "agent.run_research",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := o.store.GetSessionContext(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	o.logger.Printf("starting research session %s for %s / %s", sessionID, sess.CompanyName, sess.InitiativeName)

	if err := o.store.StartSession(ctx, sessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("start session %s: %w", sessionID, err)
	}

	o.publisher.Publish(ctx, sessionID, "research_started", map[string]interface{}{
		"session_id": sessionID,
		"company":    sess.CompanyName,
		"initiative": sess.InitiativeName,
	})

	finalStatus, err := o.runCycles(ctx, sess)
	if err != nil {
		o.logger.Printf("research session %s failed: %v", sessionID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		msg := err.Error()
		if ferr := o.store.FinishSession(ctx, sessionID, SessionFailed, &msg); ferr != nil {
			o.logger.Printf("failed to mark session %s failed: %v", sessionID, ferr)
		}
		o.publisher.Publish(ctx, sessionID, "error", map[string]interface{}{
			"session_id": sessionID,
			"message":    msg,
		})
		return err
	}

	if err := o.store.FinishSession(ctx, sessionID, finalStatus, nil); err != nil {
		return fmt.Errorf("finish session %s: %w", sessionID, err)
	}
	o.publisher.Publish(ctx, sessionID, "research_complete", map[string]interface{}{
		"session_id": sessionID,
	})
	o.logger.Printf("research session %s finished with status %s", sessionID, finalStatus)
	return nil
}

// runCycles is the cycle loop proper. It returns the terminal session status
// for a controlled ending; any returned error is session-fatal.
func (o *Orchestrator) runCycles(ctx context.Context, sess SessionContext) (string, error) {
	findings := make(map[FindingCategory][]Finding, 6)
	confidence := NewConfidenceAssessment()
	var previous *Synthesis

	initiative := sess.InitiativeDescription
	if initiative == "" {
		initiative = sess.InitiativeName
	}

	for cycleNumber := 1; cycleNumber <= o.maxCycles; cycleNumber++ {
		// A stop request flips the persisted status; in-flight work from the
		// previous cycle has already landed, we just stop consuming it.
		status, err := o.store.SessionStatus(ctx, sess.SessionID)
		if err != nil {
			return "", fmt.Errorf("check session status: %w", err)
		}
		if status == SessionStopped {
			o.logger.Printf("session %s stopped before cycle %d", sess.SessionID, cycleNumber)
			return SessionStopped, nil
		}

		stop, err := o.runCycle(ctx, sess, initiative, cycleNumber, findings, confidence, &previous)
		if err != nil {
			return "", err
		}
		if stop {
			break
		}
	}
	return SessionCompleted, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, sess SessionContext, initiative string, cycleNumber int, findings map[FindingCategory][]Finding, confidence ConfidenceAssessment, previous **Synthesis) (bool, error) {
	ctx, span := orchestratorTracer.Start(ctx, "agent.research_cycle",
		trace.WithAttributes(
			attribute.String("session.id", sess.SessionID),
			attribute.Int("cycle.number", cycleNumber),
		))
	defer span.End()

	o.logger.Printf("session %s cycle %d/%d", sess.SessionID, cycleNumber, o.maxCycles)

	cycleID, err := o.store.CreateCycle(ctx, sess.SessionID, cycleNumber)
	if err != nil {
		return false, fmt.Errorf("create cycle %d: %w", cycleNumber, err)
	}
	o.publisher.Publish(ctx, sess.SessionID, "cycle_started", map[string]interface{}{
		"session_id":   sess.SessionID,
		"cycle_number": cycleNumber,
	})

	plan, err := o.planner.Plan(ctx, PlanRequest{
		CompanyName:      sess.CompanyName,
		Initiative:       initiative,
		Industry:         sess.Industry,
		FollowUpQuestion: sess.FollowUpQuestion,
		CycleNumber:      cycleNumber,
		MaxCycles:        o.maxCycles,
		Findings:         findings,
		Confidence:       confidence,
	})
	if err != nil {
		return false, fmt.Errorf("plan cycle %d: %w", cycleNumber, err)
	}
	if err := o.store.SaveCyclePlan(ctx, cycleID, plan); err != nil {
		return false, fmt.Errorf("save plan for cycle %d: %w", cycleNumber, err)
	}

	// A plan that declines to continue or comes back empty ends the session
	// cleanly; it is not a failure.
	if !plan.ShouldContinue || len(plan.Paths) == 0 {
		o.logger.Printf("planner ended session %s at cycle %d (continue=%v, paths=%d)",
			sess.SessionID, cycleNumber, plan.ShouldContinue, len(plan.Paths))
		if err := o.store.CompleteCycle(ctx, cycleID, confidence.Strings()); err != nil {
			return false, fmt.Errorf("complete cycle %d: %w", cycleNumber, err)
		}
		return true, nil
	}

	span.AddEvent("plan.complete", trace.WithAttributes(attribute.Int("plan.paths", len(plan.Paths))))

	pathIDs := make(map[string]string, len(plan.Paths))
	for _, p := range plan.Paths {
		id, err := o.store.CreatePath(ctx, cycleID, p)
		if err != nil {
			return false, fmt.Errorf("create path %s: %w", p.ID, err)
		}
		pathIDs[p.ID] = id
		o.publisher.Publish(ctx, sess.SessionID, "subagent_started", map[string]interface{}{
			"path_id":  id,
			"topic":    p.Topic,
			"priority": p.Priority,
		})
	}

	results := o.researcher.ExecutePaths(ctx, plan.Paths, sess.CompanyName)

	var tangential []string
	for _, res := range results {
		dbID := pathIDs[res.PathID]
		if err := o.store.CompletePath(ctx, dbID, res.Status, res.ToolCalls, res.Error); err != nil {
			return false, fmt.Errorf("complete path %s: %w", res.PathID, err)
		}

		for _, f := range res.Findings {
			findingID, err := o.store.InsertFinding(ctx, dbID, sess.InitiativeID, f)
			if err != nil {
				return false, fmt.Errorf("insert finding for path %s: %w", res.PathID, err)
			}
			findings[f.Category] = append(findings[f.Category], f)
			if o.indexer != nil {
				if err := o.indexer.IndexFinding(FindingRecord{ID: findingID, PathID: dbID, InitiativeID: sess.InitiativeID, Finding: f}); err != nil {
					o.logger.Printf("index finding %s: %v", findingID, err)
				}
			}
		}
		tangential = append(tangential, res.TangentialSignals...)

		o.publisher.Publish(ctx, sess.SessionID, "subagent_completed", map[string]interface{}{
			"path_id":            dbID,
			"topic":              res.Topic,
			"findings_count":     len(res.Findings),
			"tangential_signals": res.TangentialSignals,
		})
	}

	synthesis, err := o.synthesizer.Synthesize(ctx, sess.CompanyName, initiative, findings, *previous)
	if err != nil {
		return false, fmt.Errorf("synthesize cycle %d: %w", cycleNumber, err)
	}
	*previous = &synthesis

	fresh := AssessConfidence(findings, confidence)
	for cat, level := range fresh {
		confidence[cat] = level
	}
	if err := o.store.CompleteCycle(ctx, cycleID, confidence.Strings()); err != nil {
		return false, fmt.Errorf("complete cycle %d: %w", cycleNumber, err)
	}

	if err := o.updateDashboard(ctx, sess, synthesis, confidence); err != nil {
		return false, fmt.Errorf("update dashboard: %w", err)
	}

	newFindings := 0
	for _, res := range results {
		newFindings += len(res.Findings)
	}
	o.publisher.Publish(ctx, sess.SessionID, "synthesis_complete", map[string]interface{}{
		"cycle_number": cycleNumber,
		"new_findings": newFindings,
		"confidence":   confidence.Strings(),
	})

	if ShouldStop(confidence, cycleNumber, o.maxCycles) {
		o.logger.Printf("session %s stopping at cycle %d, confidence reached", sess.SessionID, cycleNumber)
		return true, nil
	}

	// Purely additive: a discovery failure is logged, never fatal.
	o.discoverInitiatives(ctx, sess, tangential)
	return false, nil
}

func (o *Orchestrator) updateDashboard(ctx context.Context, sess SessionContext, synthesis Synthesis, confidence ConfidenceAssessment) error {
	content := make(map[string]interface{}, 6)
	for _, cat := range Categories() {
		catData := synthesis.Categories[string(cat)]
		entry := map[string]interface{}{
			"summary":    "",
			"findings":   []interface{}{},
			"insights":   []interface{}{},
			"confidence": string(confidence[cat]),
		}
		for k, v := range catData {
			if k == "confidence" {
				continue
			}
			entry[k] = v
		}
		content[string(cat)] = entry
	}

	portfolio, err := o.store.ListPortfolioItems(ctx, sess.TeamID)
	if err != nil {
		return fmt.Errorf("list portfolio: %w", err)
	}
	recommendations, err := o.synthesizer.Recommend(ctx, synthesis, portfolio)
	if err != nil {
		return fmt.Errorf("portfolio recommendations: %w", err)
	}

	dashboardID, err := o.store.UpsertDashboard(ctx, sess.InitiativeID, content, recommendations)
	if err != nil {
		return fmt.Errorf("upsert dashboard: %w", err)
	}

	o.publisher.Publish(ctx, sess.SessionID, "findings_updated", map[string]interface{}{
		"initiative_id": sess.InitiativeID,
		"dashboard_content": map[string]interface{}{
			"id":                        dashboardID,
			"initiative_id":             sess.InitiativeID,
			"content":                   content,
			"portfolio_recommendations": recommendations,
		},
	})
	return nil
}

// discoverInitiatives turns substantial tangential signals into new
// discovered-initiative records, capped per cycle and per company.
func (o *Orchestrator) discoverInitiatives(ctx context.Context, sess SessionContext, signals []string) {
	created := 0
	for _, signal := range signals {
		if created >= maxTangentialPerCycle {
			return
		}
		if len(signal) < minTangentialSignalLen {
			continue
		}
		existing, err := o.store.CountDiscoveredInitiatives(ctx, sess.CompanyID)
		if err != nil {
			o.logger.Printf("count discovered initiatives: %v", err)
			return
		}
		if existing >= maxDiscoveredPerCompany {
			return
		}

		name := signal
		if len(name) > discoveredInitiativeMaxLen {
			name = name[:discoveredInitiativeMaxLen]
		}
		id, err := o.store.CreateDiscoveredInitiative(ctx, sess.CompanyID, name, signal)
		if err != nil {
			o.logger.Printf("create discovered initiative: %v", err)
			return
		}
		created++

		o.publisher.Publish(ctx, sess.SessionID, "initiative_discovered", map[string]interface{}{
			"initiative_id":   id,
			"initiative_name": name,
			"description":     signal,
		})
	}
}
