package core

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const plannerSystemPrompt = `You are the planning agent for a sales intelligence platform.

Your role is to:
1. Analyze the research target (company + initiative)
2. Plan research paths for sub-agents to execute
3. Assess confidence levels for each intelligence category
4. Decide when to continue research or stop

INTELLIGENCE CATEGORIES:
- people: Key decision-makers, org structure, hiring patterns
- initiative: Project details, timeline, scope, status
- technology: Current stack, planned changes, vendors
- competitive: Other vendors involved, RFP/competitive dynamics
- financial: Budget signals, fiscal year, spending patterns
- market: Industry trends, regulatory factors, market position

OUTPUT FORMAT (JSON):
{
    "analysis": "Brief analysis of the current intelligence state",
    "research_paths": [
        {
            "id": "path_1",
            "topic": "Search topic or question",
            "priority": "high" | "medium" | "low",
            "category": "people" | "initiative" | "technology" | "competitive" | "financial" | "market",
            "instructions": "Specific instructions for the research sub-agent"
        }
    ],
    "confidence_assessment": {
        "people": "none" | "low" | "medium" | "high" | "sufficient",
        "initiative": "none" | "low" | "medium" | "high" | "sufficient",
        "technology": "none" | "low" | "medium" | "high" | "sufficient",
        "competitive": "none" | "low" | "medium" | "high" | "sufficient",
        "financial": "none" | "low" | "medium" | "high" | "sufficient",
        "market": "none" | "low" | "medium" | "high" | "sufficient"
    },
    "should_continue": true | false,
    "reasoning": "Why we should continue or stop"
}

GUIDELINES:
- Plan 3-5 research paths per cycle (max 5)
- Prioritize paths that fill confidence gaps
- Stop when all categories reach "sufficient" or after the final cycle
- For follow-up questions, focus paths on the specific question
- Be specific in instructions - tell sub-agents exactly what to look for`

// PlanRequest carries everything the planner needs for one cycle.
type PlanRequest struct {
	CompanyName      string
	Initiative       string
	Industry         string
	FollowUpQuestion string
	CycleNumber      int
	MaxCycles        int
	Findings         map[FindingCategory][]Finding
	Confidence       ConfidenceAssessment
}

// Planner produces the research plan for each cycle.
type Planner struct {
	gateway  *Gateway
	model    string
	maxPaths int
	logger   *log.Logger
}

// NewPlanner creates a planner using the given routing alias.
func NewPlanner(gateway *Gateway, model string, maxPaths int, logger *log.Logger) *Planner {
	if model == "" {
		model = "sonnet"
	}
	if maxPaths <= 0 {
		maxPaths = 5
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Planner{gateway: gateway, model: model, maxPaths: maxPaths, logger: logger}
}

// Plan runs one planning call. Malformed model output never fails the cycle:
// it degrades to a single-path fallback plan targeting the initiative.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (ResearchPlan, error) {
	prompt := p.buildPrompt(req)

	p.logger.Printf("planning cycle %d for %s", req.CycleNumber, req.CompanyName)

	text, _, err := p.gateway.Complete(ctx, MessageRequest{
		Model:       p.model,
		System:      plannerSystemPrompt,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   2048,
		Temperature: 0.3,
	})
	if err != nil {
		return ResearchPlan{}, fmt.Errorf("planning call: %w", err)
	}

	var rawPlan struct {
		Analysis       string            `json:"analysis"`
		Paths          []PlannedPath     `json:"research_paths"`
		Confidence     map[string]string `json:"confidence_assessment"`
		ShouldContinue *bool             `json:"should_continue"`
		Reasoning      string            `json:"reasoning"`
	}
	if err := ExtractJSON(text, &rawPlan); err != nil {
		p.logger.Printf("failed to parse plan, using fallback: %v (raw: %s)", err, Truncate(text, 500))
		return p.fallbackPlan(req), nil
	}

	plan := ResearchPlan{
		Analysis:       rawPlan.Analysis,
		Paths:          rawPlan.Paths,
		Confidence:     rawPlan.Confidence,
		ShouldContinue: req.CycleNumber < req.MaxCycles,
		Reasoning:      rawPlan.Reasoning,
	}
	if rawPlan.ShouldContinue != nil {
		plan.ShouldContinue = *rawPlan.ShouldContinue
	}
	p.normalize(&plan)

	p.logger.Printf("plan created with %d paths, should_continue=%v", len(plan.Paths), plan.ShouldContinue)
	return plan, nil
}

func (p *Planner) buildPrompt(req PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Company:** %s\n", req.CompanyName)
	fmt.Fprintf(&b, "**Initiative:** %s\n", req.Initiative)
	if req.Industry != "" {
		fmt.Fprintf(&b, "**Industry:** %s\n", req.Industry)
	}
	fmt.Fprintf(&b, "\n**Cycle:** %d of %d\n", req.CycleNumber, req.MaxCycles)

	if req.FollowUpQuestion != "" {
		fmt.Fprintf(&b, "\n**Follow-up Question:** %s\n", req.FollowUpQuestion)
		b.WriteString("Focus your research paths on answering this specific question.\n")
	}

	if len(req.Confidence) > 0 {
		b.WriteString("\n**Current Confidence Levels:**\n")
		for _, cat := range Categories() {
			fmt.Fprintf(&b, "- %s: %s\n", cat, req.Confidence[cat])
		}
	}

	if len(req.Findings) > 0 {
		b.WriteString("\n**Existing Findings Summary:**\n")
		for _, cat := range Categories() {
			findings := req.Findings[cat]
			if len(findings) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n*%s:*\n", strings.Title(string(cat)))
			// cap the preview per category to bound prompt size
			for _, f := range findings[:min(3, len(findings))] {
				fmt.Fprintf(&b, "  - %s\n", Truncate(f.Summary, 200))
			}
		}
	}

	b.WriteString("\nPlan the next research cycle. Output valid JSON only.")
	return b.String()
}

// normalize back-fills missing keys and enforces the path cap.
func (p *Planner) normalize(plan *ResearchPlan) {
	if plan.Confidence == nil {
		plan.Confidence = defaultConfidenceStrings()
	}
	if len(plan.Paths) > p.maxPaths {
		plan.Paths = plan.Paths[:p.maxPaths]
	}
	for i := range plan.Paths {
		if plan.Paths[i].ID == "" {
			plan.Paths[i].ID = fmt.Sprintf("path_%d", i+1)
		}
		if !ValidCategory(plan.Paths[i].Category) {
			plan.Paths[i].Category = string(CategoryInitiative)
		}
	}
}

func (p *Planner) fallbackPlan(req PlanRequest) ResearchPlan {
	return ResearchPlan{
		Analysis: "Failed to parse planning response",
		Paths: []PlannedPath{{
			ID:           "path_1",
			Topic:        fmt.Sprintf("%s %s", req.CompanyName, req.Initiative),
			Priority:     "high",
			Category:     string(CategoryInitiative),
			Instructions: "Search for general information about this initiative",
		}},
		Confidence:     defaultConfidenceStrings(),
		ShouldContinue: true,
		Reasoning:      "Default plan due to parsing error",
	}
}

func defaultConfidenceStrings() map[string]string {
	out := make(map[string]string, 6)
	for _, c := range Categories() {
		out[string(c)] = string(ConfidenceNone)
	}
	return out
}

// AssessConfidence derives per-category confidence from finding counts, then
// floors each category at the previous cycle's level so confidence never
// regresses.
func AssessConfidence(findings map[FindingCategory][]Finding, previous ConfidenceAssessment) ConfidenceAssessment {
	out := make(ConfidenceAssessment, 6)
	for _, cat := range Categories() {
		var level ConfidenceLevel
		switch count := len(findings[cat]); {
		case count == 0:
			level = ConfidenceNone
		case count == 1:
			level = ConfidenceLow
		case count <= 3:
			level = ConfidenceMedium
		case count <= 5:
			level = ConfidenceHigh
		default:
			level = ConfidenceSufficient
		}
		if previous != nil {
			level = MaxLevel(level, previous[cat])
		}
		out[cat] = level
	}
	return out
}

// ShouldStop reports whether the session has gathered enough intelligence.
func ShouldStop(assessment ConfidenceAssessment, cycleNumber, maxCycles int) bool {
	if cycleNumber >= maxCycles {
		return true
	}
	allSufficient := true
	highOrBetter := 0
	for _, cat := range Categories() {
		level := assessment[cat]
		if level != ConfidenceSufficient {
			allSufficient = false
		}
		if level.Rank() >= ConfidenceHigh.Rank() {
			highOrBetter++
		}
	}
	return allSufficient || highOrBetter >= 5
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
