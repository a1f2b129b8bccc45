package core

import (
	"context"
	"testing"
)

// scriptedProvider replays canned responses in order.
type scriptedProvider struct {
	responses []MessageResponse
	requests  []MessageRequest
	err       error
}

func (p *scriptedProvider) Message(_ context.Context, req MessageRequest) (MessageResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return MessageResponse{}, p.err
	}
	if len(p.responses) == 0 {
		return MessageResponse{Content: TextContent("{}"), StopReason: "end_turn"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) ResolveModel(alias string) string { return alias }

func textResponse(text string) MessageResponse {
	return MessageResponse{Content: TextContent(text), StopReason: "end_turn"}
}

func TestAssessConfidenceHeuristic(t *testing.T) {
	cases := []struct {
		count int
		want  ConfidenceLevel
	}{
		{0, ConfidenceNone},
		{1, ConfidenceLow},
		{2, ConfidenceMedium},
		{3, ConfidenceMedium},
		{4, ConfidenceHigh},
		{5, ConfidenceHigh},
		{6, ConfidenceSufficient},
		{12, ConfidenceSufficient},
	}
	for _, tc := range cases {
		findings := map[FindingCategory][]Finding{}
		for i := 0; i < tc.count; i++ {
			findings[CategoryPeople] = append(findings[CategoryPeople], Finding{Category: CategoryPeople})
		}
		got := AssessConfidence(findings, nil)
		if got[CategoryPeople] != tc.want {
			t.Fatalf("count %d: got %s, want %s", tc.count, got[CategoryPeople], tc.want)
		}
	}
}

func TestAssessConfidenceNeverRegresses(t *testing.T) {
	previous := NewConfidenceAssessment()
	previous[CategoryPeople] = ConfidenceHigh

	// zero findings this cycle would rank none, but the previous level holds
	got := AssessConfidence(map[FindingCategory][]Finding{}, previous)
	if got[CategoryPeople] != ConfidenceHigh {
		t.Fatalf("people regressed to %s", got[CategoryPeople])
	}
	if got[CategoryMarket] != ConfidenceNone {
		t.Fatalf("market = %s, want none", got[CategoryMarket])
	}
}

func TestShouldStop(t *testing.T) {
	all := func(level ConfidenceLevel) ConfidenceAssessment {
		a := NewConfidenceAssessment()
		for _, c := range Categories() {
			a[c] = level
		}
		return a
	}

	if !ShouldStop(all(ConfidenceNone), 5, 5) {
		t.Fatal("final cycle must stop regardless of confidence")
	}
	if !ShouldStop(all(ConfidenceSufficient), 2, 5) {
		t.Fatal("all sufficient must stop early")
	}

	fiveHigh := all(ConfidenceHigh)
	fiveHigh[CategoryMarket] = ConfidenceNone
	if !ShouldStop(fiveHigh, 1, 5) {
		t.Fatal("five of six at high-or-better must stop")
	}

	fourHigh := all(ConfidenceHigh)
	fourHigh[CategoryMarket] = ConfidenceNone
	fourHigh[CategoryFinancial] = ConfidenceMedium
	if ShouldStop(fourHigh, 1, 5) {
		t.Fatal("four of six at high-or-better must continue")
	}
}

func TestPlannerFallbackOnMalformedOutput(t *testing.T) {
	provider := &scriptedProvider{responses: []MessageResponse{textResponse("I could not produce a plan.")}}
	p := NewPlanner(NewGateway(provider, nil), "sonnet", 5, nil)

	plan, err := p.Plan(context.Background(), PlanRequest{
		CompanyName: "Acme Corp",
		Initiative:  "cloud migration",
		CycleNumber: 1,
		MaxCycles:   5,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Paths) != 1 {
		t.Fatalf("fallback paths = %d, want 1", len(plan.Paths))
	}
	path := plan.Paths[0]
	if path.Topic != "Acme Corp cloud migration" {
		t.Fatalf("fallback topic = %q", path.Topic)
	}
	if path.Category != string(CategoryInitiative) {
		t.Fatalf("fallback category = %q", path.Category)
	}
	if !plan.ShouldContinue {
		t.Fatal("fallback plan must continue")
	}
}

func TestPlannerNormalizesPaths(t *testing.T) {
	raw := `{
		"analysis": "ok",
		"research_paths": [
			{"topic": "a", "category": "people"},
			{"topic": "b", "category": "bogus"},
			{"topic": "c", "category": "market"},
			{"topic": "d", "category": "people"},
			{"topic": "e", "category": "people"},
			{"topic": "f", "category": "people"}
		],
		"should_continue": true,
		"reasoning": "more to learn"
	}`
	provider := &scriptedProvider{responses: []MessageResponse{textResponse(raw)}}
	p := NewPlanner(NewGateway(provider, nil), "sonnet", 5, nil)

	plan, err := p.Plan(context.Background(), PlanRequest{CompanyName: "Acme", Initiative: "x", CycleNumber: 1, MaxCycles: 5})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Paths) != 5 {
		t.Fatalf("paths = %d, want cap of 5", len(plan.Paths))
	}
	if plan.Paths[0].ID != "path_1" || plan.Paths[4].ID != "path_5" {
		t.Fatalf("ids not back-filled: %q, %q", plan.Paths[0].ID, plan.Paths[4].ID)
	}
	if plan.Paths[1].Category != string(CategoryInitiative) {
		t.Fatalf("invalid category not defaulted: %q", plan.Paths[1].Category)
	}
	if plan.Confidence == nil {
		t.Fatal("confidence assessment not back-filled")
	}
}

func TestPlannerDefaultsShouldContinueFromCycle(t *testing.T) {
	// should_continue missing entirely: continue unless on the final cycle
	raw := `{"analysis": "ok", "research_paths": [{"topic": "a", "category": "people"}]}`

	provider := &scriptedProvider{responses: []MessageResponse{textResponse(raw)}}
	p := NewPlanner(NewGateway(provider, nil), "sonnet", 5, nil)
	plan, err := p.Plan(context.Background(), PlanRequest{CompanyName: "Acme", Initiative: "x", CycleNumber: 2, MaxCycles: 5})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.ShouldContinue {
		t.Fatal("mid-session missing should_continue must default to true")
	}

	provider = &scriptedProvider{responses: []MessageResponse{textResponse(raw)}}
	p = NewPlanner(NewGateway(provider, nil), "sonnet", 5, nil)
	plan, err = p.Plan(context.Background(), PlanRequest{CompanyName: "Acme", Initiative: "x", CycleNumber: 5, MaxCycles: 5})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.ShouldContinue {
		t.Fatal("final-cycle missing should_continue must default to false")
	}
}
