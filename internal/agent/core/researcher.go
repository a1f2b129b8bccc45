package core

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
)

const researcherSystemPrompt = `You are a research sub-agent for a sales intelligence platform.

Your task is to research a specific topic and extract actionable intelligence for sales teams.

TOOLS AVAILABLE:
- web_search: Search the web for relevant pages
- web_scrape: Extract content from a specific URL
- news_search: Search for recent news articles
- sec_filings: Search SEC filings (for public companies)
- job_postings: Search job postings for hiring signals

RESEARCH GUIDELINES:
1. Start with web_search to find relevant sources
2. Use web_scrape on promising URLs to extract details
3. Look for specific, actionable intelligence:
   - Names and titles of decision-makers
   - Project timelines, budgets, scope
   - Technology vendors mentioned
   - RFP or competitive signals
   - Budget or spending indicators
4. Note your sources - URLs matter for credibility
5. Stop when you have concrete findings or exhaust relevant sources

OUTPUT FORMAT:
After your research, provide findings in this JSON format:
{
    "findings": [
        {
            "category": "people" | "initiative" | "technology" | "competitive" | "financial" | "market",
            "summary": "One-sentence summary of the finding",
            "details": "Detailed explanation with specifics",
            "source_url": "URL where this was found",
            "confidence": 0.0-1.0
        }
    ],
    "tangential_signals": [
        "Brief note about related initiatives or opportunities discovered"
    ],
    "search_exhausted": true | false
}

Be specific. Names, dates, and numbers are more valuable than vague statements.`

// ToolSource exposes tool schemas and executes calls by name.
// Implemented by the tools registry.
type ToolSource interface {
	ToolExecutor
	Schemas() []ToolSchema
}

// Researcher executes individual research paths through the tool-use loop.
type Researcher struct {
	gateway      *Gateway
	tools        ToolSource
	model        string
	maxToolCalls int
	maxParallel  int
	logger       *log.Logger
}

// NewResearcher creates a researcher bound to a tool source.
func NewResearcher(gateway *Gateway, tools ToolSource, model string, maxToolCalls, maxParallel int, logger *log.Logger) *Researcher {
	if model == "" {
		model = "sonnet"
	}
	if maxToolCalls <= 0 {
		maxToolCalls = 10
	}
	if maxParallel <= 0 {
		maxParallel = 5
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Researcher{
		gateway:      gateway,
		tools:        tools,
		model:        model,
		maxToolCalls: maxToolCalls,
		maxParallel:  maxParallel,
		logger:       logger,
	}
}

// ExecutePath runs one research path end to end. Malformed model output does
// not escape this boundary: it yields an empty finding set with
// search_exhausted set and the raw text kept for diagnostics.
func (r *Researcher) ExecutePath(ctx context.Context, path PlannedPath, companyName string) (PathResult, error) {
	prompt := fmt.Sprintf(`Research Task:
**Topic:** %s
**Company:** %s
**Target Category:** %s

**Instructions:**
%s

Use the available tools to research this topic. When you have gathered enough information, provide your findings in the JSON format specified.`,
		path.Topic, companyName, path.Category, path.Instructions)

	r.logger.Printf("starting path %s (%s) for %s", path.ID, path.Category, companyName)

	loop, err := r.gateway.RunToolLoop(ctx, MessageRequest{
		Model:    r.model,
		System:   researcherSystemPrompt,
		Messages: []Message{{Role: "user", Content: prompt}},
		Tools:    r.tools.Schemas(),
	}, r.tools, r.maxToolCalls)
	if err != nil {
		return PathResult{}, fmt.Errorf("research loop for path %s: %w", path.ID, err)
	}

	result := PathResult{
		PathID:    path.ID,
		Topic:     path.Topic,
		Category:  FindingCategory(path.Category),
		Status:    PathCompleted,
		ToolCalls: loop.ToolCalls,
		Turns:     loop.Turns,
	}

	var parsed struct {
		Findings          []map[string]interface{} `json:"findings"`
		TangentialSignals []string                 `json:"tangential_signals"`
		SearchExhausted   bool                     `json:"search_exhausted"`
	}
	if err := ExtractJSON(loop.Text, &parsed); err != nil {
		r.logger.Printf("failed to parse findings for path %s: %v", path.ID, err)
		result.Findings = []Finding{}
		result.SearchExhausted = true
		result.RawResponse = Truncate(loop.Text, 500)
		return result, nil
	}

	result.Findings = make([]Finding, 0, len(parsed.Findings))
	for _, f := range parsed.Findings {
		result.Findings = append(result.Findings, normalizeFinding(f, result.Category))
	}
	result.TangentialSignals = parsed.TangentialSignals
	result.SearchExhausted = parsed.SearchExhausted

	r.logger.Printf("path %s completed: %d findings, %d tool calls", path.ID, len(result.Findings), loop.ToolCalls)
	return result, nil
}

// ExecutePaths fans the paths out concurrently, bounded to maxParallel. Every
// input path yields exactly one result record: a failure inside one path
// becomes an error-status record and never aborts its siblings.
func (r *Researcher) ExecutePaths(ctx context.Context, paths []PlannedPath, companyName string) []PathResult {
	if len(paths) > r.maxParallel {
		paths = paths[:r.maxParallel]
	}
	r.logger.Printf("executing %d research paths", len(paths))

	results := make([]PathResult, len(paths))
	sem := make(chan struct{}, r.maxParallel)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, path PlannedPath) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := r.ExecutePath(ctx, path, companyName)
			if err != nil {
				r.logger.Printf("path %s failed: %v", path.ID, err)
				res = PathResult{
					PathID:   path.ID,
					Topic:    path.Topic,
					Category: FindingCategory(path.Category),
					Status:   PathError,
					Error:    err.Error(),
					Findings: []Finding{},
				}
			}
			results[i] = res
		}(i, path)
	}
	wg.Wait()

	success := 0
	total := 0
	for _, res := range results {
		if res.Status == PathCompleted {
			success++
		}
		total += len(res.Findings)
	}
	r.logger.Printf("paths done: %d/%d succeeded, %d findings", success, len(paths), total)
	return results
}

// normalizeFinding coerces a raw model finding into the required shape.
// Category falls back to the path's target, confidence to 0.5.
func normalizeFinding(raw map[string]interface{}, target FindingCategory) Finding {
	f := Finding{Category: target, Confidence: 0.5}
	if s, ok := raw["category"].(string); ok && ValidCategory(s) {
		f.Category = FindingCategory(s)
	}
	if s, ok := raw["summary"].(string); ok {
		f.Summary = s
	}
	if s, ok := raw["details"].(string); ok {
		f.Details = s
	}
	if s, ok := raw["source_url"].(string); ok {
		f.SourceURL = s
	}
	switch v := raw["confidence"].(type) {
	case float64:
		f.Confidence = v
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			f.Confidence = parsed
		}
	}
	return f
}
