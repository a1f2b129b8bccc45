package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

const synthesisSystemPrompt = `You are the synthesis agent for a sales intelligence platform.

Your role is to merge research findings into structured, actionable intelligence for sales teams.

For each category, synthesize all findings into a coherent summary with key insights.

OUTPUT FORMAT (JSON):
{
    "categories": {
        "people": {
            "summary": "Paragraph summarizing key people insights",
            "key_contacts": [
                {"name": "...", "title": "...", "relevance": "..."}
            ],
            "insights": ["Key insight 1", "Key insight 2"],
            "confidence": "none" | "low" | "medium" | "high" | "sufficient"
        },
        "initiative": {
            "summary": "...",
            "timeline": "...",
            "scope": "...",
            "insights": [...],
            "confidence": "..."
        },
        "technology": {
            "summary": "...",
            "current_stack": [...],
            "planned_changes": [...],
            "insights": [...],
            "confidence": "..."
        },
        "competitive": {
            "summary": "...",
            "competitors_mentioned": [...],
            "our_position": "...",
            "insights": [...],
            "confidence": "..."
        },
        "financial": {
            "summary": "...",
            "budget_signals": [...],
            "timing": "...",
            "insights": [...],
            "confidence": "..."
        },
        "market": {
            "summary": "...",
            "trends": [...],
            "insights": [...],
            "confidence": "..."
        }
    },
    "tangential_initiatives": [
        {
            "name": "...",
            "description": "...",
            "evidence": ["..."]
        }
    ],
    "overall_assessment": "Brief overall assessment of the opportunity"
}

GUIDELINES:
- Prioritize specifics: names, dates, numbers, vendors
- Note conflicting information and indicate which seems more reliable
- Highlight actionable intelligence for sales teams
- Flag gaps that need more research
- Be concise but comprehensive`

const recommendationSystemPrompt = "You recommend relevant vendor partners based on research findings. Be specific about why each vendor is relevant."

// Synthesizer merges accumulated findings into dashboard-ready intelligence.
type Synthesizer struct {
	gateway *Gateway
	model   string
	logger  *log.Logger
}

// NewSynthesizer creates a synthesizer using the given routing alias.
func NewSynthesizer(gateway *Gateway, model string, logger *log.Logger) *Synthesizer {
	if model == "" {
		model = "haiku"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{gateway: gateway, model: model, logger: logger}
}

// Synthesize merges findings (optionally with the previous synthesis) into
// structured intelligence. Parse failures degrade to a placeholder structure
// instead of failing the cycle.
func (s *Synthesizer) Synthesize(ctx context.Context, companyName, initiative string, findings map[FindingCategory][]Finding, previous *Synthesis) (Synthesis, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "**Company:** %s\n", companyName)
	fmt.Fprintf(&b, "**Initiative:** %s\n", initiative)
	b.WriteString("\n**Findings by Category:**\n")

	for _, cat := range Categories() {
		catFindings := findings[cat]
		if len(catFindings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n", strings.Title(string(cat)))
		for _, f := range catFindings {
			fmt.Fprintf(&b, "- **%s**\n", f.Summary)
			if f.Details != "" {
				fmt.Fprintf(&b, "  %s\n", Truncate(f.Details, 300))
			}
			if f.SourceURL != "" {
				fmt.Fprintf(&b, "  Source: %s\n", f.SourceURL)
			}
		}
	}

	if previous != nil {
		b.WriteString("\n**Previous Synthesis to Merge:**\n")
		if prev, err := json.MarshalIndent(previous, "", "  "); err == nil {
			b.WriteString(Truncate(string(prev), 2000))
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nSynthesize these findings into structured intelligence. Output valid JSON only.")

	s.logger.Printf("synthesizing findings for %s", companyName)

	text, _, err := s.gateway.Complete(ctx, MessageRequest{
		Model:       s.model,
		System:      synthesisSystemPrompt,
		Messages:    []Message{{Role: "user", Content: b.String()}},
		MaxTokens:   4096,
		Temperature: 0.2,
	})
	if err != nil {
		return Synthesis{}, fmt.Errorf("synthesis call: %w", err)
	}

	var synthesis Synthesis
	if err := ExtractJSON(text, &synthesis); err != nil {
		s.logger.Printf("failed to parse synthesis: %v", err)
		return failedSynthesis(), nil
	}
	return synthesis, nil
}

// Recommend ranks portfolio vendors against the synthesis. An empty portfolio
// returns an empty list without calling the model; parse failures also return
// an empty list.
func (s *Synthesizer) Recommend(ctx context.Context, synthesis Synthesis, portfolio []PortfolioItem) ([]Recommendation, error) {
	if len(portfolio) == 0 {
		return []Recommendation{}, nil
	}

	var lines []string
	for _, item := range portfolio {
		caps := "General"
		if len(item.Capabilities) > 0 {
			caps = strings.Join(item.Capabilities, ", ")
		}
		level := item.PartnershipLevel
		if level == "" {
			level = "Partner"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", item.VendorName, level, caps))
	}

	catJSON, err := json.MarshalIndent(synthesis.Categories, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis categories: %w", err)
	}

	prompt := fmt.Sprintf(`Based on this synthesized intelligence:

%s

And this vendor portfolio:
%s

Recommend which portfolio vendors are most relevant to this opportunity. Output JSON:
{
    "recommendations": [
        {
            "vendor": "Vendor Name",
            "capability": "Relevant capability",
            "relevance": "Why this vendor is relevant",
            "supporting_findings": ["Finding that supports this"]
        }
    ]
}`, Truncate(string(catJSON), 3000), strings.Join(lines, "\n"))

	text, _, err := s.gateway.Complete(ctx, MessageRequest{
		Model:       s.model,
		System:      recommendationSystemPrompt,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation call: %w", err)
	}

	var parsed struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	if err := ExtractJSON(text, &parsed); err != nil {
		s.logger.Printf("failed to parse recommendations: %v", err)
		return []Recommendation{}, nil
	}
	if parsed.Recommendations == nil {
		parsed.Recommendations = []Recommendation{}
	}
	return parsed.Recommendations, nil
}

func failedSynthesis() Synthesis {
	categories := make(map[string]map[string]interface{}, 6)
	for _, cat := range Categories() {
		categories[string(cat)] = map[string]interface{}{
			"summary":    "Synthesis failed - raw findings available",
			"insights":   []interface{}{},
			"confidence": string(ConfidenceLow),
		}
	}
	return Synthesis{Categories: categories, OverallAssessment: "Synthesis parsing failed"}
}
