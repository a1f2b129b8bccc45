package tools

import (
	"context"
	"fmt"
)

type braveNewsResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Age         string `json:"age"`
		MetaURL     struct {
			Hostname string `json:"hostname"`
		} `json:"meta_url"`
	} `json:"results"`
}

// NewsSearchTool searches recent news through the Brave News API.
type NewsSearchTool struct {
	brave *BraveClient
}

func NewNewsSearchTool(brave *BraveClient) *NewsSearchTool {
	return &NewsSearchTool{brave: brave}
}

func (t *NewsSearchTool) Name() string { return "news_search" }

func (t *NewsSearchTool) Description() string {
	return "Search for recent news articles about a company or topic. " +
		"Returns recent press releases, news coverage, and announcements. " +
		"Useful for finding current events, executive quotes, and recent developments."
}

func (t *NewsSearchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query. Include company name and topic for best results.",
			},
			"count": map[string]interface{}{
				"type":        "integer",
				"description": "Number of results to return (1-20). Default is 10.",
				"default":     10,
				"minimum":     1,
				"maximum":     20,
			},
			"freshness": map[string]interface{}{
				"type":        "string",
				"description": "How recent the news should be. Options: 'past_day', 'past_week', 'past_month'.",
				"enum":        []string{"past_day", "past_week", "past_month", ""},
			},
		},
		"required": []string{"query"},
	}
}

func (t *NewsSearchTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query := stringArg(input, "query")
	count := intArg(input, "count", 10)
	freshness := stringArg(input, "freshness")

	if !t.brave.Configured() {
		return map[string]interface{}{
			"query":         query,
			"results":       []interface{}{},
			"total_results": 0,
			"error":         "Brave Search API key not configured",
		}, nil
	}

	params := baseBraveParams(query, count)
	switch freshness {
	case "past_day":
		params.Set("freshness", "pd")
	case "past_week":
		params.Set("freshness", "pw")
	case "past_month":
		params.Set("freshness", "pm")
	}

	var data braveNewsResponse
	if err := t.brave.Get(ctx, braveNewsURL, params, &data); err != nil {
		return nil, fmt.Errorf("news search: %w", err)
	}

	results := make([]map[string]interface{}, 0, len(data.Results))
	for _, item := range data.Results {
		results = append(results, map[string]interface{}{
			"title":          item.Title,
			"url":            item.URL,
			"source":         item.MetaURL.Hostname,
			"published_date": item.Age,
			"description":    item.Description,
		})
	}
	return map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_results": len(results),
	}, nil
}
