package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	braveSearchURL = "https://api.search.brave.com/res/v1/web/search"
	braveNewsURL   = "https://api.search.brave.com/res/v1/news/search"
)

// BraveClient is a thin client for the Brave Search APIs, shared by the
// search-backed tools.
type BraveClient struct {
	apiKey string
	client *http.Client
}

// NewBraveClient creates a client. An empty key is allowed: tools report it
// as a soft error in their result instead of failing registration.
func NewBraveClient(apiKey string) *BraveClient {
	return &BraveClient{apiKey: apiKey, client: &http.Client{Timeout: 10 * time.Second}}
}

// Configured reports whether an API key is present.
func (c *BraveClient) Configured() bool { return c.apiKey != "" }

// Get performs one Brave API request and decodes the JSON body into out.
func (c *BraveClient) Get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("brave API returned HTTP %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func baseBraveParams(query string, count int) url.Values {
	if count < 1 || count > 20 {
		count = 10
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	params.Set("text_decorations", "false")
	params.Set("search_lang", "en")
	return params
}

type braveWebResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Age         string `json:"age"`
		} `json:"results"`
	} `json:"web"`
}

// WebSearchTool searches the web through the Brave Search API.
type WebSearchTool struct {
	brave *BraveClient
}

func NewWebSearchTool(brave *BraveClient) *WebSearchTool {
	return &WebSearchTool{brave: brave}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for information about companies, people, technologies, " +
		"and topics. Returns a list of relevant web pages with titles, URLs, " +
		"and descriptions. Use this to discover relevant sources before scraping."
}

func (t *WebSearchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The search query. Be specific and include company names, technologies, or topics.",
			},
			"count": map[string]interface{}{
				"type":        "integer",
				"description": "Number of results to return (1-20). Default is 10.",
				"default":     10,
				"minimum":     1,
				"maximum":     20,
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query := stringArg(input, "query")
	count := intArg(input, "count", 10)

	if !t.brave.Configured() {
		return map[string]interface{}{
			"query":         query,
			"results":       []interface{}{},
			"total_results": 0,
			"error":         "Brave Search API key not configured",
		}, nil
	}

	var data braveWebResponse
	if err := t.brave.Get(ctx, braveSearchURL, baseBraveParams(query, count), &data); err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	results := make([]map[string]interface{}, 0, len(data.Web.Results))
	for _, item := range data.Web.Results {
		results = append(results, map[string]interface{}{
			"title":       item.Title,
			"url":         item.URL,
			"description": item.Description,
			"age":         item.Age,
		})
	}
	return map[string]interface{}{
		"query":         query,
		"results":       results,
		"total_results": len(results),
	}, nil
}
