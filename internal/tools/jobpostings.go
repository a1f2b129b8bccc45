package tools

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Technology keywords scanned for in job postings.
var techKeywords = []string{
	"aws", "azure", "gcp", "google cloud", "kubernetes", "docker",
	"python", "java", "javascript", "typescript", "react", "angular",
	"sql", "postgresql", "mongodb", "redis", "elasticsearch",
	"terraform", "ansible", "jenkins", "github", "gitlab",
	"salesforce", "servicenow", "sap", "oracle", "workday",
	"machine learning", "ai", "data science", "analytics",
	"security", "devops", "sre", "cloud", "microservices",
	"agile", "scrum", "jira", "confluence",
}

var jobIndicators = []string{
	"career", "job", "position", "hiring", "apply",
	"engineer", "manager", "director", "analyst", "developer",
	"specialist", "coordinator", "lead", "architect",
}

// JobPostingsTool infers technology stack and strategic priorities from a
// company's job postings found through web search.
type JobPostingsTool struct {
	brave *BraveClient
}

func NewJobPostingsTool(brave *BraveClient) *JobPostingsTool {
	return &JobPostingsTool{brave: brave}
}

func (t *JobPostingsTool) Name() string { return "job_postings" }

func (t *JobPostingsTool) Description() string {
	return "Search for job postings from a company to infer their technology stack, " +
		"team structure, and strategic priorities. Job postings reveal what technologies " +
		"they use, what skills they're hiring for, and what initiatives they're investing in."
}

func (t *JobPostingsTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"company_name": map[string]interface{}{
				"type":        "string",
				"description": "The company name to search jobs for.",
			},
			"keywords": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Optional keywords to filter jobs (e.g., ['cloud', 'security', 'data']).",
			},
		},
		"required": []string{"company_name"},
	}
}

func (t *JobPostingsTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	companyName := stringArg(input, "company_name")
	keywords := stringsArg(input, "keywords")

	if !t.brave.Configured() {
		return map[string]interface{}{
			"company_name":       companyName,
			"jobs":               []interface{}{},
			"technology_signals": []interface{}{},
			"total_found":        0,
			"error":              "Brave Search API key not configured",
		}, nil
	}

	queryParts := []string{fmt.Sprintf("%q", companyName), "careers OR jobs OR hiring"}
	if len(keywords) > 0 {
		queryParts = append(queryParts, strings.Join(keywords, " OR "))
	}

	var data braveWebResponse
	if err := t.brave.Get(ctx, braveSearchURL, baseBraveParams(strings.Join(queryParts, " "), 15), &data); err != nil {
		return nil, fmt.Errorf("job postings search: %w", err)
	}

	jobs := make([]map[string]interface{}, 0, len(data.Web.Results))
	allTech := map[string]struct{}{}

	for _, item := range data.Web.Results {
		if !looksLikeJob(item.Title, item.URL) {
			continue
		}

		technologies := extractTechnologies(strings.ToLower(item.Title + " " + item.Description))
		for _, tech := range technologies {
			allTech[tech] = struct{}{}
		}

		excerpt := item.Description
		if len(excerpt) > 300 {
			excerpt = excerpt[:300]
		}

		jobs = append(jobs, map[string]interface{}{
			"title":                  item.Title,
			"url":                    item.URL,
			"source":                 hostOf(item.URL),
			"description_excerpt":    excerpt,
			"technologies_mentioned": technologies,
			"seniority":              inferSeniority(item.Title),
		})
		if len(jobs) >= 10 {
			break
		}
	}

	signals := make([]string, 0, len(allTech))
	for tech := range allTech {
		signals = append(signals, tech)
	}
	sort.Strings(signals)

	return map[string]interface{}{
		"company_name":       companyName,
		"jobs":               jobs,
		"technology_signals": signals,
		"total_found":        len(jobs),
	}, nil
}

func looksLikeJob(title, jobURL string) bool {
	titleLower := strings.ToLower(title)
	urlLower := strings.ToLower(jobURL)
	for _, ind := range jobIndicators {
		if strings.Contains(titleLower, ind) || strings.Contains(urlLower, ind) {
			return true
		}
	}
	return false
}

func extractTechnologies(text string) []string {
	var found []string
	for _, tech := range techKeywords {
		if strings.Contains(text, tech) {
			found = append(found, tech)
		}
	}
	return found
}

func inferSeniority(title string) string {
	titleLower := strings.ToLower(title)
	switch {
	case containsAny(titleLower, "senior", "sr.", "sr ", "lead", "principal", "staff"):
		return "senior"
	case containsAny(titleLower, "director", "head of", "vp", "vice president"):
		return "director"
	case containsAny(titleLower, "manager", "mgr"):
		return "manager"
	case containsAny(titleLower, "junior", "jr.", "jr ", "entry", "associate"):
		return "junior"
	case containsAny(titleLower, "intern", "internship"):
		return "intern"
	}
	return "mid-level"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
