package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	edgarSearchURL = "https://efts.sec.gov/LATEST/search-index"
	edgarBaseURL   = "https://www.sec.gov"
)

// SECFilingsTool searches the SEC EDGAR full-text index for public-company
// filings. EDGAR requires a User-Agent identifying the caller with a contact.
type SECFilingsTool struct {
	userAgent string
	client    *http.Client
}

func NewSECFilingsTool(userAgent string) *SECFilingsTool {
	if userAgent == "" {
		userAgent = "ScoutBot/1.0 (contact@aquaregia.life)"
	}
	return &SECFilingsTool{userAgent: userAgent, client: &http.Client{Timeout: 15 * time.Second}}
}

func (t *SECFilingsTool) Name() string { return "sec_filings" }

func (t *SECFilingsTool) Description() string {
	return "Search SEC EDGAR filings for public companies. Returns 10-K (annual reports), " +
		"10-Q (quarterly reports), 8-K (current events), and other filings. " +
		"Useful for finding financial information, strategic priorities, executive commentary, " +
		"and material business events for publicly traded companies."
}

func (t *SECFilingsTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"company_name": map[string]interface{}{
				"type":        "string",
				"description": "The company name to search for (e.g., 'Apple Inc', 'Microsoft').",
			},
			"filing_type": map[string]interface{}{
				"type":        "string",
				"description": "Optional filing type filter: '10-K', '10-Q', '8-K', or leave empty for all.",
				"enum":        []string{"10-K", "10-Q", "8-K", ""},
			},
			"keywords": map[string]interface{}{
				"type":        "string",
				"description": "Optional keywords to search within filings (e.g., 'cloud migration', 'AI strategy').",
			},
		},
		"required": []string{"company_name"},
	}
}

type edgarResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source struct {
				Form            string   `json:"form"`
				FileDate        string   `json:"file_date"`
				FileDescription string   `json:"file_description"`
				FileName        string   `json:"file_name"`
				Adsh            string   `json:"adsh"`
				CIKs            []string `json:"ciks"`
				DisplayNames    []string `json:"display_names"`
			} `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func (t *SECFilingsTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	companyName := stringArg(input, "company_name")
	filingType := stringArg(input, "filing_type")
	keywords := stringArg(input, "keywords")

	queryParts := []string{fmt.Sprintf("companyName:%q", companyName)}
	if filingType != "" {
		queryParts = append(queryParts, fmt.Sprintf("formType:%q", filingType))
	}
	if keywords != "" {
		queryParts = append(queryParts, fmt.Sprintf("%q", keywords))
	}

	forms := filingType
	if forms == "" {
		forms = "-0"
	}
	params := url.Values{}
	params.Set("q", strings.Join(queryParts, " AND "))
	params.Set("dateRange", "custom")
	params.Set("startdt", "2020-01-01")
	params.Set("enddt", "2026-12-31")
	params.Set("forms", forms)
	params.Set("from", "0")
	params.Set("size", "10")

	req, err := http.NewRequestWithContext(ctx, "GET", edgarSearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return softFilingsError(companyName, err.Error()), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return softFilingsError(companyName, fmt.Sprintf("SEC API returned HTTP %d", resp.StatusCode)), nil
	}

	var data edgarResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return softFilingsError(companyName, fmt.Sprintf("decode: %v", err)), nil
	}

	filings := make([]map[string]interface{}, 0, len(data.Hits.Hits))
	for _, hit := range data.Hits.Hits {
		src := hit.Source

		filingURL := ""
		accession := strings.ReplaceAll(src.Adsh, "-", "")
		if accession != "" && len(src.CIKs) > 0 {
			filingURL = fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s", edgarBaseURL, src.CIKs[0], accession, src.FileName)
		}

		var excerpt string
		for _, excerpts := range hit.Highlight {
			if len(excerpts) > 0 {
				excerpt = excerpts[0]
				if len(excerpt) > 500 {
					excerpt = excerpt[:500]
				}
				break
			}
		}

		company := companyName
		if len(src.DisplayNames) > 0 {
			company = src.DisplayNames[0]
		}

		filings = append(filings, map[string]interface{}{
			"filing_type": src.Form,
			"filed_date":  src.FileDate,
			"company":     company,
			"description": src.FileDescription,
			"url":         filingURL,
			"excerpt":     excerpt,
		})
	}

	return map[string]interface{}{
		"company_name": companyName,
		"filings":      filings,
		"total_found":  data.Hits.Total.Value,
	}, nil
}

func softFilingsError(companyName, msg string) map[string]interface{} {
	return map[string]interface{}{
		"company_name": companyName,
		"filings":      []interface{}{},
		"total_found":  0,
		"error":        msg,
	}
}
