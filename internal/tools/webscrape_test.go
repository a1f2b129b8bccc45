package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aquaregiaswarm-blip/scout/config"
)

const testPage = `<!doctype html>
<html><head><title>Acme Cloud Migration</title></head>
<body>
<article>
<h1>Acme announces cloud migration</h1>
<p>Acme Corp is moving its core manufacturing systems to the cloud over the next two years.
The program is led by the office of the CTO and covers ERP, analytics, and the data platform.</p>
<h2>Timeline</h2>
<p>Phase one completes in 2026, phase two in 2027. The company expects significant savings.</p>
</article>
</body></html>`

func TestWebScrapeExtractsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "ScoutBot") {
			t.Errorf("user agent = %q", ua)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	}))
	defer srv.Close()

	tool := NewWebScrapeTool(NewFetcher(config.ScrapeConfig{Timeout: 5 * time.Second}), 8000)
	out, err := tool.Execute(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["title"] != "Acme Cloud Migration" {
		t.Fatalf("title = %v", out["title"])
	}
	content, _ := out["content"].(string)
	if !strings.Contains(content, "manufacturing systems") {
		t.Fatalf("content missing body text: %q", content)
	}
	headings, _ := out["headings"].([]string)
	if len(headings) != 2 || headings[1] != "Timeline" {
		t.Fatalf("headings = %v", headings)
	}
	if out["truncated"] != false {
		t.Fatalf("truncated = %v", out["truncated"])
	}
}

func TestWebScrapeTruncatesAtSentenceBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(testPage))
	}))
	defer srv.Close()

	tool := NewWebScrapeTool(NewFetcher(config.ScrapeConfig{Timeout: 5 * time.Second}), 120)
	out, err := tool.Execute(context.Background(), map[string]interface{}{"url": srv.URL, "extract_headings": false})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["truncated"] != true {
		t.Fatal("expected truncation")
	}
	content, _ := out["content"].(string)
	if len(content) > 120 {
		t.Fatalf("content length = %d", len(content))
	}
	if _, ok := out["headings"]; ok {
		t.Fatal("headings extracted despite extract_headings=false")
	}
}

func TestWebScrapeRejectsBadScheme(t *testing.T) {
	tool := NewWebScrapeTool(NewFetcher(config.ScrapeConfig{}), 8000)
	out, err := tool.Execute(context.Background(), map[string]interface{}{"url": "ftp://example.com/file"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out["error"] != "Invalid URL scheme. Must be http or https." {
		t.Fatalf("error = %v", out["error"])
	}
}

func TestWebScrapeSoftErrorOnNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	tool := NewWebScrapeTool(NewFetcher(config.ScrapeConfig{Timeout: 5 * time.Second}), 8000)
	out, err := tool.Execute(context.Background(), map[string]interface{}{"url": srv.URL})
	if err != nil {
		t.Fatalf("fetch failures must be soft errors: %v", err)
	}
	msg, _ := out["error"].(string)
	if !strings.Contains(msg, "not an HTML page") {
		t.Fatalf("error = %q", msg)
	}
}
