package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/aquaregiaswarm-blip/scout/config"
)

const scrapeUserAgent = "Mozilla/5.0 (compatible; ScoutBot/1.0; +https://aquaregia.life)"

// Fetcher retrieves the raw HTML of a page.
type Fetcher interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
}

// NewFetcher picks the fetcher variant: headless-browser rendering for
// JS-heavy pages when enabled, plain HTTP otherwise.
func NewFetcher(cfg config.ScrapeConfig) Fetcher {
	if cfg.RenderJS {
		return &chromedpFetcher{timeout: cfg.Timeout}
	}
	return &httpFetcher{client: &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}}
}

type httpFetcher struct {
	client *http.Client
}

func (f *httpFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return "", fmt.Errorf("not an HTML page: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

type chromedpFetcher struct {
	timeout time.Duration
}

func (f *chromedpFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(scrapeUserAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return html, nil
}

var headingPattern = regexp.MustCompile(`(?is)<h[1-3][^>]*>(.*?)</h[1-3]>`)
var tagStripper = regexp.MustCompile(`<[^>]+>`)
var spaceCollapser = regexp.MustCompile(`\s+`)

// WebScrapeTool extracts readable content from a page.
type WebScrapeTool struct {
	fetcher  Fetcher
	maxChars int
}

func NewWebScrapeTool(fetcher Fetcher, maxChars int) *WebScrapeTool {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &WebScrapeTool{fetcher: fetcher, maxChars: maxChars}
}

func (t *WebScrapeTool) Name() string { return "web_scrape" }

func (t *WebScrapeTool) Description() string {
	return "Fetch and extract the main readable content from a specific web page. " +
		"Use this after web_search to get detailed information from promising URLs. " +
		"Returns the page title, main text content, headings, and meta description."
}

func (t *WebScrapeTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "The full URL of the page to scrape.",
			},
			"extract_headings": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether to extract section headings. Default is true.",
				"default":     true,
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebScrapeTool) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	pageURL := stringArg(input, "url")
	extractHeadings := boolArg(input, "extract_headings", true)

	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return map[string]interface{}{
			"url":   pageURL,
			"error": "Invalid URL scheme. Must be http or https.",
		}, nil
	}

	html, err := t.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		return map[string]interface{}{"url": pageURL, "error": err.Error()}, nil
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return map[string]interface{}{"url": pageURL, "error": fmt.Sprintf("extract content: %v", err)}, nil
	}

	content := spaceCollapser.ReplaceAllString(strings.TrimSpace(article.TextContent), " ")
	truncated := false
	if len(content) > t.maxChars {
		truncated = true
		content = content[:t.maxChars]
		// prefer a sentence boundary near the cut
		if last := strings.LastIndex(content, "."); last > t.maxChars*8/10 {
			content = content[:last+1]
		}
	}

	result := map[string]interface{}{
		"url":              pageURL,
		"title":            strings.TrimSpace(article.Title),
		"meta_description": strings.TrimSpace(article.Excerpt),
		"content":          content,
		"content_length":   len(content),
		"truncated":        truncated,
	}
	if extractHeadings {
		result["headings"] = extractHTMLHeadings(html)
	}
	return result, nil
}

func extractHTMLHeadings(html string) []string {
	matches := headingPattern.FindAllStringSubmatch(html, -1)
	headings := make([]string, 0, len(matches))
	for _, m := range matches {
		text := strings.TrimSpace(spaceCollapser.ReplaceAllString(tagStripper.ReplaceAllString(m[1], " "), " "))
		if text != "" && len(text) < 200 {
			headings = append(headings, text)
		}
		if len(headings) >= 20 {
			break
		}
	}
	return headings
}
