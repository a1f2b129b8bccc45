package core

import "testing"

func TestExtractJSONBareObject(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	if err := ExtractJSON(`{"name":"acme"}`, &out); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.Name != "acme" {
		t.Fatalf("name = %q", out.Name)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	text := "Here is my analysis:\n{\"analysis\": \"ok\", \"nested\": {\"a\": 1}}\nLet me know if you need more."
	var out struct {
		Analysis string                 `json:"analysis"`
		Nested   map[string]interface{} `json:"nested"`
	}
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.Analysis != "ok" {
		t.Fatalf("analysis = %q", out.Analysis)
	}
	if len(out.Nested) != 1 {
		t.Fatalf("nested = %v", out.Nested)
	}
}

func TestExtractJSONCodeFence(t *testing.T) {
	text := "```json\n{\"summary\": \"fenced\"}\n```"
	var out struct {
		Summary string `json:"summary"`
	}
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.Summary != "fenced" {
		t.Fatalf("summary = %q", out.Summary)
	}
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	text := `{"details": "uses {curly} braces and an escaped \" quote", "n": 2}`
	var out struct {
		Details string `json:"details"`
		N       int    `json:"n"`
	}
	if err := ExtractJSON(text, &out); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if out.N != 2 {
		t.Fatalf("n = %d", out.N)
	}
}

func TestExtractJSONNoObject(t *testing.T) {
	var out map[string]interface{}
	if err := ExtractJSON("no json here, sorry", &out); err == nil {
		t.Fatal("expected error for text without JSON")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello" {
		t.Fatalf("got %q", got)
	}
}
