package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// stubTool is a configurable tool for registry tests.
type stubTool struct {
	name   string
	result map[string]interface{}
	err    error
	delay  time.Duration
	panics bool
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub" }
func (t *stubTool) Schema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (t *stubTool) Execute(ctx context.Context, _ map[string]interface{}) (map[string]interface{}, error) {
	if t.panics {
		panic("boom")
	}
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return t.result, t.err
}

func decodeEnvelope(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("envelope is not JSON: %v (%s)", err, raw)
	}
	return out
}

func TestRegistryExecuteSuccess(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	r.Register(&stubTool{name: "echo", result: map[string]interface{}{"ok": true}})

	out := decodeEnvelope(t, r.Execute(context.Background(), "echo", nil))
	result, ok := out["result"].(map[string]interface{})
	if !ok || result["ok"] != true {
		t.Fatalf("envelope = %v", out)
	}
	if _, hasErr := out["error"]; hasErr {
		t.Fatal("success envelope must not carry error")
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	out := decodeEnvelope(t, r.Execute(context.Background(), "nope", nil))
	if out["error"] != "Unknown tool: nope" {
		t.Fatalf("error = %v", out["error"])
	}
	if out["tool"] != "nope" {
		t.Fatalf("tool = %v", out["tool"])
	}
}

func TestRegistryExecuteTimeout(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, nil)
	r.Register(&stubTool{name: "slow", delay: time.Second})

	out := decodeEnvelope(t, r.Execute(context.Background(), "slow", nil))
	msg, _ := out["error"].(string)
	if msg != "Tool timed out after 20ms" {
		t.Fatalf("error = %q", msg)
	}
	if out["tool"] != "slow" {
		t.Fatalf("tool = %v", out["tool"])
	}
}

func TestRegistryExecuteToolError(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	r.Register(&stubTool{name: "bad", err: errors.New("upstream 500")})

	out := decodeEnvelope(t, r.Execute(context.Background(), "bad", nil))
	if out["error"] != "upstream 500" {
		t.Fatalf("error = %v", out["error"])
	}
}

func TestRegistryExecuteRecoversPanic(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	r.Register(&stubTool{name: "panicky", panics: true})

	out := decodeEnvelope(t, r.Execute(context.Background(), "panicky", nil))
	if out["error"] != "tool panicked: boom" {
		t.Fatalf("error = %v", out["error"])
	}
}

func TestSchemasKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry(time.Second, nil)
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})
	r.Register(&stubTool{name: "c"})
	r.Register(&stubTool{name: "b"}) // replacement keeps position

	schemas := r.Schemas()
	if len(schemas) != 3 {
		t.Fatalf("schemas = %d", len(schemas))
	}
	for i, want := range []string{"a", "b", "c"} {
		if schemas[i].Name != want {
			t.Fatalf("schemas[%d] = %s, want %s", i, schemas[i].Name, want)
		}
	}
}

func TestArgHelpers(t *testing.T) {
	input := map[string]interface{}{
		"q":     "acme",
		"count": float64(7),
		"deep":  true,
		"tags":  []interface{}{"cloud", 3, "security"},
	}
	if got := stringArg(input, "q"); got != "acme" {
		t.Fatalf("stringArg = %q", got)
	}
	if got := stringArg(input, "missing"); got != "" {
		t.Fatalf("stringArg missing = %q", got)
	}
	if got := intArg(input, "count", 10); got != 7 {
		t.Fatalf("intArg = %d", got)
	}
	if got := intArg(input, "missing", 10); got != 10 {
		t.Fatalf("intArg default = %d", got)
	}
	if got := boolArg(input, "deep", false); !got {
		t.Fatal("boolArg = false")
	}
	tags := stringsArg(input, "tags")
	if len(tags) != 2 || tags[0] != "cloud" || tags[1] != "security" {
		t.Fatalf("stringsArg = %v", tags)
	}
}
