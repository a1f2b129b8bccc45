// Package tools implements the research tools exposed to sub-agents and the
// registry that dispatches model tool calls onto them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aquaregiaswarm-blip/scout/config"
	"github.com/aquaregiaswarm-blip/scout/internal/agent/core"
)

// Tool is one research capability. Execute returns a structured result for
// serialization back to the model.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Registry holds the available tools and runs calls against them. It
// implements core.ToolSource: every execution is wrapped with a per-call
// timeout and serialized into the result/error envelope — tool failures
// never surface as errors to the research loop.
type Registry struct {
	tools   map[string]Tool
	order   []string
	timeout time.Duration
	logger  *log.Logger
}

// NewRegistry creates an empty registry with the given per-call timeout.
func NewRegistry(timeout time.Duration, logger *log.Logger) *Registry {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{tools: make(map[string]Tool), timeout: timeout, logger: logger}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the tool definitions in registration order.
func (r *Registry) Schemas() []core.ToolSchema {
	out := make([]core.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, core.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	return out
}

// Execute runs one tool call and returns the serialized envelope:
// {"result": ...} on success, {"error": ..., "tool": name} on any failure,
// including timeouts. It never panics past this boundary.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]interface{}) string {
	tool, ok := r.tools[name]
	if !ok {
		r.logger.Printf("unknown tool requested: %s", name)
		return errorEnvelope(fmt.Sprintf("Unknown tool: %s", name), name)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		result map[string]interface{}
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- outcome{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		res, err := tool.Execute(ctx, input)
		ch <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		r.logger.Printf("%s timed out after %s", name, r.timeout)
		return errorEnvelope(fmt.Sprintf("Tool timed out after %s", r.timeout), name)
	case out := <-ch:
		if out.err != nil {
			r.logger.Printf("%s failed: %v", name, out.err)
			return errorEnvelope(out.err.Error(), name)
		}
		return resultEnvelope(out.result)
	}
}

func resultEnvelope(result map[string]interface{}) string {
	b, err := json.MarshalIndent(map[string]interface{}{"result": result}, "", "  ")
	if err != nil {
		return errorEnvelope(fmt.Sprintf("serialize result: %v", err), "")
	}
	return string(b)
}

func errorEnvelope(msg, tool string) string {
	b, _ := json.Marshal(map[string]interface{}{"error": msg, "tool": tool})
	return string(b)
}

// NewDefaultRegistry builds the standard five-tool registry from config.
func NewDefaultRegistry(cfg config.ToolsConfig, timeout time.Duration, logger *log.Logger) *Registry {
	r := NewRegistry(timeout, logger)
	brave := NewBraveClient(cfg.BraveAPIKey)
	r.Register(NewWebSearchTool(brave))
	r.Register(NewWebScrapeTool(NewFetcher(cfg.Scrape), cfg.Scrape.MaxChars))
	r.Register(NewSECFilingsTool(cfg.SECUserAgent))
	r.Register(NewNewsSearchTool(brave))
	r.Register(NewJobPostingsTool(brave))
	return r
}

// Argument helpers. Model inputs arrive as decoded JSON, so numbers are
// float64 and arrays are []interface{}.

func stringArg(input map[string]interface{}, key string) string {
	if s, ok := input[key].(string); ok {
		return s
	}
	return ""
}

func intArg(input map[string]interface{}, key string, def int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func boolArg(input map[string]interface{}, key string, def bool) bool {
	if b, ok := input[key].(bool); ok {
		return b
	}
	return def
}

func stringsArg(input map[string]interface{}, key string) []string {
	raw, ok := input[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
