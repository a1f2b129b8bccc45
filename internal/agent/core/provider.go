package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aquaregiaswarm-blip/scout/config"
)

// ToolSchema describes a callable tool to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// ContentBlock is one element of a message's content array.
type ContentBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
}

// Message is one turn in a conversation. Content is either a plain string or
// a []ContentBlock, matching what the messages API accepts.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// MessageRequest is a single call to the model.
type MessageRequest struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float64
}

// Usage reports token consumption for one model call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// MessageResponse is the model's reply to one request.
type MessageResponse struct {
	Content    []ContentBlock
	StopReason string
	Usage      Usage
}

// Text concatenates all text blocks of the response.
func (r MessageResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// ToolCalls extracts the tool_use blocks of the response.
func (r MessageResponse) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range r.Content {
		if b.Type == "tool_use" {
			calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Input: b.Input})
		}
	}
	return calls
}

// LLMProvider sends one messages-API request to a model backend.
type LLMProvider interface {
	Message(ctx context.Context, req MessageRequest) (MessageResponse, error)
	// ResolveModel maps a routing alias (e.g. "sonnet") to an API model name.
	ResolveModel(alias string) string
}

// AnthropicProvider implements LLMProvider against the Anthropic messages API.
type AnthropicProvider struct {
	cfg    config.LLMProviderConfig
	client *http.Client
}

// NewAnthropicProvider creates a provider from configuration.
func NewAnthropicProvider(cfg config.LLMProviderConfig) *AnthropicProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &AnthropicProvider{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

// ResolveModel maps a configured alias to its API model name. Unknown aliases
// pass through unchanged so raw model names remain usable.
func (p *AnthropicProvider) ResolveModel(alias string) string {
	if m, ok := p.cfg.Models[alias]; ok && m.APIName != "" {
		return m.APIName
	}
	return alias
}

// Message performs one messages-API call.
func (p *AnthropicProvider) Message(ctx context.Context, req MessageRequest) (MessageResponse, error) {
	type apiRequest struct {
		Model       string       `json:"model"`
		MaxTokens   int          `json:"max_tokens"`
		System      string       `json:"system,omitempty"`
		Messages    []Message    `json:"messages"`
		Tools       []ToolSchema `json:"tools,omitempty"`
		Temperature float64      `json:"temperature,omitempty"`
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	body, err := json.Marshal(apiRequest{
		Model:       p.ResolveModel(req.Model),
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    req.Messages,
		Tools:       req.Tools,
		Temperature: req.Temperature,
	})
	if err != nil {
		return MessageResponse{}, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return MessageResponse{}, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return MessageResponse{}, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, string(b))
	}

	var out struct {
		Content    []json.RawMessage `json:"content"`
		StopReason string            `json:"stop_reason"`
		Usage      Usage             `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return MessageResponse{}, fmt.Errorf("decode: %w", err)
	}

	blocks := make([]ContentBlock, 0, len(out.Content))
	for _, raw := range out.Content {
		var b ContentBlock
		if err := json.Unmarshal(raw, &b); err != nil {
			return MessageResponse{}, fmt.Errorf("decode content block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return MessageResponse{Content: blocks, StopReason: out.StopReason, Usage: out.Usage}, nil
}

// TextContent builds a single-text content array for a user or assistant turn.
func TextContent(text string) []ContentBlock {
	return []ContentBlock{{Type: "text", Text: text}}
}

// ToolResultContent builds a tool_result block answering one tool call.
func ToolResultContent(toolUseID, result string) ContentBlock {
	return ContentBlock{Type: "tool_result", ToolUseID: toolUseID, Content: result}
}
