package core

import (
	"context"
	"fmt"
	"log"
)

// ToolExecutor runs one named tool call and returns its serialized result,
// already wrapped in the result/error envelope the model expects.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, input map[string]interface{}) string
}

// Gateway drives multi-turn conversations with the model, resolving tool
// calls through an executor until the model stops asking for tools.
type Gateway struct {
	provider LLMProvider
	logger   *log.Logger
}

// NewGateway creates a gateway over the given provider.
func NewGateway(provider LLMProvider, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{provider: provider, logger: logger}
}

// LoopResult is the outcome of a tool-use conversation.
type LoopResult struct {
	Text      string
	ToolCalls int
	Turns     int
	Usage     Usage
}

// Complete performs a single-shot call with no tools and returns the text.
func (g *Gateway) Complete(ctx context.Context, req MessageRequest) (string, Usage, error) {
	resp, err := g.provider.Message(ctx, req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("model call: %w", err)
	}
	return resp.Text(), resp.Usage, nil
}

// RunToolLoop sends req and keeps the conversation going while the model
// requests tools. maxTurns is a soft cap: when reached, the loop stops with
// whatever text the last response carried and logs a warning rather than
// failing the caller.
func (g *Gateway) RunToolLoop(ctx context.Context, req MessageRequest, executor ToolExecutor, maxTurns int) (LoopResult, error) {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	messages := append([]Message(nil), req.Messages...)

	var result LoopResult
	for {
		req.Messages = messages
		resp, err := g.provider.Message(ctx, req)
		if err != nil {
			return result, fmt.Errorf("model call (turn %d): %w", result.Turns+1, err)
		}
		result.Turns++
		result.Usage.InputTokens += resp.Usage.InputTokens
		result.Usage.OutputTokens += resp.Usage.OutputTokens
		result.Text = resp.Text()

		calls := resp.ToolCalls()
		if resp.StopReason != "tool_use" || len(calls) == 0 {
			return result, nil
		}
		if result.Turns >= maxTurns {
			g.logger.Printf("tool loop hit turn cap (%d), returning last response", maxTurns)
			return result, nil
		}

		messages = append(messages, Message{Role: "assistant", Content: resp.Content})

		results := make([]ContentBlock, 0, len(calls))
		for _, call := range calls {
			result.ToolCalls++
			out := executor.Execute(ctx, call.Name, call.Input)
			results = append(results, ToolResultContent(call.ID, out))
		}
		messages = append(messages, Message{Role: "user", Content: results})
	}
}
