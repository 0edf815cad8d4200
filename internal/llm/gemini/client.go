// Package gemini adapts Google's genai SDK to the internal/llm.Client contract.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"kotori/internal/llm"

	"google.golang.org/genai"
)

// Client wraps a single model of the Gemini API.
type Client struct {
	client      *genai.Client
	model       string
	debugChunks bool
}

// New creates a Gemini client bound to a single API key and model.
// debugChunks enables raw-chunk capture to disk via llm.StreamDebugger.
func New(apiKey, model string, debugChunks bool) (*Client, error) {
	ctx := context.Background()
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: c, model: model, debugChunks: debugChunks}, nil
}

func (c *Client) Provider() string { return "gemini" }

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool, temperature float64) (<-chan llm.StreamChunk, error) {
	apiMessages, systemInstruction := c.convertMessages(messages)
	genaiTools := convertTools(tools)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	slog.InfoContext(ctx, "streaming", "provider", c.Provider(), "model", c.model)

	go func() {
		defer close(chunkCh)

		t32 := float32(temperature)
		genConfig := &genai.GenerateContentConfig{
			SystemInstruction: systemInstruction,
			Tools:             genaiTools,
			Temperature:       &t32,
		}

		iter := c.client.Models.GenerateContentStream(ctx, c.model, apiMessages, genConfig)

		started := false
		var lastUsage *llm.Usage

		debugger := llm.NewStreamDebugger(ctx, c.Provider(), c.debugChunks)
		defer debugger.Close()

		for resp, err := range iter {
			if resp != nil {
				if raw, merr := json.Marshal(resp); merr == nil {
					debugger.Write(raw)
				}
			}

			if err != nil {
				if resp == nil {
					if !started {
						startResultCh <- err
					} else {
						chunkCh <- llm.NewErrorChunk(fmt.Sprintf("stream interrupted: %v", err), err, true)
					}
					break
				}
				slog.WarnContext(ctx, "stream error with data", "provider", c.Provider(), "error", err)
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				lastUsage = &llm.Usage{
					PromptTokens:     int(u.PromptTokenCount),
					CompletionTokens: int(u.CandidatesTokenCount),
					TotalTokens:      int(u.TotalTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" && lastUsage != nil {
					lastUsage.StopReason = normalizeStopReason(string(candidate.FinishReason))
				}
				if candidate.Content == nil {
					continue
				}

				var blocks []llm.ContentBlock
				var toolCalls []llm.ToolCall
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						blockType := llm.BlockTypeText
						if part.Thought {
							blockType = llm.BlockTypeThinking
						}
						blocks = append(blocks, llm.ContentBlock{Type: blockType, Text: part.Text})
					}
					if part.FunctionCall != nil {
						argsB, _ := json.Marshal(part.FunctionCall.Args)
						toolCalls = append(toolCalls, llm.ToolCall{
							Name: part.FunctionCall.Name,
							Function: llm.FunctionCall{
								Name:      part.FunctionCall.Name,
								Arguments: string(argsB),
							},
						})
					}
				}
				if len(blocks) > 0 || len(toolCalls) > 0 {
					chunkCh <- llm.StreamChunk{ContentBlocks: blocks, ToolCalls: toolCalls}
				}
			}
		}

		if lastUsage != nil {
			chunkCh <- llm.NewFinalChunk(lastUsage.StopReason, lastUsage)
		}
	}()

	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func convertTools(tools []llm.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	var fds []*genai.FunctionDeclaration
	for _, t := range tools {
		fd := &genai.FunctionDeclaration{Name: t.Name(), Description: t.Description()}
		if params := t.Parameters(); params != nil {
			fullSchema := map[string]any{"type": "object", "properties": params}
			if req := t.RequiredParameters(); len(req) > 0 {
				fullSchema["required"] = req
			}
			b, _ := json.Marshal(fullSchema)
			var schema genai.Schema
			_ = json.Unmarshal(b, &schema)
			fd.Parameters = &schema
		}
		fds = append(fds, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}
}

func (c *Client) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, msg := range messages {
		if msg.Role == "system" {
			var parts []*genai.Part
			for _, b := range msg.Content {
				if b.Type == llm.BlockTypeText && b.Text != "" {
					parts = append(parts, &genai.Part{Text: b.Text})
				}
			}
			if len(parts) > 0 {
				systemInstruction = &genai.Content{Parts: parts}
			}
			continue
		}

		if msg.Role == "tool" {
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     msg.ToolName,
						Response: map[string]any{"result": msg.GetTextContent()},
					},
				}},
			})
			continue
		}

		role := "user"
		if msg.Role == "assistant" {
			role = "model"
		}

		var parts []*genai.Part
		for _, b := range msg.Content {
			switch b.Type {
			case llm.BlockTypeText:
				if b.Text != "" {
					parts = append(parts, &genai.Part{Text: b.Text})
				}
			case llm.BlockTypeThinking:
				if b.Text != "" {
					parts = append(parts, &genai.Part{Text: b.Text, Thought: true})
				}
			}
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{Name: tc.Function.Name, Args: args}})
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, systemInstruction
}

func normalizeStopReason(reason string) string {
	switch strings.ToUpper(reason) {
	case "STOP", "FINISH_REASON_STOP":
		return llm.StopReasonStop
	case "MAX_TOKENS", "FINISH_REASON_MAX_TOKENS":
		return llm.StopReasonLength
	default:
		return strings.ToLower(reason)
	}
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"503", "overloaded", "429", "resource exhausted", "500", "internal error", "timeout", "connection refused", "context deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
