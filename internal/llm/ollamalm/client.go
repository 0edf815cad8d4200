// Package ollamalm adapts the Ollama client library to internal/llm.Client,
// for fully-local/offline tutoring deployments.
package ollamalm

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"kotori/internal/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client wraps a single local Ollama model.
type Client struct {
	client      *api.Client
	model       string
	debugChunks bool
}

func New(model, baseURL string, debugChunks bool) (*Client, error) {
	var client *api.Client
	var err error

	if baseURL != "" {
		u, perr := url.Parse(baseURL)
		if perr != nil {
			return nil, fmt.Errorf("invalid ollama base url: %w", perr)
		}
		client = api.NewClient(u, nil)
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	return &Client{client: client, model: model, debugChunks: debugChunks}, nil
}

func (c *Client) Provider() string { return "ollama" }

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool, temperature float64) (<-chan llm.StreamChunk, error) {
	apiMessages := convertMessages(messages)
	apiTools := convertTools(tools)

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		streamVal := true
		req := &api.ChatRequest{
			Model:    c.model,
			Messages: apiMessages,
			Options:  map[string]any{"temperature": temperature},
			Tools:    apiTools,
			Stream:   &streamVal,
		}

		started := false
		debugger := llm.NewStreamDebugger(ctx, c.Provider(), c.debugChunks)
		defer debugger.Close()

		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if raw, merr := json.Marshal(resp); merr == nil {
				debugger.Write(raw)
			}

			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			if resp.Message.Content != "" {
				chunkCh <- llm.StreamChunk{ContentBlocks: []llm.ContentBlock{llm.NewTextBlock(resp.Message.Content)}}
			}

			if len(resp.Message.ToolCalls) > 0 {
				var toolCalls []llm.ToolCall
				for _, tc := range resp.Message.ToolCalls {
					argsB, _ := json.Marshal(tc.Function.Arguments)
					toolCalls = append(toolCalls, llm.ToolCall{
						Name: tc.Function.Name,
						Function: llm.FunctionCall{
							Name:      tc.Function.Name,
							Arguments: string(argsB),
						},
					})
				}
				chunkCh <- llm.StreamChunk{ToolCalls: toolCalls}
			}

			if resp.Done {
				usage := &llm.Usage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					StopReason:       resp.DoneReason,
				}
				chunkCh <- llm.NewFinalChunk(resp.DoneReason, usage)
			}
			return nil
		})

		if err != nil {
			if !started {
				select {
				case startResultCh <- err:
				default:
				}
			} else {
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("ollama stream error: %v", err), err, true)
			}
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

func convertMessages(messages []llm.Message) []api.Message {
	var out []api.Message
	for _, m := range messages {
		role := m.Role
		if role == "tool" {
			out = append(out, api.Message{Role: "tool", Content: m.GetTextContent()})
			continue
		}
		out = append(out, api.Message{Role: role, Content: m.GetTextContent()})
	}
	return out
}

func convertTools(tools []llm.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	var out []api.Tool
	for _, t := range tools {
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        t.Name(),
				Description: t.Description(),
			},
		})
	}
	return out
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") || strings.Contains(msg, "timeout")
}
