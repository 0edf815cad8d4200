// Package openailm adapts the official OpenAI Go SDK to the internal/llm.Client contract.
package openailm

import (
	"context"
	"fmt"
	"strings"

	"kotori/internal/llm"

	jsoniter "github.com/json-iterator/go"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client wraps the OpenAI chat-completions streaming API.
type Client struct {
	client      *openai.Client
	model       string
	baseURL     string
	debugChunks bool
}

func New(apiKey, model, baseURL string, debugChunks bool) (*Client, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &Client{client: &c, model: model, baseURL: baseURL, debugChunks: debugChunks}, nil
}

func (c *Client) Provider() string { return "openai" }

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, tools []llm.Tool, temperature float64) (<-chan llm.StreamChunk, error) {
	chunkCh := make(chan llm.StreamChunk, 100)

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    convertMessages(messages),
		Temperature: openai.Float(temperature),
	}
	if toolParams := convertTools(tools); len(toolParams) > 0 {
		params.Tools = toolParams
	}

	go func() {
		defer close(chunkCh)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		acc := openai.ChatCompletionAccumulator{}

		debugger := llm.NewStreamDebugger(ctx, c.Provider(), c.debugChunks)
		defer debugger.Close()

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if raw, merr := json.Marshal(chunk); merr == nil {
				debugger.Write(raw)
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					chunkCh <- llm.StreamChunk{ContentBlocks: []llm.ContentBlock{llm.NewTextBlock(choice.Delta.Content)}}
				}
			}
		}

		if err := stream.Err(); err != nil {
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("stream error: %v", err), err, true)
			return
		}

		var toolCalls []llm.ToolCall
		if len(acc.Choices) > 0 {
			for _, tc := range acc.Choices[0].Message.ToolCalls {
				toolCalls = append(toolCalls, llm.ToolCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Function: llm.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		}
		if len(toolCalls) > 0 {
			chunkCh <- llm.StreamChunk{ToolCalls: toolCalls}
		}

		usage := &llm.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
			StopReason:       normalizeFinishReason(string(acc.Choices[0].FinishReason)),
		}
		chunkCh <- llm.NewFinalChunk(usage.StopReason, usage)
	}()

	return chunkCh, nil
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.GetTextContent()))
		case "user":
			out = append(out, openai.UserMessage(m.GetTextContent()))
		case "assistant":
			if len(m.ToolCalls) > 0 {
				var calls []openai.ChatCompletionMessageToolCallUnionParam
				for _, tc := range m.ToolCalls {
					calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Function.Name,
								Arguments: tc.Function.Arguments,
							},
						},
					})
				}
				asst := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
				asst.Content.OfString = openai.String(m.GetTextContent())
				out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
				continue
			}
			out = append(out, openai.AssistantMessage(m.GetTextContent()))
		case "tool":
			out = append(out, openai.ToolMessage(m.GetTextContent(), m.ToolCallID))
		}
	}
	return out
}

func convertTools(tools []llm.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	var out []openai.ChatCompletionToolUnionParam
	for _, t := range tools {
		params := map[string]any{"type": "object", "properties": t.Parameters()}
		if req := t.RequiredParameters(); len(req) > 0 {
			params["required"] = req
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  params,
		}))
	}
	return out
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "length":
		return llm.StopReasonLength
	default:
		return llm.StopReasonStop
	}
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "503")
}
