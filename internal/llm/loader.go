package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kotori/internal/config"

	jsoniter "github.com/json-iterator/go"
)

// NewFromConfig instantiates the chat Client from the raw "llm" config
// section: one group per provider type, one atomic client per model/key
// pair within a group. Multiple atomic clients are wrapped in a
// FallbackClient that retries and fails over in declaration order.
func NewFromConfig(rawLLM jsoniter.RawMessage, system *config.SystemConfig) (Client, error) {
	if rawLLM == nil {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
	}

	var atomic []Client
	for _, group := range groups {
		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("unknown LLM provider type", "type", group.Type)
			continue
		}
		clients, err := factory.Create(group, system)
		if err != nil {
			slog.Error("failed to create LLM clients", "type", group.Type, "error", err)
			continue
		}
		atomic = append(atomic, clients...)
	}

	if len(atomic) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}
	if len(atomic) == 1 {
		return atomic[0], nil
	}

	return &FallbackClient{
		Clients:    atomic,
		MaxRetries: system.MaxRetries,
		RetryDelay: time.Duration(system.RetryDelayMs) * time.Millisecond,
	}, nil
}

// FallbackClient tries each wrapped client in order, retrying transient
// failures up to MaxRetries before cascading to the next.
type FallbackClient struct {
	Clients    []Client
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, tools []Tool, temperature float64) (<-chan StreamChunk, error) {
	var lastErr error
	maxRetries := f.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	for i, client := range f.Clients {
		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages, tools, temperature)
			if err == nil {
				return ch, nil
			}
			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.Warn("LLM provider failed with transient error, retrying", "provider_index", i, "error", err)
				continue
			}
			slog.Error("LLM provider failed", "provider_index", i, "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// IsTransientError always reports false: a FallbackClient failure means
// every wrapped client already exhausted its own retries.
func (f *FallbackClient) IsTransientError(err error) bool { return false }
