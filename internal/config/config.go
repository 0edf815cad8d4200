// Package config loads and hot-reloads the two-file configuration split the
// rest of the runtime depends on: business-level Config and engine-level
// SystemConfig.
package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is the business-level configuration, maps directly to config.json.
type Config struct {
	// LLM holds the raw "llm" provider-group list, parsed lazily by
	// internal/llm.NewFromConfig so this package stays provider-agnostic.
	LLM jsoniter.RawMessage `json:"llm"`
	// SystemPrompt is the base persona/instruction template. The tutor
	// prompt (language, deck, goals) is appended to it per session.
	SystemPrompt string `json:"system_prompt"`
	// FlashcardBaseURL is the local endpoint of the spaced-repetition
	// service (spec §4.4), e.g. "http://127.0.0.1:8765".
	FlashcardBaseURL string `json:"flashcard_base_url"`
	// DefaultDeck is used when a session is created without an explicit
	// deck name.
	DefaultDeck string `json:"default_deck"`
	// HTTPAddr is the listen address for the management API + push channel.
	HTTPAddr string `json:"http_addr"`
}

// DeepCopy returns a value copy; Config carries no maps that need cloning
// beyond the RawMessage, which is treated as immutable once parsed.
func (c *Config) DeepCopy() *Config {
	cp := *c
	return &cp
}

// Validate ensures the configuration carries its mandatory fields.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	if c.FlashcardBaseURL == "" {
		return fmt.Errorf("mandatory 'flashcard_base_url' configuration is missing")
	}
	return nil
}

// SystemConfig holds engine-level technical parameters, maps to system.json.
type SystemConfig struct {
	MaxRetries   int `json:"max_retries"`
	RetryDelayMs int `json:"retry_delay_ms"`

	LLMTimeoutMs          int `json:"llm_timeout_ms"`
	FlashcardTimeoutMs    int `json:"flashcard_timeout_ms"`
	FlashcardHealthMs     int `json:"flashcard_health_timeout_ms"`
	InternalChannelBuffer int `json:"internal_channel_buffer"`

	// MaxNodeSteps bounds a single drive-loop iteration's node recursion
	// (spec §4.1 "Recursion is capped, default 100").
	MaxNodeSteps int `json:"max_node_steps"`
	// ResumeTimeoutMs is the drive loop's await-next-user-input timeout
	// (spec §4.2, §5 default 300s).
	ResumeTimeoutMs int `json:"resume_timeout_ms"`

	// InterruptCooldownMs is the minimum gap between two accepted
	// interrupts (spec §4.2 default 500ms).
	InterruptCooldownMs int `json:"interrupt_cooldown_ms"`
	// InterruptSimilarityThreshold is the LCS-ratio at or above which a new
	// interrupt is considered a duplicate of the last accepted one.
	InterruptSimilarityThreshold float64 `json:"interrupt_similarity_threshold"`
	// InterruptHistoryCap bounds the recently-emitted-interrupt set (spec
	// §4.2/§9, default ~50, trimmed to half on overflow).
	InterruptHistoryCap int `json:"interrupt_history_cap"`

	// ReapMaxAgeHours is the default idle threshold for session reaping
	// (spec §4.5 default 24h).
	ReapMaxAgeHours int `json:"reap_max_age_hours"`
	// ReapCronSpec schedules the periodic maintenance sweep.
	ReapCronSpec string `json:"reap_cron_spec"`

	LogLevel string `json:"log_level"`

	// DebugChunks enables StreamDebugger's raw-chunk capture to disk, nested
	// per session under debug/chunks/<thread_id>/<provider>/chat.log.
	DebugChunks bool `json:"debug_chunks"`
}

// DefaultSystemConfig returns hard-coded, safe defaults matching spec §4–§5.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxRetries:                   3,
		RetryDelayMs:                 500,
		LLMTimeoutMs:                 10000,
		FlashcardTimeoutMs:           10000,
		FlashcardHealthMs:            5000,
		InternalChannelBuffer:        100,
		MaxNodeSteps:                 100,
		ResumeTimeoutMs:              300000,
		InterruptCooldownMs:          500,
		InterruptSimilarityThreshold: 0.80,
		InterruptHistoryCap:          50,
		ReapMaxAgeHours:              24,
		ReapCronSpec:                 "@every 1h",
		LogLevel:                     "info",
	}
}

// Load reads config.json (mandatory) and system.json (optional, soft
// defaults on any failure), matching the teacher's split hard/soft failure
// policy exactly.
func Load() (*Config, *SystemConfig, error) {
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")
	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system.json, returning defaults on any
// failure (missing file, malformed JSON) rather than erroring.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(file, cfg); err != nil {
		return cfg
	}
	return cfg
}
