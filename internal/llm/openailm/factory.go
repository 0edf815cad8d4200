package openailm

import (
	"kotori/internal/config"
	"kotori/internal/llm"
)

// Factory handles creation of OpenAI clients from a ProviderGroupConfig.
type Factory struct{}

func (f *Factory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.Client, error) {
	apiKey := ""
	if len(cfg.APIKeys) > 0 {
		apiKey = cfg.APIKeys[0]
	}

	var clients []llm.Client
	for _, model := range cfg.Models {
		c, err := New(apiKey, model, cfg.BaseURL, sys.DebugChunks)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("openai", &Factory{})
}
