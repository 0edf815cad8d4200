package gemini

import (
	"kotori/internal/config"
	"kotori/internal/llm"
)

// Factory handles creation of Gemini clients from a ProviderGroupConfig.
type Factory struct{}

func (f *Factory) Create(cfg llm.ProviderGroupConfig, sys *config.SystemConfig) ([]llm.Client, error) {
	var clients []llm.Client
	for _, model := range cfg.Models {
		for _, key := range cfg.APIKeys {
			c, err := New(key, model, sys.DebugChunks)
			if err != nil {
				return nil, err
			}
			clients = append(clients, c)
		}
	}
	return clients, nil
}

func init() {
	llm.RegisterProvider("gemini", &Factory{})
}
