package config

import "time"

// DefaultConfig returns the built-in configuration. Values from lexi.yaml
// are merged on top; anything the file leaves unset keeps these values.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			HTTPPort:        8080,
			HostURL:         "http://localhost:8080",
			AllowedOrigins:  []string{"http://localhost:5173"},
			WSWriteTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		StateStore: &StateStoreConfig{
			Backend:    StateStoreMemory,
			Namespace:  "lexi",
			BadgerPath: "data/state",
		},
		Relay: &RelayConfig{
			Bus:           RelayBusLocal,
			RedisChannel:  "lexi:relay",
			NotifyChannel: "lexi_relay",
			MentionToken:  "@lxi",
		},
		AI: &AIConfig{
			QueryURL:   "http://localhost:8000",
			Timeout:    60 * time.Second,
			EmbedTopic: "embed-repository",
			Publisher:  CommandPublisherLog,
		},
		Repositories: &RepositoriesConfig{
			BaseURL:          "https://dev.azure.com",
			Project:          "Software",
			TokenEnv:         "AZURE_DEVOPS_TOKEN",
			CacheTTL:         5 * time.Minute,
			SyncInterval:     time.Hour,
			ResetInterval:    10 * time.Minute,
			EmbeddingTimeout: 30 * time.Minute,
		},
		Auth: &AuthConfig{
			Audience:        "api://default",
			HMACSecretEnv:   "LEXI_JWT_SECRET",
			Leeway:          30 * time.Second,
			ClientSecretEnv: "LEXI_CLIENT_SECRET",
		},
	}
}
