package config

import (
	"os"
	"time"
)

// Config is the umbrella configuration object returned by Initialize() and
// used throughout the application.
type Config struct {
	configDir string

	Server       *ServerConfig       `yaml:"server"`
	StateStore   *StateStoreConfig   `yaml:"state_store"`
	Relay        *RelayConfig        `yaml:"relay"`
	AI           *AIConfig           `yaml:"ai"`
	Repositories *RepositoriesConfig `yaml:"repositories"`
	Auth         *AuthConfig         `yaml:"auth"`
}

// ServerConfig holds HTTP edge settings.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
	// HostURL is the externally reachable base URL, used for callbacks
	HostURL string `yaml:"host_url"`
	// AllowedOrigins is the CORS allow-list for the web UI
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// AllowedWSOrigins are additional WebSocket origin patterns
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins,omitempty"`
	WSWriteTimeout   time.Duration `yaml:"ws_write_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// StateStoreConfig selects the actor state backend.
type StateStoreConfig struct {
	Backend StateStoreBackend `yaml:"backend"`
	// Namespace prefixes every state key
	Namespace  string `yaml:"namespace"`
	BadgerPath string `yaml:"badger_path,omitempty"`
}

// RelayConfig holds realtime relay settings.
type RelayConfig struct {
	Bus           RelayBus `yaml:"bus"`
	RedisChannel  string   `yaml:"redis_channel"`
	NotifyChannel string   `yaml:"notify_channel"`
	// MentionToken addresses the assistant in group chats
	MentionToken string `yaml:"mention_token"`
}

// AIConfig holds AI backend settings.
type AIConfig struct {
	QueryURL   string           `yaml:"query_url"`
	Timeout    time.Duration    `yaml:"timeout"`
	EmbedTopic string           `yaml:"embed_topic"`
	Publisher  CommandPublisher `yaml:"publisher"`
}

// RepositoriesConfig holds repository hosting and reconciliation settings.
type RepositoriesConfig struct {
	BaseURL      string `yaml:"base_url"`
	Organization string `yaml:"organization"`
	Project      string `yaml:"project"`
	// TokenEnv names the environment variable holding the access token
	TokenEnv          string        `yaml:"token_env"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	// SyncInterval and ResetInterval drive the background loop; 0 disables
	SyncInterval     time.Duration `yaml:"sync_interval"`
	ResetInterval    time.Duration `yaml:"reset_interval"`
	EmbeddingTimeout time.Duration `yaml:"embedding_timeout"`
}

// Token resolves the repository access token from the environment.
func (r *RepositoriesConfig) Token() string {
	return os.Getenv(r.TokenEnv)
}

// AuthConfig holds token validation and identity provider settings.
type AuthConfig struct {
	Issuer           string        `yaml:"issuer"`
	Audience         string        `yaml:"audience"`
	HMACSecretEnv    string        `yaml:"hmac_secret_env"`
	RSAPublicKeyFile string        `yaml:"rsa_public_key_file,omitempty"`
	Leeway           time.Duration `yaml:"leeway"`
	TokenURL         string        `yaml:"token_url"`
	ClientID         string        `yaml:"client_id"`
	ClientSecretEnv  string        `yaml:"client_secret_env"`
	RedirectURI      string        `yaml:"redirect_uri"`
}

// HMACSecret resolves the token signing secret from the environment.
func (a *AuthConfig) HMACSecret() string {
	return os.Getenv(a.HMACSecretEnv)
}

// ClientSecret resolves the identity provider client secret from the environment.
func (a *AuthConfig) ClientSecret() string {
	return os.Getenv(a.ClientSecretEnv)
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}
