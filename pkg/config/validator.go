package config

import (
	"fmt"
	"net/url"
)

// ConfigValidator validates configuration with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	checks := []func() error{
		v.validateServer,
		v.validateStateStore,
		v.validateRelay,
		v.validateAI,
		v.validateRepositories,
		v.validateAuth,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return NewValidationError("server", "http_port", fmt.Errorf("%w: %d", ErrInvalidValue, s.HTTPPort))
	}
	if err := requireURL("server", "host_url", s.HostURL); err != nil {
		return err
	}
	if s.WSWriteTimeout <= 0 {
		return NewValidationError("server", "ws_write_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *ConfigValidator) validateStateStore() error {
	s := v.cfg.StateStore
	if !s.Backend.IsValid() {
		return NewValidationError("state_store", "backend", fmt.Errorf("%w: %s", ErrInvalidValue, s.Backend))
	}
	if s.Namespace == "" {
		return NewValidationError("state_store", "namespace", ErrMissingRequiredField)
	}
	if s.Backend == StateStoreBadger && s.BadgerPath == "" {
		return NewValidationError("state_store", "badger_path", ErrMissingRequiredField)
	}
	return nil
}

func (v *ConfigValidator) validateRelay() error {
	r := v.cfg.Relay
	if !r.Bus.IsValid() {
		return NewValidationError("relay", "bus", fmt.Errorf("%w: %s", ErrInvalidValue, r.Bus))
	}
	if r.MentionToken == "" {
		return NewValidationError("relay", "mention_token", ErrMissingRequiredField)
	}
	return nil
}

func (v *ConfigValidator) validateAI() error {
	a := v.cfg.AI
	if err := requireURL("ai", "query_url", a.QueryURL); err != nil {
		return err
	}
	if a.Timeout <= 0 {
		return NewValidationError("ai", "timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if !a.Publisher.IsValid() {
		return NewValidationError("ai", "publisher", fmt.Errorf("%w: %s", ErrInvalidValue, a.Publisher))
	}
	return nil
}

func (v *ConfigValidator) validateRepositories() error {
	r := v.cfg.Repositories
	if r.SyncInterval < 0 {
		return NewValidationError("repositories", "sync_interval", fmt.Errorf("%w: negative", ErrInvalidValue))
	}
	if r.ResetInterval < 0 {
		return NewValidationError("repositories", "reset_interval", fmt.Errorf("%w: negative", ErrInvalidValue))
	}
	if r.RequestsPerSecond < 0 {
		return NewValidationError("repositories", "requests_per_second", fmt.Errorf("%w: negative", ErrInvalidValue))
	}
	if r.Organization == "" {
		return NewValidationError("repositories", "organization", ErrMissingRequiredField)
	}
	return nil
}

func (v *ConfigValidator) validateAuth() error {
	a := v.cfg.Auth
	if a.HMACSecretEnv == "" && a.RSAPublicKeyFile == "" {
		return NewValidationError("auth", "hmac_secret_env", fmt.Errorf("%w: a signing key source is required", ErrMissingRequiredField))
	}
	if a.TokenURL != "" {
		if err := requireURL("auth", "token_url", a.TokenURL); err != nil {
			return err
		}
		if a.ClientID == "" {
			return NewValidationError("auth", "client_id", ErrMissingRequiredField)
		}
	}
	return nil
}

func requireURL(section, field, raw string) error {
	if raw == "" {
		return NewValidationError(section, field, ErrMissingRequiredField)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewValidationError(section, field, fmt.Errorf("%w: %q is not an absolute URL", ErrInvalidValue, raw))
	}
	return nil
}
