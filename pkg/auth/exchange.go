package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
	"github.com/codeready-toolchain/lexi/pkg/version"
)

// UserEnsurer creates the user entity of a first-time login.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, info models.UserInfo) (*models.User, error)
}

// ExchangeConfig describes the identity provider's token endpoint.
type ExchangeConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Timeout      time.Duration
}

// Token is a raw token with its validated claims.
type Token struct {
	Raw    string  `json:"raw"`
	Claims *Claims `json:"obj"`
}

// TokenSet is the token triple returned to the UI.
type TokenSet struct {
	AccessToken  Token  `json:"accessToken"`
	IDToken      Token  `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
}

// ExchangeResult is the answer to a code exchange or refresh.
type ExchangeResult struct {
	Status string           `json:"status"`
	Tokens TokenSet         `json:"tokens"`
	User   *models.UserInfo `json:"usr,omitempty"`
}

type providerTokens struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Exchanger trades authorization codes and refresh tokens for tokens.
type Exchanger struct {
	cfg        ExchangeConfig
	validator  *Validator
	users      UserEnsurer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewExchanger creates an Exchanger.
func NewExchanger(cfg ExchangeConfig, validator *Validator, users UserEnsurer) *Exchanger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Exchanger{
		cfg:        cfg,
		validator:  validator,
		users:      users,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     slog.Default().With("component", "auth-exchanger"),
	}
}

// ExchangeCode redeems an authorization code. The id token must carry the
// nonce the UI generated plus email and name claims; the user entity is
// created on the first successful exchange, keyed by email.
func (e *Exchanger) ExchangeCode(ctx context.Context, code, nonce string) (*ExchangeResult, error) {
	if code == "" {
		return nil, services.NewValidationError("code", "required")
	}
	if nonce == "" {
		return nil, services.NewValidationError("nonce", "required")
	}

	tokens, err := e.requestTokens(ctx, url.Values{
		"grant_type":   {"authorization_code"},
		"redirect_uri": {e.cfg.RedirectURI},
		"code":         {code},
	})
	if err != nil {
		return nil, err
	}

	set, idIdentity, err := e.validateTokens(tokens)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(idIdentity.Claims.Nonce), []byte(nonce)) != 1 {
		return nil, fmt.Errorf("%w: nonce mismatch", ErrInvalidToken)
	}
	if idIdentity.Email == "" || idIdentity.Name == "" {
		return nil, fmt.Errorf("%w: id token is missing email or name", ErrInvalidToken)
	}

	info := models.UserInfo{ID: idIdentity.Email, Email: idIdentity.Email, Name: idIdentity.Name}
	if _, err := e.users.EnsureUser(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	e.logger.Info("Token exchange succeeded", "user_id", info.ID)
	return &ExchangeResult{Status: "ok", Tokens: *set, User: &info}, nil
}

// Refresh redeems a refresh token for a new token triple.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*ExchangeResult, error) {
	if refreshToken == "" {
		return nil, services.NewValidationError("refreshToken", "required")
	}
	tokens, err := e.requestTokens(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		return nil, err
	}
	set, _, err := e.validateTokens(tokens)
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{Status: "ok", Tokens: *set}, nil
}

func (e *Exchanger) validateTokens(tokens *providerTokens) (*TokenSet, *Identity, error) {
	if tokens.IDToken == "" || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, nil, fmt.Errorf("%w: token response is missing one or more tokens", ErrInvalidToken)
	}
	idIdentity, err := e.validator.Validate(tokens.IDToken, e.cfg.ClientID)
	if err != nil {
		return nil, nil, fmt.Errorf("id token: %w", err)
	}
	accessIdentity, err := e.validator.ValidateAccessToken(tokens.AccessToken)
	if err != nil {
		return nil, nil, fmt.Errorf("access token: %w", err)
	}
	return &TokenSet{
		AccessToken:  Token{Raw: tokens.AccessToken, Claims: accessIdentity.Claims},
		IDToken:      Token{Raw: tokens.IDToken, Claims: idIdentity.Claims},
		RefreshToken: tokens.RefreshToken,
	}, idIdentity, nil
}

func (e *Exchanger) requestTokens(ctx context.Context, form url.Values) (*providerTokens, error) {
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.Full())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Error("Token request failed",
			"grant_type", form.Get("grant_type"),
			"status", resp.StatusCode)
		return nil, &services.UpstreamError{
			Service:    "identity-provider",
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var tokens providerTokens
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return &tokens, nil
}
