// Package auth validates bearer tokens issued by the identity provider and
// performs the authorization-code and refresh-token exchanges on behalf of
// the UI.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessAudience is the audience access tokens are issued for.
const DefaultAccessAudience = "api://default"

// ErrInvalidToken is returned for any token that fails validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims lexi reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Nonce string `json:"nonce,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	// UserID keys the user entity: the email claim, or the subject when the
	// token carries no email.
	UserID  string
	Subject string
	Email   string
	Name    string
	Claims  *Claims
}

// ValidatorConfig holds the key material and expected claims.
type ValidatorConfig struct {
	Issuer         string
	AccessAudience string
	// HMACSecret enables HS256 tokens.
	HMACSecret string
	// RSAPublicKeyFile is a PEM public key enabling RS256 tokens.
	RSAPublicKeyFile string
	Leeway           time.Duration
}

// Validator checks signature, issuer, audience and lifetime of JWTs.
type Validator struct {
	cfg     ValidatorConfig
	hmacKey []byte
	rsaKey  any
	methods []string
}

// NewValidator loads the configured keys. At least one key is required.
func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.AccessAudience == "" {
		cfg.AccessAudience = DefaultAccessAudience
	}
	v := &Validator{cfg: cfg}

	if cfg.HMACSecret != "" {
		v.hmacKey = []byte(cfg.HMACSecret)
		v.methods = append(v.methods, jwt.SigningMethodHS256.Alg())
	}
	if cfg.RSAPublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.RSAPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read RSA public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		v.rsaKey = key
		v.methods = append(v.methods, jwt.SigningMethodRS256.Alg())
	}
	if len(v.methods) == 0 {
		return nil, fmt.Errorf("no token signing key configured")
	}
	return v, nil
}

// ValidateAccessToken validates an API bearer token.
func (v *Validator) ValidateAccessToken(token string) (*Identity, error) {
	return v.Validate(token, v.cfg.AccessAudience)
}

// Validate checks token against audience and returns the caller.
func (v *Validator) Validate(token, audience string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, v.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	id := &Identity{
		UserID:  claims.Email,
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Claims:  claims,
	}
	if id.UserID == "" {
		id.UserID = claims.Subject
	}
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return id, nil
}

func (v *Validator) key(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return v.hmacKey, nil
	case *jwt.SigningMethodRSA:
		return v.rsaKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
}
