package repoclient

import (
	"context"
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
	"golang.org/x/time/rate"
)

const (
	serviceName = "azure-devops"

	// maxResponseBytes caps one REST answer, file content included.
	maxResponseBytes = 10 << 20
)

// Config configures the Azure DevOps client.
type Config struct {
	BaseURL      string // default https://dev.azure.com
	Organization string
	Project      string
	// Token is a personal access token; empty sends no credentials.
	Token string
	// CacheTTL bounds how long repository metadata and files are reused.
	CacheTTL time.Duration
	// RequestsPerSecond throttles outgoing calls; 0 disables throttling.
	RequestsPerSecond float64
}

// AzureDevOpsClient lists repositories and reads their content through the
// Azure DevOps Git REST API.
type AzureDevOpsClient struct {
	httpClient *http.Client
	cfg        Config
	cache      *Cache[[]byte]
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewAzureDevOpsClient creates a client for cfg.
func NewAzureDevOpsClient(cfg Config) (*AzureDevOpsClient, error) {
	if cfg.Organization == "" {
		return nil, fmt.Errorf("azure devops organization is required")
	}
	if cfg.Project == "" {
		cfg.Project = "Software"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dev.azure.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	return &AzureDevOpsClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cfg:        cfg,
		cache:      NewCache[[]byte](cfg.CacheTTL),
		limiter:    limiter,
		logger:     slog.Default().With("component", "repoclient"),
	}, nil
}

// adoRepository is one entry of the repositories list response.
type adoRepository struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	IsDisabled    bool      `json:"isDisabled"`
	DefaultBranch string    `json:"defaultBranch"`
	LastUpdate    time.Time `json:"lastUpdateTime"`
}

type adoRepositoriesResponse struct {
	Count int             `json:"count"`
	Value []adoRepository `json:"value"`
}

// ListRepositories returns every enabled repository of the project. Listings
// are never cached.
func (c *AzureDevOpsClient) ListRepositories(ctx context.Context) ([]models.RepositorySummary, error) {
	body, err := c.get(ctx, c.repoURL("", nil))
	if err != nil {
		return nil, err
	}

	var resp adoRepositoriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode repositories response: %w", err)
	}

	repos := make([]models.RepositorySummary, 0, len(resp.Value))
	for _, r := range resp.Value {
		if r.IsDisabled {
			continue
		}
		repos = append(repos, models.RepositorySummary{
			ID:              r.ID,
			Name:            r.Name,
			LastModified:    r.LastUpdate,
			EmbeddingStatus: models.EmbeddingNotStarted,
		})
	}
	c.logger.Debug("Listed repositories", "total", len(resp.Value), "enabled", len(repos))
	return repos, nil
}

// GetRepositoryInfo returns the raw repository document.
func (c *AzureDevOpsClient) GetRepositoryInfo(ctx context.Context, name string) (json.RawMessage, error) {
	body, err := c.cachedGet(ctx, "info|"+name+"|", c.repoURL(name, url.Values{"api-version": {"6.0"}}))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// GetRepositoryFiles returns the raw recursive item listing of a repository.
func (c *AzureDevOpsClient) GetRepositoryFiles(ctx context.Context, name string) (json.RawMessage, error) {
	q := url.Values{
		"recursionLevel":         {"Full"},
		"includeContentMetadata": {"true"},
		"api-version":            {"7.0"},
	}
	body, err := c.cachedGet(ctx, "files|"+name+"|", c.repoURL(name+"/items", q))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// GetRepositoryFileContent returns the content of one file.
func (c *AzureDevOpsClient) GetRepositoryFileContent(ctx context.Context, name, path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	q := url.Values{
		"path":        {path},
		"api-version": {"6.0"},
	}
	body, err := c.cachedGet(ctx, "content|"+name+"|"+path, c.repoURL(name+"/items", q))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// InvalidateRepository drops cached data for one repository.
func (c *AzureDevOpsClient) InvalidateRepository(name string) {
	c.cache.Invalidate("info|" + name + "|")
	c.cache.Invalidate("files|" + name + "|")
	c.cache.Invalidate("content|" + name + "|")
}

func (c *AzureDevOpsClient) repoURL(suffix string, q url.Values) string {
	u := fmt.Sprintf("%s/%s/%s/_apis/git/repositories",
		c.cfg.BaseURL, url.PathEscape(c.cfg.Organization), url.PathEscape(c.cfg.Project))
	if suffix != "" {
		name, rest, _ := strings.Cut(suffix, "/")
		u += "/" + url.PathEscape(name)
		if rest != "" {
			u += "/" + rest
		}
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *AzureDevOpsClient) cachedGet(ctx context.Context, key, rawURL string) ([]byte, error) {
	if body, ok := c.cache.Get(key); ok {
		return body, nil
	}
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, body)
	return body, nil
}

func (c *AzureDevOpsClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.Full())
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("%s: response exceeds %d bytes", rawURL, maxResponseBytes)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", rawURL, services.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &services.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 512),
		}
	}
	return body, nil
}

// setAuthHeader sends the personal access token as basic auth with an
// empty user name.
func (c *AzureDevOpsClient) setAuthHeader(req *http.Request) {
	if c.cfg.Token != "" {
		req.SetBasicAuth("", c.cfg.Token)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
