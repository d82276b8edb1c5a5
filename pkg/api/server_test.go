package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/lexi/pkg/actor"
	"github.com/codeready-toolchain/lexi/pkg/auth"
	"github.com/codeready-toolchain/lexi/pkg/config"
	"github.com/codeready-toolchain/lexi/pkg/cron"
	"github.com/codeready-toolchain/lexi/pkg/events"
	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
	"github.com/codeready-toolchain/lexi/pkg/statestore"
	"github.com/codeready-toolchain/lexi/test/util"
)

const testSecret = "api-test-secret-api-test-secret-32"

type stubAgent struct {
	mu     sync.Mutex
	output string
	err    error
	calls  int
}

func (a *stubAgent) QueryAgent(_ context.Context, _ string, _ models.QueryAgentRequest) (*models.AgentResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &models.AgentResult{Output: a.output}, nil
}

func (a *stubAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type stubLister struct {
	repos []models.RepositorySummary
	err   error
}

func (l *stubLister) ListRepositories(context.Context) ([]models.RepositorySummary, error) {
	return l.repos, l.err
}

func (l *stubLister) GetRepositoryInfo(_ context.Context, name string) (json.RawMessage, error) {
	if l.err != nil {
		return nil, l.err
	}
	return json.RawMessage(`{"name":"` + name + `"}`), nil
}

func (l *stubLister) GetRepositoryFiles(_ context.Context, name string) (json.RawMessage, error) {
	return json.RawMessage(`[{"path":"/main.go"}]`), nil
}

func (l *stubLister) GetRepositoryFileContent(_ context.Context, _, path string) (string, error) {
	return "content of " + path, nil
}

type stubDispatcher struct {
	mu   sync.Mutex
	cmds []models.CmdRequest
	err  error
}

func (d *stubDispatcher) EmbedRepository(_ context.Context, cmd models.CmdRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
	return d.err
}

type apiFixture struct {
	cfg        *config.ServerConfig
	deps       Dependencies
	server     *Server
	chats      *services.ChatService
	users      *services.UserService
	repos      *services.RepoService
	relay      *events.Relay
	agent      *stubAgent
	lister     *stubLister
	dispatcher *stubDispatcher
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := statestore.NewMemory()
	rt := actor.NewRuntime(store, "lexi")
	f := &apiFixture{
		chats:      services.NewChatService(rt),
		users:      services.NewUserService(rt),
		repos:      services.NewRepoService(rt),
		agent:      &stubAgent{output: "answer"},
		lister:     &stubLister{},
		dispatcher: &stubDispatcher{},
	}
	data := services.NewDataService(f.repos, f.lister, f.dispatcher, services.DataServiceConfig{HostURL: "http://lexi.test"})
	f.relay = events.NewRelay(events.RelayConfig{WriteTimeout: time.Second}, f.chats, f.agent)
	f.chats.SetNotifier(f.relay)
	data.SetNotifier(f.relay)
	t.Cleanup(func() {
		f.relay.Wait()
		_ = f.relay.Close(context.Background())
	})

	validator, err := auth.NewValidator(auth.ValidatorConfig{HMACSecret: testSecret})
	require.NoError(t, err)

	f.cfg = &config.ServerConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		WSWriteTimeout: time.Second,
	}
	f.deps = Dependencies{
		Chats:      f.chats,
		Users:      f.users,
		Repos:      f.repos,
		Data:       data,
		Agent:      f.agent,
		Relay:      f.relay,
		Reconciler: cron.NewService(cron.Config{}, data),
		Validator:  validator,
		Store:      store,
	}
	f.server = NewServer(f.cfg, f.deps)
	return f
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.Claims{
		Email: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{auth.DefaultAccessAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// do sends a request as userID; an empty userID sends no token.
func (f *apiFixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) createUsers(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.users.CreateUser(context.Background(), models.UserInfo{ID: id, Name: id, Email: id})
		require.NoError(t, err)
	}
}

var errBoom = errors.New("boom")

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/chats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing or invalid token"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/chats", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.Equal(t, healthStatusHealthy, resp.Checks["state_store"].Status)
	assert.NotContains(t, resp.Checks, "database")
	assert.Zero(t, resp.ActiveConnections)
}

func TestHealthReportsDatabasePool(t *testing.T) {
	f := newFixture(t)
	deps := f.deps
	deps.DB = util.SetupTestDatabase(t)
	f.server = NewServer(f.cfg, deps)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	check := decode[HealthResponse](t, rec).Checks["database"]
	assert.Equal(t, healthStatusHealthy, check.Status)
	require.NotNil(t, check.Pool)
	assert.Positive(t, check.Pool.MaxOpen)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", "", nil)

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lexi_http_requests_total")
}

func TestTokenExchangeNotConfigured(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/token/exchange", "", ExchangeCodeRequest{Code: "c", Nonce: "n"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/token/refresh", "", RefreshTokenRequest{RefreshToken: "r"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWSOriginPatterns(t *testing.T) {
	patterns := wsOriginPatterns(&config.ServerConfig{
		AllowedOrigins:   []string{"https://lexi.example.com", "::bad", "http://localhost:5173"},
		AllowedWSOrigins: []string{"*.internal"},
	})
	assert.Equal(t, []string{"lexi.example.com", "localhost:5173", "*.internal"}, patterns)
}
