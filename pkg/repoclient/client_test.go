package repoclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, token string, server *httptest.Server) *AzureDevOpsClient {
	t.Helper()
	client, err := NewAzureDevOpsClient(Config{
		BaseURL:      server.URL,
		Organization: "contoso",
		Project:      "Software",
		Token:        token,
	})
	require.NoError(t, err)
	client.httpClient = server.Client()
	return client
}

func TestNewAzureDevOpsClient_RequiresOrganization(t *testing.T) {
	_, err := NewAzureDevOpsClient(Config{})
	require.Error(t, err)
}

func TestAzureDevOpsClient_ListRepositories(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, gotAuth = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"count": 3,
			"value": []map[string]any{
				{"id": "1", "name": "lexi-api"},
				{"id": "2", "name": "archived", "isDisabled": true},
				{"id": "3", "name": "lexi-web"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(t, "pat-123", server)

	repos, err := client.ListRepositories(context.Background())
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "lexi-api", repos[0].Name)
	assert.Equal(t, models.EmbeddingNotStarted, repos[0].EmbeddingStatus)
	assert.Equal(t, "lexi-web", repos[1].Name)

	assert.Equal(t, "/contoso/Software/_apis/git/repositories", gotPath)
	assert.True(t, gotAuth)
	assert.Empty(t, gotUser)
	assert.Equal(t, "pat-123", gotPass)
}

func TestAzureDevOpsClient_NoAuthWithoutToken(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasAuth = r.Header.Get("Authorization") != ""
		_, _ = w.Write([]byte(`{"count":0,"value":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, "", server).ListRepositories(context.Background())
	require.NoError(t, err)
	assert.False(t, hasAuth)
}

func TestAzureDevOpsClient_FileContentIsCached(t *testing.T) {
	var calls atomic.Int32
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotQuery = r.URL.Query().Get("path")
		_, _ = w.Write([]byte("package main\n"))
	}))
	defer server.Close()

	client := newTestClient(t, "", server)
	ctx := context.Background()

	content, err := client.GetRepositoryFileContent(ctx, "lexi-api", "cmd/main.go")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)
	assert.Equal(t, "/cmd/main.go", gotQuery)

	_, err = client.GetRepositoryFileContent(ctx, "lexi-api", "/cmd/main.go")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	client.InvalidateRepository("lexi-api")
	_, err = client.GetRepositoryFileContent(ctx, "lexi-api", "/cmd/main.go")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAzureDevOpsClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not found",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, services.ErrNotFound)
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var ue *services.UpstreamError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
				assert.Equal(t, "azure-devops", ue.Service)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("boom"))
			}))
			defer server.Close()

			_, err := newTestClient(t, "", server).GetRepositoryInfo(context.Background(), "lexi-api")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestAzureDevOpsClient_RepoURL(t *testing.T) {
	client, err := NewAzureDevOpsClient(Config{Organization: "my org", Project: "Soft ware"})
	require.NoError(t, err)

	assert.Equal(t,
		"https://dev.azure.com/my%20org/Soft%20ware/_apis/git/repositories/a%20b/items?api-version=7.0",
		client.repoURL("a b/items", map[string][]string{"api-version": {"7.0"}}))
}
