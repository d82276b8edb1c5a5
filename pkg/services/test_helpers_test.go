package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/actor"
	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/statestore"
	"github.com/stretchr/testify/require"
)

func newTestRuntime() *actor.Runtime {
	return actor.NewRuntime(statestore.NewMemory(), "lexi")
}

// recordingNotifier captures every relay call made by the services.
type recordingNotifier struct {
	mu           sync.Mutex
	messages     []models.ChatMessage
	repoChanges  []string
	statusEvents []statusEvent
}

type statusEvent struct {
	Repo    string
	Status  models.EmbeddingStatus
	Message string
}

func (n *recordingNotifier) BroadcastMessage(_ context.Context, _ string, msg models.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) NotifyRepositoryChanged(_ context.Context, chatID, repoName, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.repoChanges = append(n.repoChanges, chatID+":"+repoName)
}

func (n *recordingNotifier) BroadcastEmbeddingStatus(_ context.Context, repo string, status models.EmbeddingStatus, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusEvents = append(n.statusEvents, statusEvent{Repo: repo, Status: status, Message: message})
}

func (n *recordingNotifier) statuses() []statusEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]statusEvent(nil), n.statusEvents...)
}

// fakeLister is an in-memory repository listing backend.
type fakeLister struct {
	repos []models.RepositorySummary
	err   error
}

func (f *fakeLister) ListRepositories(context.Context) ([]models.RepositorySummary, error) {
	return f.repos, f.err
}

func (f *fakeLister) GetRepositoryInfo(_ context.Context, name string) (json.RawMessage, error) {
	return json.RawMessage(`{"name":"` + name + `"}`), f.err
}

func (f *fakeLister) GetRepositoryFiles(context.Context, string) (json.RawMessage, error) {
	return json.RawMessage(`{"count":0,"value":[]}`), f.err
}

func (f *fakeLister) GetRepositoryFileContent(_ context.Context, _, path string) (string, error) {
	return "content of " + path, f.err
}

// fakeDispatcher records embedding commands.
type fakeDispatcher struct {
	mu   sync.Mutex
	cmds []models.CmdRequest
	err  error
}

func (f *fakeDispatcher) EmbedRepository(_ context.Context, cmd models.CmdRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return f.err
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cmds)
}

// fixedClock returns a clock function pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// createUsers initializes user entities for ids.
func createUsers(t *testing.T, rt *actor.Runtime, ids ...string) {
	t.Helper()
	users := NewUserService(rt)
	for _, id := range ids {
		_, err := users.CreateUser(context.Background(), models.UserInfo{ID: id, Name: id, Email: id + "@example.com"})
		require.NoError(t, err)
	}
}
