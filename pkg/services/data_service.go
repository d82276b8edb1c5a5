package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/actor"
	"github.com/codeready-toolchain/lexi/pkg/models"
)

// DefaultEmbeddingTimeout is how long a repository may stay InProgress before
// it is considered abandoned.
const DefaultEmbeddingTimeout = 30 * time.Minute

// RepositoryLister is the external repository listing backend.
type RepositoryLister interface {
	ListRepositories(ctx context.Context) ([]models.RepositorySummary, error)
	GetRepositoryInfo(ctx context.Context, name string) (json.RawMessage, error)
	GetRepositoryFiles(ctx context.Context, name string) (json.RawMessage, error)
	GetRepositoryFileContent(ctx context.Context, name, path string) (string, error)
}

// EmbeddingDispatcher starts an embedding run without waiting for it.
type EmbeddingDispatcher interface {
	EmbedRepository(ctx context.Context, cmd models.CmdRequest) error
}

// StatusNotifier announces embedding status changes to every connected client.
type StatusNotifier interface {
	BroadcastEmbeddingStatus(ctx context.Context, repoName string, status models.EmbeddingStatus, message string)
}

type nopStatusNotifier struct{}

func (nopStatusNotifier) BroadcastEmbeddingStatus(context.Context, string, models.EmbeddingStatus, string) {
}

// DataServiceConfig configures DataService.
type DataServiceConfig struct {
	// HostURL is the externally reachable base URL of this service, used to
	// build the embedding completion callback.
	HostURL          string
	EmbeddingTimeout time.Duration
}

// DataService drives repository synchronization and embedding runs.
type DataService struct {
	repos      *RepoService
	lister     RepositoryLister
	dispatcher EmbeddingDispatcher
	notifier   StatusNotifier
	cfg        DataServiceConfig
	now        func() time.Time
}

// NewDataService creates a new DataService
func NewDataService(repos *RepoService, lister RepositoryLister, dispatcher EmbeddingDispatcher, cfg DataServiceConfig) *DataService {
	if cfg.EmbeddingTimeout <= 0 {
		cfg.EmbeddingTimeout = DefaultEmbeddingTimeout
	}
	cfg.HostURL = strings.TrimRight(cfg.HostURL, "/")
	return &DataService{
		repos:      repos,
		lister:     lister,
		dispatcher: dispatcher,
		notifier:   nopStatusNotifier{},
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetNotifier wires the realtime relay. Called once during startup.
func (s *DataService) SetNotifier(n StatusNotifier) {
	if n == nil {
		n = nopStatusNotifier{}
	}
	s.notifier = n
}

// SyncRepositories replaces the registry with the current listing. Returns
// the number of repositories stored.
func (s *DataService) SyncRepositories(ctx context.Context) (int, error) {
	listed, err := s.lister.ListRepositories(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list repositories: %w", err)
	}

	repos := make(actor.Registry, len(listed))
	for _, r := range listed {
		if r.IsDisabled || r.Name == "" {
			continue
		}
		if r.EmbeddingStatus == "" {
			r.EmbeddingStatus = models.EmbeddingNotStarted
		}
		if r.LastModified.IsZero() {
			r.LastModified = s.now()
		}
		repos[r.Name] = r
	}

	if err := s.repos.ReplaceRepositories(ctx, repos); err != nil {
		return 0, err
	}
	slog.Info("Repositories synchronized", "count", len(repos))
	return len(repos), nil
}

// ResetEmbeddingStatus moves every repository stuck InProgress for longer
// than the embedding timeout to Error. Returns the names that were reset.
func (s *DataService) ResetEmbeddingStatus(ctx context.Context) ([]string, error) {
	now := s.now()
	var reset []string
	_, err := s.repos.Update(ctx, func(repos actor.Registry) error {
		for name, r := range repos {
			if !r.EmbeddingTimedOut(now, s.cfg.EmbeddingTimeout) {
				continue
			}
			r.EmbeddingStatus = models.EmbeddingError
			r.LastModified = now
			repos[name] = r
			reset = append(reset, name)
		}
		if len(reset) == 0 {
			return actor.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, name := range reset {
		slog.Warn("Embedding timed out", "repository", name, "timeout", s.cfg.EmbeddingTimeout)
		s.notifier.BroadcastEmbeddingStatus(ctx, name, models.EmbeddingError, statusChangedMessage(name, models.EmbeddingError))
	}
	return reset, nil
}

// TryEmbedRepository starts an embedding run when the stored record allows
// it: never embedded, last run failed, or the running one timed out. Returns
// false without side effects otherwise.
//
// Cancellation is only honored before the status flip. Once the repository
// is InProgress the sequence runs to completion; a dispatch failure moves
// it to Error and is returned.
func (s *DataService) TryEmbedRepository(ctx context.Context, userID, name string) (bool, error) {
	if name == "" {
		return false, NewValidationError("name", "required")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := s.now()
	started := false
	_, err := s.repos.Update(ctx, func(repos actor.Registry) error {
		r, ok := repos[name]
		if !ok {
			return fmt.Errorf("repository %s: %w", name, ErrNotFound)
		}
		if !r.CanEmbed(now, s.cfg.EmbeddingTimeout) {
			return actor.ErrNoChange
		}
		r.EmbeddingStatus = models.EmbeddingInProgress
		r.LastModified = now
		repos[name] = r
		started = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !started {
		return false, nil
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.dispatcher.EmbedRepository(ctx, s.embedCommand(userID, name)); err != nil {
		slog.Error("Failed to dispatch embedding", "repository", name, "error", err)
		if _, uerr := s.repos.UpdateRepositoryStatus(ctx, name, models.EmbeddingError); uerr != nil {
			slog.Error("Failed to flag embedding error", "repository", name, "error", uerr)
		}
		s.notifier.BroadcastEmbeddingStatus(ctx, name, models.EmbeddingError,
			fmt.Sprintf("Failed to initiate embedding for %s: %v", name, err))
		return true, fmt.Errorf("failed to start embedding for %s: %w", name, err)
	}

	s.notifier.BroadcastEmbeddingStatus(ctx, name, models.EmbeddingInProgress,
		fmt.Sprintf("Starting embedding process for %s...", name))
	return true, nil
}

// HandleEmbeddingResult records the outcome posted back by the embedding
// worker and broadcasts it.
func (s *DataService) HandleEmbeddingResult(ctx context.Context, name string, result models.EmbeddingResult) (*models.RepositorySummary, error) {
	if result.Status == "" {
		result.Status = models.EmbeddingSuccess
	}
	current, err := s.repos.GetRepository(ctx, name)
	if err != nil {
		return nil, err
	}
	if !current.EmbeddingStatus.CanTransitionTo(result.Status) {
		slog.Warn("Unexpected embedding status transition",
			"repository", name,
			"from", current.EmbeddingStatus,
			"to", result.Status)
	}

	updated, err := s.repos.UpdateRepositoryStatus(ctx, name, result.Status)
	if err != nil {
		return nil, err
	}
	s.BroadcastRepositoryStatus(ctx, name, result.Status, result.Message)
	return updated, nil
}

// UpdateRepositoryStatus sets a repository's embedding status.
func (s *DataService) UpdateRepositoryStatus(ctx context.Context, name string, status models.EmbeddingStatus) (*models.RepositorySummary, error) {
	return s.repos.UpdateRepositoryStatus(ctx, name, status)
}

// BroadcastRepositoryStatus announces a status to all clients. An empty
// message is replaced with a generic one.
func (s *DataService) BroadcastRepositoryStatus(ctx context.Context, name string, status models.EmbeddingStatus, message string) {
	if message == "" {
		message = statusChangedMessage(name, status)
	}
	s.notifier.BroadcastEmbeddingStatus(ctx, name, status, message)
}

// GetRepositoryEmbeddingStatus returns the status of one repository.
func (s *DataService) GetRepositoryEmbeddingStatus(ctx context.Context, name string) (models.EmbeddingStatus, error) {
	repo, err := s.repos.GetRepository(ctx, name)
	if err != nil {
		return "", err
	}
	return repo.EmbeddingStatus, nil
}

// GetRepositoriesEmbeddingStatus returns the status of each known name.
// Unknown names are omitted.
func (s *DataService) GetRepositoriesEmbeddingStatus(ctx context.Context, names []string) (map[string]models.EmbeddingStatus, error) {
	repos, err := s.repos.GetRepositories(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]models.EmbeddingStatus, len(names))
	for _, name := range names {
		if r, ok := repos[name]; ok {
			statuses[name] = r.EmbeddingStatus
		}
	}
	return statuses, nil
}

// GetRepositoryInfo passes through to the listing backend.
func (s *DataService) GetRepositoryInfo(ctx context.Context, name string) (json.RawMessage, error) {
	return s.lister.GetRepositoryInfo(ctx, name)
}

// GetRepositoryFiles passes through to the listing backend.
func (s *DataService) GetRepositoryFiles(ctx context.Context, name string) (json.RawMessage, error) {
	return s.lister.GetRepositoryFiles(ctx, name)
}

// GetRepositoryFileContent passes through to the listing backend.
func (s *DataService) GetRepositoryFileContent(ctx context.Context, name, path string) (string, error) {
	if path == "" {
		return "", NewValidationError("path", "required")
	}
	return s.lister.GetRepositoryFileContent(ctx, name, path)
}

func (s *DataService) embedCommand(userID, name string) models.CmdRequest {
	return models.CmdRequest{
		CmdType: models.CmdTypeEmbedRepo,
		CmdMetadata: models.CmdMetadata{
			RepoName: name,
			UserID:   userID,
			CmdPostOp: models.CmdPostOp{
				CmdResultBroadcasts: []models.CmdResultBroadcast{{
					URL: fmt.Sprintf("%s/api/repositories/%s/broadcast", s.cfg.HostURL, url.PathEscape(name)),
					StaticPayload: &models.EmbeddingResult{
						RepositoryName: name,
						Message:        fmt.Sprintf("Embedding of %s is complete", name),
						Status:         models.EmbeddingSuccess,
					},
				}},
			},
		},
		CmdData:   map[string]any{},
		CmdResult: map[string]any{},
	}
}

func statusChangedMessage(name string, status models.EmbeddingStatus) string {
	return fmt.Sprintf("Repository %s status changed to %s", name, status)
}
