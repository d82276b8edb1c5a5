package services

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/actor"
	"github.com/codeready-toolchain/lexi/pkg/models"
)

// RepoService reads and writes the repository registry. Every mutation is one
// read-modify-write span over the whole registry.
type RepoService struct {
	rt  *actor.Runtime
	now func() time.Time
}

// NewRepoService creates a new RepoService
func NewRepoService(rt *actor.Runtime) *RepoService {
	return &RepoService{rt: rt, now: time.Now}
}

// GetRepositories returns the registry. An empty map is returned before the
// first sync.
func (s *RepoService) GetRepositories(ctx context.Context) (actor.Registry, error) {
	found, repos, err := s.rt.Repos().TryGetDecompressed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get repositories: %w", err)
	}
	if !found || repos == nil {
		return actor.Registry{}, nil
	}
	return repos, nil
}

// GetRepository returns one registry entry, or ErrNotFound.
func (s *RepoService) GetRepository(ctx context.Context, name string) (*models.RepositorySummary, error) {
	repos, err := s.GetRepositories(ctx)
	if err != nil {
		return nil, err
	}
	repo, ok := repos[name]
	if !ok {
		return nil, fmt.Errorf("repository %s: %w", name, ErrNotFound)
	}
	return &repo, nil
}

// ReplaceRepositories overwrites the whole registry.
func (s *RepoService) ReplaceRepositories(ctx context.Context, repos actor.Registry) error {
	if repos == nil {
		repos = actor.Registry{}
	}
	if err := s.rt.Repos().SetCompressed(ctx, repos); err != nil {
		return fmt.Errorf("failed to store repositories: %w", err)
	}
	return nil
}

// UpdateRepository inserts or replaces one entry.
func (s *RepoService) UpdateRepository(ctx context.Context, repo models.RepositorySummary) error {
	if repo.Name == "" {
		return NewValidationError("name", "required")
	}
	_, err := s.Update(ctx, func(repos actor.Registry) error {
		repos[repo.Name] = repo
		return nil
	})
	return err
}

// UpdateRepositoryStatus sets the embedding status of an existing entry and
// refreshes its LastModified.
func (s *RepoService) UpdateRepositoryStatus(ctx context.Context, name string, status models.EmbeddingStatus) (*models.RepositorySummary, error) {
	if !status.IsValid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown embedding status %q", status))
	}

	var updated models.RepositorySummary
	_, err := s.Update(ctx, func(repos actor.Registry) error {
		repo, ok := repos[name]
		if !ok {
			return fmt.Errorf("repository %s: %w", name, ErrNotFound)
		}
		repo.EmbeddingStatus = status
		repo.LastModified = s.now()
		repos[name] = repo
		updated = repo
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Update runs fn over a private copy of the registry inside one span and
// stores the result. fn may return actor.ErrNoChange to skip the write.
func (s *RepoService) Update(ctx context.Context, fn func(repos actor.Registry) error) (actor.Registry, error) {
	repos, err := s.rt.Repos().UpdateCompressed(ctx, func(current actor.Registry, _ bool) (actor.Registry, error) {
		next := make(actor.Registry, len(current))
		maps.Copy(next, current)
		if err := fn(next); err != nil {
			return current, err
		}
		return next, nil
	})
	if err != nil {
		return nil, wrapEntityErr("update repositories", err)
	}
	return repos, nil
}
