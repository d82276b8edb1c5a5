// Package cron runs the periodic repository reconciliation jobs.
package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/metrics"
)

// Job names, used as the metrics label and in logs.
const (
	JobSyncRepositories     = "sync_repositories"
	JobResetEmbeddingStatus = "reset_embedding_status"
)

// Reconciler is the repository data the jobs act on.
type Reconciler interface {
	SyncRepositories(ctx context.Context) (int, error)
	ResetEmbeddingStatus(ctx context.Context) ([]string, error)
}

// Config holds the job intervals. A zero interval disables the job's loop;
// it can still be run on demand.
type Config struct {
	SyncInterval  time.Duration
	ResetInterval time.Duration
}

// Service periodically:
//   - replaces the repository registry with the hosting service's listing
//   - moves embeddings stuck InProgress past their timeout to Error
//
// Both jobs are idempotent and safe to run from multiple replicas.
type Service struct {
	cfg        Config
	reconciler Reconciler

	// one run per job at a time, whether scheduled or triggered over HTTP
	syncMu  sync.Mutex
	resetMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new reconciliation service.
func NewService(cfg Config, reconciler Reconciler) *Service {
	return &Service{cfg: cfg, reconciler: reconciler}
}

// Start launches the background loops.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.every(ctx, s.cfg.SyncInterval, func(ctx context.Context) { _, _ = s.SyncRepositories(ctx) })
	s.every(ctx, s.cfg.ResetInterval, func(ctx context.Context) { _, _ = s.ResetEmbeddingStatus(ctx) })

	slog.Info("Reconciliation service started",
		"sync_interval", s.cfg.SyncInterval,
		"reset_interval", s.cfg.ResetInterval)
}

// Stop signals the loops to exit and waits for them to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	slog.Info("Reconciliation service stopped")
}

func (s *Service) every(ctx context.Context, interval time.Duration, job func(context.Context)) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		job(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job(ctx)
			}
		}
	}()
}

// SyncRepositories runs the repository sync once. Errors are logged and
// returned; they never stop the loop.
func (s *Service) SyncRepositories(ctx context.Context) (int, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	count, err := s.reconciler.SyncRepositories(ctx)
	record(JobSyncRepositories, err)
	if err != nil {
		slog.Error("Reconcile: repository sync failed", "error", err)
		return 0, err
	}
	slog.Info("Reconcile: repositories synchronized", "count", count)
	return count, nil
}

// ResetEmbeddingStatus runs the embedding timeout sweep once.
func (s *Service) ResetEmbeddingStatus(ctx context.Context) ([]string, error) {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	reset, err := s.reconciler.ResetEmbeddingStatus(ctx)
	record(JobResetEmbeddingStatus, err)
	if err != nil {
		slog.Error("Reconcile: embedding status reset failed", "error", err)
		return nil, err
	}
	if len(reset) > 0 {
		slog.Info("Reconcile: reset timed out embeddings", "count", len(reset), "repositories", reset)
	}
	return reset, nil
}

func record(job string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ReconcileRuns.WithLabelValues(job, outcome).Inc()
}
