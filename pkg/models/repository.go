package models

import "time"

// EmbeddingStatus tracks the indexing state of a repository.
//
//	NotStarted → InProgress → {Success, Error}
//	Error → InProgress (retry)
//	InProgress → Error (timeout reconciliation)
type EmbeddingStatus string

const (
	EmbeddingNotStarted EmbeddingStatus = "NotStarted"
	EmbeddingInProgress EmbeddingStatus = "InProgress"
	EmbeddingSuccess    EmbeddingStatus = "Success"
	EmbeddingError      EmbeddingStatus = "Error"
)

// IsValid reports whether s is one of the known statuses.
func (s EmbeddingStatus) IsValid() bool {
	switch s {
	case EmbeddingNotStarted, EmbeddingInProgress, EmbeddingSuccess, EmbeddingError:
		return true
	}
	return false
}

// RepositorySummary is one entry of the repository registry, keyed by Name.
type RepositorySummary struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	LastModified    time.Time       `json:"lastModified"`
	IsDisabled      bool            `json:"isDisabled"`
	EmbeddingStatus EmbeddingStatus `json:"embeddingStatus"`
}

// EmbeddingTimedOut reports whether the repository has been InProgress for
// longer than timeout.
func (r *RepositorySummary) EmbeddingTimedOut(now time.Time, timeout time.Duration) bool {
	return r.EmbeddingStatus == EmbeddingInProgress && now.Sub(r.LastModified) > timeout
}

// CanEmbed reports whether an embedding run may be started: the repository
// has never been embedded, the last run failed, or a run has timed out.
func (r *RepositorySummary) CanEmbed(now time.Time, timeout time.Duration) bool {
	switch r.EmbeddingStatus {
	case EmbeddingNotStarted, EmbeddingError, "":
		return true
	case EmbeddingInProgress:
		return r.EmbeddingTimedOut(now, timeout)
	}
	return false
}

// EmbedRepositoryRequest is the body of POST /api/repositories/embed.
type EmbedRepositoryRequest struct {
	Name string `json:"name"`
}

// RepositoryStatusRequest is the body of POST /api/repositories/status.
type RepositoryStatusRequest struct {
	RepoNames []string `json:"repoNames"`
}

// EmbeddingResult is posted back by the embedding worker to
// /api/repositories/:name/broadcast once a run finishes.
type EmbeddingResult struct {
	RepositoryName string          `json:"repository_name"`
	Message        string          `json:"message"`
	Status         EmbeddingStatus `json:"status"`
}

// CanTransitionTo reports whether the embedding state machine allows moving
// from s to next. Success is terminal; only a registry re-sync replaces it.
func (s EmbeddingStatus) CanTransitionTo(next EmbeddingStatus) bool {
	switch s {
	case EmbeddingNotStarted, "":
		return next == EmbeddingInProgress
	case EmbeddingInProgress:
		return next == EmbeddingSuccess || next == EmbeddingError
	case EmbeddingError:
		return next == EmbeddingInProgress
	}
	return false
}
