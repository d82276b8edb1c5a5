package actor

import "github.com/codeready-toolchain/lexi/pkg/models"

// Entity kinds. Each kind owns one key namespace in the state store.
const (
	KindChat = "ChatActor"
	KindUser = "UserActor"
	KindRepo = "RepoActor"
)

// RepoRegistryID is the well-known id of the single repository registry.
const RepoRegistryID = "repos"

// Registry maps repository name to its summary.
type Registry = map[string]models.RepositorySummary

// Chat returns the chat entity for id.
func (r *Runtime) Chat(id string) *Entity[models.Chat] {
	return NewEntity[models.Chat](r, KindChat, id)
}

// User returns the user entity for id.
func (r *Runtime) User(id string) *Entity[models.User] {
	return NewEntity[models.User](r, KindUser, id)
}

// Repos returns the repository registry entity.
func (r *Runtime) Repos() *CompressedEntity[Registry] {
	return NewCompressedEntity[Registry](r, KindRepo, RepoRegistryID)
}
