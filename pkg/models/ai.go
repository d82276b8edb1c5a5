package models

// QueryAgentRequest is the body of POST /api/ai/agent/query.
type QueryAgentRequest struct {
	RepoName string `json:"repoName"`
	ChatID   string `json:"chatId"`
	Query    string `json:"query"`
}

// AgentResult is the reply extracted from the AI backend response.
type AgentResult struct {
	Output string `json:"output"`
}

// Role tags understood by the AI backend.
const (
	RoleHuman  = "human"
	RoleAI     = "ai"
	RoleSystem = "system"
)

// AgentMessage is one entry of the history sent to, and returned by, the AI backend.
type AgentMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// QryRequest is the AI backend query request.
type QryRequest struct {
	QryMetadata QryMetadata `json:"qry_metadata"`
	QryData     QryData     `json:"qry_data"`
}

type QryMetadata struct {
	RepoName string `json:"repo_name"`
}

type QryData struct {
	MessageHistory []AgentMessage `json:"message_history"`
}

// QryResponse is the AI backend query response.
type QryResponse struct {
	Output []AgentMessage `json:"output"`
}

// CmdTypeEmbedRepo is the command type for starting a repository embedding run.
const CmdTypeEmbedRepo = "embed_repo"

// CmdRequest is the command published to the embedding workflow topic.
type CmdRequest struct {
	CmdType     string         `json:"cmd_type"`
	CmdMetadata CmdMetadata    `json:"cmd_metadata"`
	CmdData     map[string]any `json:"cmd_data"`
	CmdResult   map[string]any `json:"cmd_result"`
}

type CmdMetadata struct {
	RepoName  string    `json:"repo_name"`
	UserID    string    `json:"user_id,omitempty"`
	CmdPostOp CmdPostOp `json:"cmd_post_op"`
}

type CmdPostOp struct {
	CmdResultBroadcasts []CmdResultBroadcast `json:"cmd_result_broadcasts"`
}

// CmdResultBroadcast tells the worker where to POST once the command finishes.
type CmdResultBroadcast struct {
	URL           string           `json:"url"`
	StaticPayload *EmbeddingResult `json:"static_payload,omitempty"`
}
