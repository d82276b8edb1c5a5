package api

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/lexi/pkg/models"
)

// listRepositoriesHandler handles GET /api/repositories. Repositories are
// returned sorted by name.
func (s *Server) listRepositoriesHandler(c *gin.Context) {
	registry, err := s.repos.GetRepositories(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	repos := make([]models.RepositorySummary, 0, len(registry))
	for _, r := range registry {
		repos = append(repos, r)
	}
	slices.SortFunc(repos, func(a, b models.RepositorySummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	c.JSON(http.StatusOK, repos)
}

// getRepositoryHandler handles GET /api/repositories/:name.
func (s *Server) getRepositoryHandler(c *gin.Context) {
	info, err := s.data.GetRepositoryInfo(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", info)
}

// listRepositoryFilesHandler handles GET /api/repositories/:name/files.
func (s *Server) listRepositoryFilesHandler(c *gin.Context) {
	files, err := s.data.GetRepositoryFiles(c.Request.Context(), c.Param("name"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", files)
}

// getRepositoryFileHandler handles GET /api/repositories/:name/files/*path.
func (s *Server) getRepositoryFileHandler(c *gin.Context) {
	path := c.Param("path")
	if path == "" || path == "/" {
		abortBadRequest(c, "file path is required")
		return
	}
	content, err := s.data.GetRepositoryFileContent(c.Request.Context(), c.Param("name"), path)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.String(http.StatusOK, content)
}

// embedRepositoryHandler handles POST /api/repositories/embed. Answers 202
// when a run was started and 409 when the repository is not eligible.
func (s *Server) embedRepositoryHandler(c *gin.Context) {
	var req models.EmbedRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	if req.Name == "" {
		abortBadRequest(c, "name is required")
		return
	}

	started, err := s.data.TryEmbedRepository(c.Request.Context(), callerID(c), req.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	status := http.StatusAccepted
	if !started {
		status = http.StatusConflict
	}
	c.JSON(status, EmbedResponse{RepositoryName: req.Name, Started: started})
}

// repositoryStatusHandler handles GET /api/repositories/:name/status.
func (s *Server) repositoryStatusHandler(c *gin.Context) {
	name := c.Param("name")
	status, err := s.data.GetRepositoryEmbeddingStatus(c.Request.Context(), name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, RepositoryStatusResponse{RepositoryName: name, Status: status})
}

// repositoriesStatusHandler handles POST /api/repositories/status.
func (s *Server) repositoriesStatusHandler(c *gin.Context) {
	var req models.RepositoryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	statuses, err := s.data.GetRepositoriesEmbeddingStatus(c.Request.Context(), req.RepoNames)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

// embeddingResultHandler handles POST /api/repositories/:name/broadcast,
// the completion callback of the embedding worker.
func (s *Server) embeddingResultHandler(c *gin.Context) {
	var result models.EmbeddingResult
	if err := c.ShouldBindJSON(&result); err != nil {
		abortBadRequest(c, err.Error())
		return
	}
	repo, err := s.data.HandleEmbeddingResult(c.Request.Context(), c.Param("name"), result)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, repo)
}
