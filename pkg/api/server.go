// Package api is the HTTP and WebSocket edge of lexi.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/codeready-toolchain/lexi/pkg/auth"
	"github.com/codeready-toolchain/lexi/pkg/config"
	"github.com/codeready-toolchain/lexi/pkg/cron"
	"github.com/codeready-toolchain/lexi/pkg/database"
	"github.com/codeready-toolchain/lexi/pkg/events"
	"github.com/codeready-toolchain/lexi/pkg/services"
	"github.com/codeready-toolchain/lexi/pkg/statestore"
	"github.com/codeready-toolchain/lexi/pkg/version"
)

// Dependencies are the collaborators the handlers call into. DB and
// Exchanger are optional.
type Dependencies struct {
	Chats      *services.ChatService
	Users      *services.UserService
	Repos      *services.RepoService
	Data       *services.DataService
	Agent      events.AgentQuerier
	Relay      *events.Relay
	Reconciler *cron.Service
	Validator  *auth.Validator
	Exchanger  *auth.Exchanger
	Store      statestore.Store
	DB         *database.Client
}

// Server is the HTTP API server.
type Server struct {
	cfg        *config.ServerConfig
	engine     *gin.Engine
	httpServer *http.Server

	chats      *services.ChatService
	users      *services.UserService
	repos      *services.RepoService
	data       *services.DataService
	agent      events.AgentQuerier
	relay      *events.Relay
	reconciler *cron.Service
	validator  *auth.Validator
	exchanger  *auth.Exchanger
	store      statestore.Store
	dbClient   *database.Client
}

// NewServer creates the server and registers every route.
func NewServer(cfg *config.ServerConfig, deps Dependencies) *Server {
	s := &Server{
		cfg:        cfg,
		engine:     gin.New(),
		chats:      deps.Chats,
		users:      deps.Users,
		repos:      deps.Repos,
		data:       deps.Data,
		agent:      deps.Agent,
		relay:      deps.Relay,
		reconciler: deps.Reconciler,
		validator:  deps.Validator,
		exchanger:  deps.Exchanger,
		store:      deps.Store,
		dbClient:   deps.DB,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(otelgin.Middleware(version.AppName))
	s.engine.Use(securityHeaders())
	s.engine.Use(requestMetrics())
	if len(cfg.AllowedOrigins) > 0 {
		s.engine.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	e := s.engine

	// Public
	e.GET("/health", s.healthHandler)
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/ws", s.wsHandler)
	e.GET("/cron-trigger-syncrepos", s.syncRepositoriesHandler)
	e.GET("/cron-trigger-resetembeddingstatus", s.resetEmbeddingStatusHandler)
	e.POST("/api/auth/token/exchange", s.exchangeTokenHandler)
	e.POST("/api/auth/token/refresh", s.refreshTokenHandler)
	// called back by the embedding worker
	e.POST("/api/repositories/:name/broadcast", s.embeddingResultHandler)

	// Protected
	api := e.Group("/api", s.requireAuth())

	api.GET("/auth/me", s.getMeHandler)

	chats := api.Group("/chats")
	chats.GET("", s.listChatsHandler)
	chats.POST("", s.createChatHandler)
	chats.GET("/:chatId", s.getChatHandler)
	chats.DELETE("/:chatId", s.deleteChatHandler)
	chats.GET("/:chatId/messages", s.listMessagesHandler)
	chats.POST("/:chatId/messages", s.sendMessageHandler)
	chats.GET("/:chatId/messages/:messageId", s.getMessageHandler)
	chats.DELETE("/:chatId/messages/:messageId", s.deleteMessageHandler)
	chats.PUT("/:chatId/rename", s.renameChatHandler)
	chats.PUT("/:chatId/pin", s.pinChatHandler)
	chats.POST("/:chatId/participants/:participantId", s.addParticipantHandler)
	chats.DELETE("/:chatId/participants/:participantId", s.removeParticipantHandler)
	chats.GET("/:chatId/repository", s.getChatRepositoryHandler)
	chats.PUT("/:chatId/repository", s.updateChatRepositoryHandler)

	users := api.Group("/user")
	users.GET("", s.listUsersHandler)
	users.POST("", s.createUserHandler)
	users.GET("/me", s.getMeHandler)
	users.GET("/search", s.searchUsersHandler)
	users.GET("/:id", s.getUserHandler)
	users.PUT("/:id", s.updateUserHandler)
	users.DELETE("/:id", s.deleteUserHandler)

	repos := api.Group("/repositories")
	repos.GET("", s.listRepositoriesHandler)
	repos.POST("/embed", s.embedRepositoryHandler)
	repos.POST("/status", s.repositoriesStatusHandler)
	repos.GET("/:name", s.getRepositoryHandler)
	repos.GET("/:name/status", s.repositoryStatusHandler)
	repos.GET("/:name/files", s.listRepositoryFilesHandler)
	repos.GET("/:name/files/*path", s.getRepositoryFileHandler)

	api.POST("/ai/agent/query", s.queryAgentHandler)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves HTTP on addr until Shutdown. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones. Open
// WebSocket connections are hijacked and are closed by the relay instead.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// wsOriginPatterns turns the CORS origins into the host patterns the
// WebSocket handshake checks, plus any explicitly configured patterns.
func wsOriginPatterns(cfg *config.ServerConfig) []string {
	patterns := make([]string, 0, len(cfg.AllowedOrigins)+len(cfg.AllowedWSOrigins))
	for _, origin := range cfg.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			slog.Warn("Ignoring malformed allowed origin", "origin", origin)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return append(patterns, cfg.AllowedWSOrigins...)
}
