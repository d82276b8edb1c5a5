// lexi server: repository chat backend serving the HTTP API, the realtime
// relay and the reconcile jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/lexi/pkg/actor"
	"github.com/codeready-toolchain/lexi/pkg/ai"
	"github.com/codeready-toolchain/lexi/pkg/api"
	"github.com/codeready-toolchain/lexi/pkg/auth"
	"github.com/codeready-toolchain/lexi/pkg/config"
	"github.com/codeready-toolchain/lexi/pkg/cron"
	"github.com/codeready-toolchain/lexi/pkg/database"
	"github.com/codeready-toolchain/lexi/pkg/events"
	"github.com/codeready-toolchain/lexi/pkg/repoclient"
	"github.com/codeready-toolchain/lexi/pkg/services"
	"github.com/codeready-toolchain/lexi/pkg/statestore"
	"github.com/codeready-toolchain/lexi/pkg/tracing"
	"github.com/codeready-toolchain/lexi/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

// backends holds the connections shared by the state store, the relay bus
// and the command publisher. Each is opened at most once.
type backends struct {
	db    *database.Client
	dbCfg database.Config
	redis *goredis.Client
}

func (b *backends) postgres(ctx context.Context) *database.Client {
	if b.db != nil {
		return b.db
	}
	cfg, err := database.LoadConfigFromEnv()
	if err != nil {
		fatal("Failed to load database config", "error", err)
	}
	client, err := database.NewClient(ctx, cfg)
	if err != nil {
		fatal("Failed to connect to database", "error", err)
	}
	slog.Info("Connected to PostgreSQL database", "host", cfg.Host, "database", cfg.Database)
	b.db, b.dbCfg = client, cfg
	return client
}

func (b *backends) redisClient(ctx context.Context) *goredis.Client {
	if b.redis != nil {
		return b.redis
	}
	db, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		fatal("Invalid REDIS_DB", "error", err)
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		fatal("Failed to connect to Redis", "addr", rdb.Options().Addr, "error", err)
	}
	slog.Info("Connected to Redis", "addr", rdb.Options().Addr)
	b.redis = rdb
	return rdb
}

func (b *backends) close() {
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			slog.Error("Error closing Redis client", "error", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}
}

func openStateStore(ctx context.Context, cfg config.StateStoreConfig, b *backends) statestore.Store {
	switch cfg.Backend {
	case config.StateStorePostgres:
		return statestore.NewPostgres(b.postgres(ctx).DB())
	case config.StateStoreRedis:
		return statestore.NewRedis(b.redisClient(ctx))
	case config.StateStoreBadger:
		store, err := statestore.OpenBadger(statestore.DefaultBadgerConfig(cfg.BadgerPath))
		if err != nil {
			fatal("Failed to open Badger state store", "path", cfg.BadgerPath, "error", err)
		}
		return store
	default:
		slog.Warn("Using in-memory state store; state is lost on restart")
		return statestore.NewMemory()
	}
}

func openRelayBus(ctx context.Context, cfg config.RelayConfig, b *backends) events.Bus {
	switch cfg.Bus {
	case config.RelayBusPostgres:
		db := b.postgres(ctx)
		return events.NewPGNotifyBus(db.DB(), b.dbCfg.DSN(), cfg.NotifyChannel)
	case config.RelayBusRedis:
		bus, err := events.NewRedisBus(ctx, b.redisClient(ctx), cfg.RedisChannel)
		if err != nil {
			fatal("Failed to create Redis relay bus", "error", err)
		}
		return bus
	default:
		return nil
	}
}

func openPublisher(ctx context.Context, cfg config.AIConfig, b *backends) ai.CommandPublisher {
	if cfg.Publisher == config.CommandPublisherRedis {
		pub, err := ai.NewRedisPublisher(ctx, b.redisClient(ctx))
		if err != nil {
			fatal("Failed to create Redis command publisher", "error", err)
		}
		return pub
	}
	slog.Warn("Embedding commands are logged only; no worker will receive them")
	return ai.NewLogPublisher()
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting lexi", "version", version.GitCommit, "config_dir", *configDir)
	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		fatal("Failed to initialize configuration", "error", err)
	}

	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFromEnv(version.AppName, version.GitCommit))
	if err != nil {
		fatal("Failed to initialize tracing", "error", err)
	}

	// 2. State store and actor runtime
	b := &backends{}
	defer b.close()

	store := openStateStore(ctx, *cfg.StateStore, b)
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Error closing state store", "error", err)
		}
	}()
	rt := actor.NewRuntime(store, cfg.StateStore.Namespace)
	slog.Info("State store ready", "backend", cfg.StateStore.Backend, "namespace", cfg.StateStore.Namespace)

	// 3. Domain services
	chatService := services.NewChatService(rt)
	userService := services.NewUserService(rt)
	repoService := services.NewRepoService(rt)

	lister, err := repoclient.NewAzureDevOpsClient(repoclient.Config{
		BaseURL:           cfg.Repositories.BaseURL,
		Organization:      cfg.Repositories.Organization,
		Project:           cfg.Repositories.Project,
		Token:             cfg.Repositories.Token(),
		CacheTTL:          cfg.Repositories.CacheTTL,
		RequestsPerSecond: cfg.Repositories.RequestsPerSecond,
	})
	if err != nil {
		fatal("Failed to create repository client", "error", err)
	}

	publisher := openPublisher(ctx, *cfg.AI, b)
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Error("Error closing command publisher", "error", err)
		}
	}()
	gateway := ai.NewGateway(ai.Config{
		QueryURL:   cfg.AI.QueryURL,
		Timeout:    cfg.AI.Timeout,
		EmbedTopic: cfg.AI.EmbedTopic,
	}, chatService, publisher)

	dataService := services.NewDataService(repoService, lister, gateway, services.DataServiceConfig{
		HostURL:          cfg.Server.HostURL,
		EmbeddingTimeout: cfg.Repositories.EmbeddingTimeout,
	})
	slog.Info("Services initialized")

	// 4. Realtime relay
	relay := events.NewRelay(events.RelayConfig{
		WriteTimeout: cfg.Server.WSWriteTimeout,
		MentionToken: cfg.Relay.MentionToken,
	}, chatService, gateway)
	if bus := openRelayBus(ctx, *cfg.Relay, b); bus != nil {
		if err := relay.UseBus(ctx, bus); err != nil {
			fatal("Failed to start relay bus", "bus", cfg.Relay.Bus, "error", err)
		}
	}
	chatService.SetNotifier(relay)
	dataService.SetNotifier(relay)
	slog.Info("Relay initialized", "bus", cfg.Relay.Bus)

	// 5. Auth
	validator, err := auth.NewValidator(auth.ValidatorConfig{
		Issuer:           cfg.Auth.Issuer,
		AccessAudience:   cfg.Auth.Audience,
		HMACSecret:       cfg.Auth.HMACSecret(),
		RSAPublicKeyFile: cfg.Auth.RSAPublicKeyFile,
		Leeway:           cfg.Auth.Leeway,
	})
	if err != nil {
		fatal("Failed to create token validator", "error", err)
	}
	var exchanger *auth.Exchanger
	if cfg.Auth.TokenURL != "" {
		exchanger = auth.NewExchanger(auth.ExchangeConfig{
			TokenURL:     cfg.Auth.TokenURL,
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret(),
			RedirectURI:  cfg.Auth.RedirectURI,
		}, validator, userService)
	}

	// 6. Reconcile jobs
	reconciler := cron.NewService(cron.Config{
		SyncInterval:  cfg.Repositories.SyncInterval,
		ResetInterval: cfg.Repositories.ResetInterval,
	}, dataService)
	reconciler.Start(ctx)

	// 7. HTTP server
	httpServer := api.NewServer(cfg.Server, api.Dependencies{
		Chats:      chatService,
		Users:      userService,
		Repos:      repoService,
		Data:       dataService,
		Agent:      gateway,
		Relay:      relay,
		Reconciler: reconciler,
		Validator:  validator,
		Exchanger:  exchanger,
		Store:      store,
		DB:         b.db,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.Server.HTTPPort)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("lexi started successfully")

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	reconciler.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// in-flight AI replies still write to the store
	done := make(chan struct{})
	go func() {
		relay.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Pending AI replies finished")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded with AI replies still pending")
	}

	if err := relay.Close(shutdownCtx); err != nil {
		slog.Error("Relay bus shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("Tracing shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
