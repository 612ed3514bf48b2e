package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessment-engine/internal/app"
	"assessment-engine/internal/config"
	"assessment-engine/internal/infra/memory"
	"assessment-engine/internal/infra/postgres"
	redisinfra "assessment-engine/internal/infra/redis"
	transport "assessment-engine/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

type stores struct {
	tests     app.CatalogStore
	attempts  app.AttemptStore
	standings app.StandingsStore
	loader    memory.SnapshotLoader
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	snapshotTTL := config.TTLDuration(cfg.Snapshot.TTL, 10*time.Minute)

	var st stores
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		pg := postgres.NewStore(pool)
		st = stores{tests: pg, attempts: pg, standings: pg, loader: pg}
		log.Info().Msg("using postgres store")
	} else {
		mem := memory.NewStore()
		st = stores{tests: mem, attempts: mem, standings: mem, loader: mem}
		log.Warn().Msg("postgres not configured, state is kept in memory")
	}

	var (
		snapshots  app.SnapshotSource
		feeds      app.FeedRepository
		publishers []app.StandingsPublisher
	)
	if redisClient != nil {
		snapshots = redisinfra.NewSnapshotCache(redisClient, st.loader, snapshotTTL)
		feeds = redisinfra.NewFeedStore(redisClient)
		publishers = append(publishers, redisinfra.NewStandingsPublisher(redisClient))
	} else {
		snapshots = memory.NewSnapshotCache(st.loader, snapshotTTL)
		feeds = memory.NewFeedStore()
	}

	ranking := app.NewRankingService(st.tests, st.standings, feeds, nil, publishers...)
	catalog := app.NewCatalogService(st.tests, st.attempts, nil)
	attempts := app.NewAttemptService(st.tests, st.attempts, snapshots, ranking, nil)

	handler := transport.NewRouter(
		transport.NewHandler(catalog, attempts, ranking),
		transport.NewWSHandler(ranking),
	)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived standings websockets.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", finalPort).Msg("starting assessment engine")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
