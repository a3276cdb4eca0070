package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/igvedmak/parkspeak/internal/config"
	"github.com/igvedmak/parkspeak/internal/database"
	"github.com/igvedmak/parkspeak/internal/observe"
	"github.com/igvedmak/parkspeak/internal/repository"
	"github.com/igvedmak/parkspeak/internal/router"
	"github.com/igvedmak/parkspeak/internal/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := bootstrap()
		if err != nil {
			printError("startup failed", err)
			return err
		}
		defer log.Sync()
		return runServe(cmd.Context(), log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		log.Error("Failed to initialize metrics provider", zap.Error(err))
		return err
	}
	defer shutdownMetrics(context.Background())

	if err := database.Init(log); err != nil {
		log.Error("Failed to initialize database", zap.Error(err))
		return err
	}

	languages, err := loadLanguages()
	if err != nil {
		log.Error("Failed to load languages", zap.Error(err))
		return err
	}

	store, sweep, err := newSessionStore(ctx, log)
	if err != nil {
		return err
	}
	manager := services.NewHearingSessionManager(log, store, repository.HearingStore{}, languages,
		func() config.HearingConfig { return config.Conf.Hearing })

	srv := &http.Server{
		Addr:              ":" + config.Conf.Server.Port,
		Handler:           router.Setup(log, manager),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if sweep {
		sessions := config.Conf.Sessions
		reaper := services.NewReaper(log, manager, sessions.SweepInterval, sessions.IdleTimeout)
		g.Go(func() error { return reaper.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		return err
	}
	log.Info("Server stopped")
	return nil
}

// newSessionStore returns the configured store and whether it needs the
// reaper.
func newSessionStore(ctx context.Context, log *zap.Logger) (services.SessionStore, bool, error) {
	cfg := config.Conf
	switch cfg.Sessions.Backend {
	case "", "memory":
		return services.NewMemoryStore(), true, nil
	case "redis":
		rdb, err := services.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Error("Failed to connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
			return nil, false, err
		}
		log.Info("Using redis session store", zap.String("addr", cfg.Redis.Addr))
		return services.NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.Sessions.IdleTimeout), false, nil
	default:
		return nil, false, errors.New("unknown session backend " + cfg.Sessions.Backend)
	}
}
