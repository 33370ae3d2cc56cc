package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"coffeenet/internal/api"
	"coffeenet/internal/assistant"
	"coffeenet/internal/auth"
	"coffeenet/internal/config"
	"coffeenet/internal/database"
	"coffeenet/internal/idempotency"
	"coffeenet/internal/lifecycle"
	"coffeenet/internal/logging"
	"coffeenet/internal/metrics"
	"coffeenet/internal/monitoring"
	"coffeenet/internal/push"
	"coffeenet/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr        string
	MetricsAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the order API and the push channel",
		Long: `Run the order API, the push channel and the metrics endpoint.

Example:
  coffeenet serve
  coffeenet serve --addr :8081 --metrics-addr ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = opts.Addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Server.MetricsAddr = opts.MetricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logging.New(cfg.LogLevel))
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "API listen address")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "metrics listen address; empty disables it")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.Database.Seed {
		if err := database.Seed(db); err != nil {
			return err
		}
	}

	st := store.New(db)
	collector := metrics.NewCollector()
	monitor := monitoring.NewMonitor()
	recorder := monitoring.NewRecorder(collector, monitor)
	hub := push.NewHub(st, recorder, log, cfg.Server.TerminalWindow)
	defer hub.Close()

	interpreter, err := newInterpreter(cfg.Assistant, st, log)
	if err != nil {
		return err
	}
	idem, closeIdem, err := newIdempotencyStore(ctx, cfg.Idempotency)
	if err != nil {
		return err
	}
	defer closeIdem()

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(api.Deps{
		Store:       st,
		Lifecycle:   lifecycle.NewService(st, hub, recorder, log),
		Hub:         hub,
		Issuer:      auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Interpreter: interpreter,
		Idempotency: idem,
		Monitor:     monitor,
		Log:         log,
	})

	servers := []*http.Server{{Addr: cfg.Server.Addr, Handler: server}}
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		servers = append(servers, &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux})
	}

	errc := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			log.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Viewers hold long-lived connections that Shutdown does not wait for.
	hub.Close()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "addr", srv.Addr, "error", err)
		}
	}
	return runErr
}

func newInterpreter(cfg config.AssistantConfig, st *store.Store, log *slog.Logger) (*assistant.Interpreter, error) {
	var parser assistant.Parser
	if cfg.NLUURL != "" {
		parser = assistant.NewHTTPParser(cfg.NLUURL, cfg.Timeout, assistant.KeywordParser{}, log)
		log.Info("using remote parser", "url", cfg.NLUURL)
	}

	var recommender assistant.Recommender
	model, err := assistant.NewModel(cfg)
	if err != nil {
		return nil, err
	}
	if model != nil {
		recommender = assistant.NewLLMRecommender(model, assistant.TemplateRecommender{}, log)
		log.Info("using language model replies", "model", cfg.Model)
	}
	return assistant.NewInterpreter(st, parser, recommender, log), nil
}

func newIdempotencyStore(ctx context.Context, cfg config.IdempotencyConfig) (idempotency.Store, func(), error) {
	if cfg.Backend != "redis" {
		return idempotency.NewMemoryStore(cfg.TTL), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	return idempotency.NewRedisStore(rdb, cfg.TTL), func() { rdb.Close() }, nil
}
