package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/supersquad/eventsweb/internal/apiclient"
	"github.com/supersquad/eventsweb/internal/config"
	"github.com/supersquad/eventsweb/internal/metrics"
	"github.com/supersquad/eventsweb/internal/session"
	"github.com/supersquad/eventsweb/internal/telemetry"
	"github.com/supersquad/eventsweb/internal/web"
	"github.com/supersquad/eventsweb/internal/web/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host string
	port int
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	var so serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web front end",
		Long: `Start the web front end and begin serving event pages.

The server will:
- Load configuration from environment variables (and .env if present)
- Keep browser sessions in signed cookies or in redis (SESSION_BACKEND)
- Forward reads and writes to the events API at API_BASE_URL
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  eventsweb serve

  # Start on a specific host and port
  eventsweb serve --host 127.0.0.1 --port 9090

  # Start against a staging API with debug logging
  eventsweb serve --api-url https://staging.example.com/api --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, opts, so)
		},
	}

	cmd.Flags().StringVar(&so.host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&so.port, "port", 0, "server port (default: 3000)")
	return cmd
}

func runServer(cmd *cobra.Command, opts *globalOptions, so serveOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if so.host != "" {
		cfg.Server.Host = so.host
	}
	if so.port != 0 {
		cfg.Server.Port = so.port
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("api", cfg.API.BaseURL).Msg("starting eventsweb")

	metrics.Init(Version, GitCommit, BuildDate)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing setup failed: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracing shutdown error")
		}
	}()

	api := apiclient.NewClient(cfg.API.BaseURL,
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithLogger(logger),
		apiclient.WithUserAgent("eventsweb/"+Version),
	)

	sessions, closeSessions, err := newSessionFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSessions()

	templates, err := web.LoadTemplates()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	limiter := middleware.NewLoginRateLimiter(cfg.RateLimit)
	defer limiter.Stop()

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: web.NewRouter(web.Deps{
			API:          api,
			Sessions:     sessions,
			Templates:    templates,
			Logger:       logger,
			CSRF:         middleware.CSRFProtection(csrfKey(cfg, logger), cfg.Session.Secure),
			LoginLimiter: limiter.Middleware,
			RequireHTTPS: cfg.IsProduction(),
			Version:      Version,
		}),
		ReadTimeout:       10 * time.Second, // Total time to read request
		WriteTimeout:      30 * time.Second, // Total time to write response
		ReadHeaderTimeout: 5 * time.Second,  // Time to read headers
		MaxHeaderBytes:    1 << 20,          // 1 MB max header size
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newSessionFactory picks where browser sessions live. The returned func
// releases any connection it opened.
func newSessionFactory(ctx context.Context, cfg config.Config, logger zerolog.Logger) (session.Factory, func(), error) {
	cookieOpts := session.CookieOptions{
		MaxAge: cfg.Session.CookieMaxAge,
		Secure: cfg.Session.Secure,
	}

	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		client, err := session.NewRedisClient(ctx, cfg.Session.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: %w", err)
		}
		logger.Info().Msg("browser sessions stored in redis")
		return session.NewRedisSessions(client, cookieOpts), func() { _ = client.Close() }, nil
	default:
		hashKey := []byte(cfg.Session.HashKey)
		if len(hashKey) == 0 {
			// Sessions will not survive a restart.
			logger.Warn().Msg("SESSION_HASH_KEY not set; using a random key")
			hashKey = session.GenerateKey(64)
		}
		var blockKey []byte
		if cfg.Session.BlockKey != "" {
			blockKey = []byte(cfg.Session.BlockKey)
		}
		return session.NewCookieSessions(hashKey, blockKey, cookieOpts), func() {}, nil
	}
}

func csrfKey(cfg config.Config, logger zerolog.Logger) []byte {
	if cfg.CSRF.Key != "" {
		return []byte(cfg.CSRF.Key)
	}
	logger.Warn().Msg("CSRF_KEY not set; using a random key")
	return session.GenerateKey(32)
}
