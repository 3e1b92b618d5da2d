package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mallhive/concierge/internal/api"
	"github.com/mallhive/concierge/internal/backend"
	"github.com/mallhive/concierge/internal/config"
	"github.com/mallhive/concierge/internal/corpus"
	"github.com/mallhive/concierge/internal/emotion"
	"github.com/mallhive/concierge/internal/led"
	"github.com/mallhive/concierge/internal/log"
	"github.com/mallhive/concierge/internal/observability"
	"github.com/mallhive/concierge/internal/relay"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // SSE streaming needs longer timeout
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay HTTP server",
	Long: `Start the HTTP server exposing POST /chat/completions and GET /health.

The corpus file is loaded once at startup. A missing corpus or backend key
does not abort startup: the server stays up, reports the degradation on
/health, and answers completion requests with apology streams.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port), overrides config")
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the relay HTTP server.
func runServe(parent context.Context) error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	if err := validateAddr(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting concierge relay", "version", AppVersion)

	shutdownTracing, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
	}()

	store := corpus.NewStore(cfg.Corpus.Path, logger.With("component", "corpus"))
	if err := store.Load(); err != nil {
		logger.Warn("corpus unavailable, completion requests will stream apologies", "error", err)
	}

	bc := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout(),
	}, logger.With("component", "backend"))
	if !bc.Configured() {
		logger.Warn("no backend API key configured, completion requests will stream apologies",
			"hint", "set GROQ_API_KEY")
	}

	relayCfg := relay.Config{
		Store:   store,
		Backend: bc,
		Logger:  logger.With("component", "relay"),
	}

	if cfg.LED.Enabled() {
		relayCfg.OnEmotion = emotionNotifier(ctx, cfg.LED, logger)
	}

	rly, err := relay.New(relayCfg)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Relay:       rly,
		Store:       store,
		Backend:     bc,
		Version:     AppVersion,
		CORSOrigins: cfg.Server.CORSOrigins,
		TrustProxy:  cfg.Server.TrustProxy,
		RateBurst:   cfg.Server.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("relay ready",
		"addr", addr,
		"completions", "/chat/completions",
		"health", "/health",
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down relay")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

// emotionNotifier wires detected emotion tags to the LED device service.
// Calls run on their own goroutine bounded by the device client timeout, so
// a slow or absent device never stalls a visitor's answer stream.
func emotionNotifier(ctx context.Context, cfg config.LEDConfig, logger log.Logger) relay.EmotionFunc {
	ledLogger := logger.With("component", "led")
	client := led.New(cfg.URL, cfg.Timeout(), ledLogger)

	if st, err := client.DeviceStatus(ctx); err != nil {
		ledLogger.Warn("led service unreachable, animations are best-effort", "error", err)
	} else if !st.Ready() {
		ledLogger.Warn("led device not ready", "status", st.Status, "message", st.Message)
	} else {
		ledLogger.Info("led device ready")
	}

	return func(label emotion.Label) {
		go func() {
			if err := client.Animate(context.Background(), label, ""); err != nil {
				ledLogger.Warn("led animation failed", "emotion", label, "error", err)
			}
		}()
	}
}
