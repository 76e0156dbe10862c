package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nullwave/edgetun/internal/api"
	"github.com/nullwave/edgetun/internal/authstore"
	"github.com/nullwave/edgetun/internal/config"
	"github.com/nullwave/edgetun/internal/logging"
	"github.com/nullwave/edgetun/internal/statsreport"
	"github.com/nullwave/edgetun/internal/tunnel"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values. The process is otherwise
// entirely environment-configured (see internal/config); flags only cover
// the handful of knobs an operator reaches for at the command line.
type cliFlags struct {
	listenAddr string
	debug      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.listenAddr, "listen", "", "Override LISTEN_ADDR")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return f
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.listenAddr != "" {
		cfg.ListenAddr = flags.listenAddr
	}
	if flags.debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.Configure(logging.Config{Level: cfg.LogLevel})
	logger.Info("edgetun starting",
		"listen_addr", cfg.ListenAddr,
		"mux_enabled", cfg.MuxEnabled,
		"max_subrequests", cfg.MaxSubrequests,
	)

	store, l2, err := buildAuthStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("build auth store: %w", err)
	}
	if l2 != nil {
		defer l2.Close()
	}

	var reportClient *statsreport.Client
	if cfg.StatsReportURL != "" {
		reportClient = statsreport.New(cfg.StatsReportURL, cfg.StatsReportToken, logger)
	}

	dispatcher := tunnel.New(tunnel.Config{
		Validator:      store.Validator(),
		ProxyIP:        cfg.ProxyIP,
		DoHEndpoint:    cfg.DNSServer,
		MaxSubrequests: cfg.MaxSubrequests,
		MuxEnabled:     cfg.MuxEnabled,
		Stats:          reportClient,
	}, logger)

	// A WebSocket-upgrade request is intercepted ahead of route matching
	// (see middleware.InterceptTunnelUpgrade) and handed to the dispatcher
	// regardless of which admin route its path would otherwise match;
	// everything else is served by the admin surface, 404ing on no match.
	apiSrv := api.New(cfg.ListenAddr, cfg.APIKey, logger, store, dispatcher, dispatcher)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- apiSrv.ListenAndServe()
	}()

	logger.Info("listening", "addr", apiSrv.Addr())

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}

	logger.Info("edgetun stopped")
	return nil
}

// buildAuthStore wires the tiered authorization cache from config: a Static
// provider whenever UUID is set, whether or not DEV_MODE is on (DEV_MODE
// only lets normalizeConfig accept a config with neither UUID nor
// RW_API_URL), a Remote provider when RW_API_URL is set, L1 always present, L2 only when
// L2_CACHE_PATH is set.
func buildAuthStore(cfg *config.Config, logger *slog.Logger) (*authstore.Store, *authstore.L2, error) {
	var providers []authstore.Provider
	if cfg.UUID != "" {
		providers = append(providers, &authstore.Static{UUIDs: []string{cfg.UUID}})
	}
	if cfg.RWAPIURL != "" {
		providers = append(providers, authstore.NewRemote(cfg.RWAPIURL, cfg.RWAPIKey))
	}

	l1 := authstore.NewTTLCache(cfg.UUIDCacheTTL)

	var l2 *authstore.L2
	if cfg.L2CachePath != "" {
		opened, err := authstore.OpenL2(cfg.L2CachePath)
		if err != nil {
			return nil, nil, err
		}
		l2 = opened
	}

	return authstore.New(logger, l1, l2, providers, cfg.UUIDCacheTTL), l2, nil
}
