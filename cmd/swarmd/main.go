package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/config"
	"github.com/iudanet/confsync/internal/logging"
	"github.com/iudanet/confsync/internal/server"
	"github.com/iudanet/confsync/internal/server/jwt"
	"github.com/iudanet/confsync/internal/server/middleware"
	"github.com/iudanet/confsync/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"

	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "swarmd",
		Short:         "Local swarm node for configuration sync",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	})

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("rate-limit", defaults.GetInt("ratelimit.requests_per_minute"), "Requests per minute per client (0 disables)")
	cmd.PersistentFlags().Duration("max-token-age", defaults.GetDuration("auth.max_token_age"), "Maximum accepted access token lifetime")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "ratelimit.requests_per_minute", "rate-limit")
	bindFlag(cmd, "auth.max_token_age", "max-token-age")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	return viper.ReadInConfig()
}

func runServer(ctx context.Context) error {
	cfg, err := config.LoadServer(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := sqlite.New(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}()

	deps := server.Dependencies{
		Storage:  store,
		Verifier: jwt.NewVerifier(cfg.MaxTokenAge),
		Logger:   logger,
	}
	if cfg.RequestsPerMinute > 0 {
		limiter := middleware.NewRateLimiter(cfg.RequestsPerMinute, time.Minute, logger)
		defer limiter.Stop()
		deps.RateLimiter = limiter
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("swarm node starting",
			zap.String("address", cfg.HTTPAddress),
			zap.String("version", Version))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- errors.Wrap(err, "http server failed")
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("swarm node shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Wrap(httpServer.Shutdown(shutdownCtx), "shutdown")
	case err := <-errCh:
		return err
	}
}

func printVersion() {
	fmt.Printf("confsync swarm node\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
