package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/auth"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/config"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/logging"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/metrics"
	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/server"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "datastore",
		Short: "Transactional record store with undo history",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the datastore over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	})
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newReplayCommand())
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Token TTL in minutes")
	cmd.PersistentFlags().Uint32("store-id", defaults.GetUint32("store.id"), "Store id carried by change notifications")
	cmd.PersistentFlags().Bool("history", defaults.GetBool("store.history"), "Track undo history")
	cmd.PersistentFlags().Int("max-history", defaults.GetInt("store.max_history"), "Undo history bound (0 = unbounded)")
	cmd.PersistentFlags().String("snapshot-path", "", "Snapshot file to restore the store from")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "store.id", "store-id")
	bindFlag(cmd, "store.history", "history")
	bindFlag(cmd, "store.max_history", "max-history")
	bindFlag(cmd, "store.snapshot_path", "snapshot-path")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func loadConfig() (config.AppConfig, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return appConfig, logger, nil
}

func newTokenIssuer(appConfig config.AppConfig) (*auth.TokenIssuer, error) {
	if err := appConfig.RequireSigningSecret(); err != nil {
		return nil, err
	}
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		Audience:      appConfig.Audience,
		TokenTTL:      appConfig.TokenTTL,
	})
}

func runServer(ctx context.Context) error {
	appConfig, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tokenManager, err := newTokenIssuer(appConfig)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	hosted, err := openStore(appConfig, logger, collector)
	if err != nil {
		return err
	}
	defer hosted.store.Dispose()

	host, err := server.NewHost(server.HostConfig{
		Store:     hosted.store,
		Scheduler: hosted.loop,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	realtime := server.NewRealtimeDispatcher()
	hosted.store.Changed().Connect(realtime.Publish)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Host:           host,
		TokenManager:   tokenManager,
		Realtime:       realtime,
		Metrics:        collector.Handler(),
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.Uint32("store_id", hosted.store.ID()),
			zap.Bool("history", appConfig.History))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func newTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			issuer, err := newTokenIssuer(appConfig)
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			encoded, err := json.Marshal(tokenResponsePayload{AccessToken: token, ExpiresIn: expiresIn, TokenType: "Bearer"})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configured schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			return validateSchemas(cmd.OutOrStdout(), appConfig.Schemas)
		},
	}
}
