package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "hookrelay/cmd/relay-service/docs"
	"hookrelay/internal/config"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
	"hookrelay/pkg/logging"
)

var (
	configFile string
)

// @title           Hook Relay API
// @version         1.0
// @description     Relays messages and code snippets from browsers and scripts to a single chat webhook

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:3000
// @BasePath  /

// @schemes   http https

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        x-api-key

func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceName,
		Short: "Webhook relay service",
		Long:  "Relay service accepts messages and code snippets from untrusted clients and forwards them to a fixed webhook",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to an optional YAML config file")

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay service",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(logger.Options{
				Level:   cfg.Logging.Level,
				Format:  cfg.Logging.Format,
				Service: constants.ServiceName,
			})
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting relay service")
			if cfg.Relay.WebhookURL == "" {
				log.WarnwCtx(ctx, "No webhook URL configured, relay requests will fail with 500")
			}
			if cfg.Access.RequireAPIKey && cfg.Access.SharedSecret == "" {
				log.WarnwCtx(ctx, "API key required but no shared secret configured, JSON requests will be rejected")
			}

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return fmt.Errorf("failed to initialize application: %w", err)
			}

			if err := app.Run(ctx); err != nil && err != context.Canceled {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}
