package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/2beens/notesservice/internal"
	"github.com/2beens/notesservice/internal/config"
	"github.com/2beens/notesservice/internal/logging"
)

var (
	env        string
	configPath string
	dotEnvPath string
)

var rootCmd = &cobra.Command{
	Use:   "notes-service",
	Short: "Notes CRUD HTTP service backed by postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment [prod | production | dev | development]")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.toml", "path for the TOML config file")
	rootCmd.PersistentFlags().StringVar(&dotEnvPath, "dotenv", ".env", "optional .env file with secrets (NOTES_* vars)")
}

func main() {
	fmt.Println("starting ...")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	log.Warnf("---->> running in [%s] environment", env)

	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return nil, err
	}

	cfg, err := config.Load(env, configPath)
	if err != nil {
		return nil, err
	}

	logging.Setup(logging.LoggerSetupParams{
		LogFileName:      cfg.LogsPath,
		LogToStdout:      cfg.LogToStdout,
		LogLevel:         cfg.LogLevel,
		LogFormatJSON:    cfg.LogFormatJSON,
		Environment:      cfg.Environment,
		SentryEnabled:    cfg.SentryEnabled,
		SentryDSN:        cfg.SentryDSN,
		SentryServerName: "notes-service",
	})

	return cfg, nil
}

func serve(cfg *config.Config) error {
	log.Debugf("using port: %d", cfg.Port)
	log.Debugf("using server logs path: [%s]", cfg.LogsPath)

	if cfg.HoneycombEnabled {
		if honeycombApiKey := os.Getenv("HONEYCOMB_API_KEY"); honeycombApiKey == "" {
			log.Warnln("HONEYCOMB_API_KEY env var not set")
		}
	}

	chOsInterrupt := make(chan os.Signal, 1)
	signal.Notify(chOsInterrupt, os.Interrupt, syscall.SIGTERM)

	server, err := internal.NewServer(
		context.Background(),
		internal.NewServerParams{
			Config: cfg,
		},
	)
	if err != nil {
		return fmt.Errorf("new server: %w", err)
	}

	server.Serve(cfg.Host, cfg.Port)

	receivedSig := <-chOsInterrupt
	log.Warnf("signal [%s] received, killing everything ...", receivedSig)

	// go to sleep 🥱
	server.GracefulShutdown()
	return nil
}
