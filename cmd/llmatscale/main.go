package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/run-bigpig/llmatscale/pkg/config"
	"github.com/run-bigpig/llmatscale/pkg/logging"
)

var (
	// Global flags
	configDir string
	logLevel  string

	cfg    *config.Config
	logger *logging.ZeroLogger
)

var rootCmd = &cobra.Command{
	Use:   "llmatscale",
	Short: "LLMatScale dashboard and tools",
	Long: `LLMatScale serves a browser dashboard that routes prompts and uploaded
documents to hosted LLM providers, moderation and evaluation flows.

Run without arguments to start the dashboard server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile := os.Getenv("ENV_FILE")
		if envFile == "" {
			envFile = ".env"
		}
		if err := godotenv.Load(envFile); err != nil {
			log.Println("no .env file found, using system environment variables")
		}

		var err error
		cfg, err = config.Load(configDir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if logLevel != "" {
			level = logLevel
		}
		logger = logging.New(logging.WithLevel(level))
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, moderateCmd, incidentsCmd, validateDatasetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
