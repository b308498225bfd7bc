package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/socratchat/cmd/socratchat/internal/config"
)

var (
	// Global flags
	verbose     bool
	contextName string

	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "socratchat",
	Short: "A Socratic philosophy assistant you can talk to",
	Long: `socratchat - a Socratic philosophy assistant for the terminal.

Chat by typing, push-to-talk, or hands-free: speak, pause, and listen to
the answer before the microphone opens again.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/socratchat/
  Linux:   ~/.config/socratchat/
  Windows: %AppData%/socratchat/

Unset values fall back to the environment, loaded from .env.local and .env
in the working directory (GROQ_API_KEY, GEMINI_API_KEY, OPENAI_API_KEY,
AWS_REGION).

Examples:
  socratchat config add-context default
  socratchat config use-context default
  socratchat config set default groq api_key gsk-xxx

  socratchat chat --speak
  socratchat handsfree`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return config.LoadEnv(".")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "config context (default: current context)")
}

var configLoadErr error

func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// loadServices resolves the services of the selected context.
func loadServices() (*config.Services, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	dir, err := cfg.ResolveContext(contextName)
	if err != nil {
		return nil, err
	}
	return config.Resolve(dir, os.Getenv)
}
