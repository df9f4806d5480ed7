// Package main is the entry point of havoc, a service that turns GitHub
// issues into policy-gated pull requests.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AlecFritsch/inito/consts"
	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/pkg/errors"
	"github.com/AlecFritsch/inito/pkg/logger"

	// Register LLM clients and git providers
	_ "github.com/AlecFritsch/inito/internal/agent/agents"
	_ "github.com/AlecFritsch/inito/internal/git/providers"
)

// Build information, set via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func init() {
	consts.Version = Version
	consts.BuildTime = BuildTime
	consts.GitCommit = GitCommit
}

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "havoc",
	Short: "Havoc - turn GitHub issues into reviewed pull requests",
	Long: `Havoc analyzes a GitHub issue, plans and applies code changes in an
isolated container, runs the repository's tests and lint, scores the result
and opens a pull request only when the repository's policy gates pass.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("havoc %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "service config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.IsCode(err, errors.ErrCodeConfigInvalid) {
			os.Exit(errors.ExitCodeConfigValidation)
		}
		os.Exit(1)
	}
}

// loadConfig reads the service config, validates it and initializes the logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration %s: %w", configPath, err)
	}
	if verr := config.Validate(cfg); verr != nil {
		return nil, verr
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
