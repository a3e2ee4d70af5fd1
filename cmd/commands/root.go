package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/yourusername/cloudcity/internal/config"
	"github.com/yourusername/cloudcity/internal/logger"
)

// Global flags
var (
	configPath string
	outputFmt  string
	logLevel   string
)

// ErrGateFailed is returned when a pipeline check does not pass; main exits 1
var ErrGateFailed = errors.New("pipeline gate failed")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cloudcity",
	Short: "Discover cloud topology, govern its cost and gate Terraform changes",
	Long: `CloudCity discovers the live resource topology of a cloud account, keeps it
as a graph, estimates its monthly cost against a project budget and moves
Terraform exports through plan, approval and apply.

Run "cloudcity serve" for the REST API, "cloudcity discover" for a one-shot
local discovery and "cloudcity gate" from a CI pipeline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// NewRootCmd creates a new root command
func NewRootCmd() *cobra.Command {
	rootCmd.Version = Version

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewDiscoverCmd())
	rootCmd.AddCommand(NewGateCmd())
	rootCmd.AddCommand(NewListCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "Output format (text, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
}

// loadConfig reads the configuration and builds the process logger from it
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewLogger(logger.Config{
		Level:  level,
		Output: os.Stderr,
		Format: cfg.Log.Format,
	})
	logger.SetDefault(log)
	return cfg, log, nil
}
