package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/archivist/internal/config"
	"github.com/harunnryd/archivist/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile string
	envFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "archivist",
	Short:         "Archive finished conversations into Open WebUI knowledge collections",
	Long:          `Archivist watches the memory directory written by the chat saver filter, uploads finished conversations into the knowledge collection mapped to their model, and removes archives whose chat was deleted.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile, cmd.Flags().Changed("env-file")); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Console only until a command opens the memory directory.
		if _, err := logger.Setup(cfg.Server.LogLevel, ""); err != nil {
			return err
		}
		return nil
	},
}

// loadEnvFile reads KEY=value pairs into the process environment without
// overriding variables that are already set. A missing default file is fine.
func loadEnvFile(path string, explicit bool) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	slog.Debug("Environment file loaded", "path", path)
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.archivist/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().String("server.log_level", config.DefaultServerLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("archive.memory_dir", config.DefaultArchiveMemoryDir, "directory the saver filter writes transcripts to")
	rootCmd.PersistentFlags().String("webui.base_url", config.DefaultWebUIBaseURL, "Open WebUI base URL")
}
