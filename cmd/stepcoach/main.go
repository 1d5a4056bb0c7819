package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vincentbai/stepcoach/internal/config"
	"github.com/vincentbai/stepcoach/internal/database"
	"github.com/vincentbai/stepcoach/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stepcoach",
	Short: "Walkthrough recording and coaching backend",
	Long: `stepcoach stores browser recordings uploaded by the extension, turns
them into AI-written walkthroughs and serves them back to the player,
the dashboard and public share links.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "stepcoach.yaml", "path to the YAML config file")

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, verifyCmd, xpathCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config and installs the logger it asks for.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer logging.Sync()

		db, err := database.NewDatabase(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		logging.Infof("database %s is up to date", cfg.Database.Path)
		return nil
	},
}
