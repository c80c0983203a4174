// Command canvas serves the collaborative page builder and carries the
// maintenance subcommands that operate on its database.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/canvas/api"
	"github.com/hazyhaar/canvas/auth"
	"github.com/hazyhaar/canvas/config"
	"github.com/hazyhaar/canvas/dbopen"
	"github.com/hazyhaar/canvas/mutlog"
	"github.com/hazyhaar/canvas/observability"
	"github.com/hazyhaar/canvas/session"
	"github.com/hazyhaar/canvas/shield"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "canvas",
	Short:         "Collaborative page builder server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("canvas version %s\n", api.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CANVAS_CONFIG"), "path to a YAML config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "canvas:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration. Offline commands never sign
// tokens, so they tolerate a missing secret.
func loadConfig(needSecret bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil && (needSecret || !errors.Is(err, config.ErrNoSecret)) {
		return nil, err
	}
	return cfg, nil
}

// openDB opens the database with every store's schema applied.
func openDB(cfg *config.Config) (*sql.DB, error) {
	return dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(session.Schema),
		dbopen.WithSchema(mutlog.Schema),
		dbopen.WithSchema(auth.OwnersSchema),
		dbopen.WithSchema(observability.Schema),
		dbopen.WithSchema(shield.Schema))
}

// withDB runs fn against the configured database.
func withDB(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, db *sql.DB) error) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel))
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(cmd.Context(), cfg, db)
}
