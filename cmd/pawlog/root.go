package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pawlog/internal/config"
	"github.com/dukerupert/pawlog/internal/database"
	"github.com/dukerupert/pawlog/internal/logging"
	"github.com/dukerupert/pawlog/internal/server"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "pawlog",
	Short:         "pawlog - a pet diary with calendar and weight trend views",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional file of PAWLOG_* variables")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newRestoreCmd())
	rootCmd.AddCommand(newTokenCmd())
}

// app is what every command needs: configuration, a logger and an open
// database.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
}

func openApp() (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, db: db}, nil
}

func (a *app) server() (*server.Server, error) {
	return server.New(a.db, a.cfg, a.logger)
}

func (a *app) Close() error {
	return a.db.Close()
}
