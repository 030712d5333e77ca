package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/audience/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audience server",
	Long:  `Start the HTTP API, the optional metrics server and the roster refresher.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := app.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	application, err := app.New(cfg, version, logger)
	if err != nil {
		return err
	}

	return application.Run(context.Background())
}
