package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/audience/internal/backend"
)

var configValidatePing bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var configHashKeyCmd = &cobra.Command{
	Use:   "hash-key <api_key>",
	Short: "Print the bcrypt hash of an API key for server.api_key_hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigHashKey,
}

func init() {
	configValidateCmd.Flags().BoolVar(&configValidatePing, "ping", false, "Also check that the backend answers its health endpoint")
	configCmd.AddCommand(configValidateCmd, configHashKeyCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "  API auth: %v\n", cfg.AuthEnabled())
	fmt.Fprintf(out, "  Backend: %s\n", cfg.Backend.BaseURL)
	fmt.Fprintf(out, "  Snapshot path: %s\n", cfg.Roster.SnapshotPath)
	fmt.Fprintf(out, "  Database path: %s\n", cfg.Database.Path)
	if cfg.Roster.RefreshInterval > 0 {
		fmt.Fprintf(out, "  Roster refresh: every %s for %d workspaces\n", cfg.Roster.RefreshInterval, len(cfg.Roster.Workspaces))
	} else {
		fmt.Fprintln(out, "  Roster refresh: disabled")
	}
	fmt.Fprintf(out, "  Metrics: %v\n", cfg.Metrics.Enabled)

	if configValidatePing {
		client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)
		health, err := client.Health(context.Background())
		if err != nil {
			return fmt.Errorf("backend health check failed: %w", err)
		}
		fmt.Fprintf(out, "  Backend status: %s\n", health.Status)
	}

	return nil
}

func runConfigHashKey(cmd *cobra.Command, args []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return nil
}
