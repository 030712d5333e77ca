package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/audience/internal/backend"
	"github.com/foxzi/audience/internal/roster"
	"github.com/foxzi/audience/internal/segment"
)

var rosterTagsOffline bool

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Roster snapshot commands",
}

var rosterSyncCmd = &cobra.Command{
	Use:   "sync [workspace...]",
	Short: "Fetch rosters from the backend and store snapshots",
	Long:  `Fetch the given workspaces, or roster.workspaces from the config when none are given.`,
	RunE:  runRosterSync,
}

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored roster snapshots",
	RunE:  runRosterList,
}

var rosterTagsCmd = &cobra.Command{
	Use:   "tags <workspace>",
	Short: "List the distinct tags of a workspace roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runRosterTags,
}

var rosterDeleteCmd = &cobra.Command{
	Use:   "delete <workspace>",
	Short: "Delete the stored snapshot of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runRosterDelete,
}

func init() {
	rosterTagsCmd.Flags().BoolVar(&rosterTagsOffline, "offline", false, "Use the stored snapshot without contacting the backend")

	rosterCmd.AddCommand(rosterSyncCmd, rosterListCmd, rosterTagsCmd, rosterDeleteCmd)
	rootCmd.AddCommand(rosterCmd)
}

func runRosterSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	workspaces := args
	if len(workspaces) == 0 {
		workspaces = cfg.Roster.Workspaces
	}
	if len(workspaces) == 0 {
		return fmt.Errorf("no workspaces given and roster.workspaces is empty")
	}

	store, err := roster.NewBoltStore(cfg.Roster.SnapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot storage: %w", err)
	}
	defer store.Close()

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)
	loader := roster.NewLoader(client, store, cliLogger(cfg))

	ctx := context.Background()
	var failed []string
	for _, ws := range workspaces {
		n, err := loader.Sync(ctx, ws)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", ws, err)
			failed = append(failed, ws)
			continue
		}
		fmt.Printf("%s: %d contacts\n", ws, n)
	}

	if len(failed) > 0 {
		return errors.New("sync failed for: " + strings.Join(failed, ", "))
	}
	return nil
}

func runRosterList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := roster.NewBoltStore(cfg.Roster.SnapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot storage: %w", err)
	}
	defer store.Close()

	infos, err := store.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No snapshots stored")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKSPACE\tCONTACTS\tFETCHED")
	fmt.Fprintln(w, "---------\t--------\t-------")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\n", info.Workspace, info.Count, info.FetchedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	return nil
}

func runRosterTags(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := roster.NewBoltStore(cfg.Roster.SnapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot storage: %w", err)
	}
	defer store.Close()

	var fetcher roster.Fetcher
	if !rosterTagsOffline {
		fetcher = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)
	}

	snap, err := roster.NewLoader(fetcher, store, cliLogger(cfg)).Roster(context.Background(), args[0])
	if err != nil {
		return err
	}

	tags := segment.DistinctTags(snap.Contacts)
	if len(tags) == 0 {
		fmt.Println("No tags")
		return nil
	}
	for _, tag := range tags {
		fmt.Println(tag)
	}
	return nil
}

func runRosterDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := roster.NewBoltStore(cfg.Roster.SnapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot storage: %w", err)
	}
	defer store.Close()

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	fmt.Printf("Snapshot %s deleted\n", args[0])
	return nil
}
