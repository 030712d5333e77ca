package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/audience/internal/backend"
	"github.com/foxzi/audience/internal/roster"
	"github.com/foxzi/audience/internal/segment"
)

var (
	previewWorkspace string
	previewRoster    string
	previewOffline   bool
	previewLimit     int
	previewJSON      bool
	previewCriteria  criteriaFlags
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show which contacts match a set of criteria",
	Long: `Segment a workspace roster (or a roster JSON file) and list the matching
contacts together with the per-stage counts.`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVarP(&previewWorkspace, "workspace", "w", "", "Workspace ID")
	previewCmd.Flags().StringVar(&previewRoster, "roster", "", "Read contacts from a JSON file instead of the backend (- for stdin)")
	previewCmd.Flags().BoolVar(&previewOffline, "offline", false, "Use the stored snapshot without contacting the backend")
	previewCmd.Flags().IntVar(&previewLimit, "limit", 50, "Maximum number of contacts to list (0 lists none)")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "Print matching contacts as JSON")
	previewCriteria.register(previewCmd.Flags())

	rootCmd.AddCommand(previewCmd)
}

// previewInput is a roster together with where it came from
type previewInput struct {
	workspace string
	source    roster.Source
	fetchedAt time.Time
	contacts  []segment.Contact
}

func runPreview(cmd *cobra.Command, args []string) error {
	criteria, err := previewCriteria.criteria()
	if err != nil {
		return err
	}

	in, err := loadPreviewInput(cmd.Context())
	if err != nil {
		return err
	}

	now := time.Now()
	matched := segment.SegmentAt(in.contacts, criteria, now)

	if previewJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(matched)
	}

	printPreview(cmd.OutOrStdout(), in, segment.Explain(in.contacts, criteria, now), matched, previewLimit)
	return nil
}

func loadPreviewInput(ctx context.Context) (*previewInput, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if previewRoster != "" {
		contacts, err := readRosterFile(previewRoster)
		if err != nil {
			return nil, err
		}
		return &previewInput{source: roster.SourceInline, contacts: contacts}, nil
	}

	if previewWorkspace == "" {
		return nil, fmt.Errorf("--workspace or --roster is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := roster.NewBoltStore(cfg.Roster.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot storage: %w", err)
	}
	defer store.Close()

	var fetcher roster.Fetcher
	if !previewOffline {
		fetcher = backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)
	}
	loader := roster.NewLoader(fetcher, store, cliLogger(cfg))

	snap, err := loader.Roster(ctx, previewWorkspace)
	if err != nil {
		return nil, err
	}

	return &previewInput{
		workspace: previewWorkspace,
		source:    snap.Source,
		fetchedAt: snap.FetchedAt,
		contacts:  snap.Contacts,
	}, nil
}

func printPreview(out io.Writer, in *previewInput, report segment.Report, matched []segment.Contact, limit int) {
	switch {
	case in.workspace != "":
		fmt.Fprintf(out, "Workspace: %s (%s, fetched %s)\n", in.workspace, in.source, in.fetchedAt.Format(time.RFC3339))
	default:
		fmt.Fprintf(out, "Roster: %s\n", in.source)
	}

	fmt.Fprintf(out, "Contacts:       %d\n", report.Total)
	fmt.Fprintf(out, "After tags:     %d\n", report.AfterTags)
	fmt.Fprintf(out, "After status:   %d\n", report.AfterStatus)
	fmt.Fprintf(out, "After recency:  %d\n", report.AfterRecent)
	fmt.Fprintf(out, "After channel:  %d\n", report.AfterReach)

	if len(matched) == 0 {
		fmt.Fprintln(out, "\nNo contacts match the selected criteria")
		return
	}

	if limit > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTAGS\tEMAIL\tLAST INTERACTION")
		fmt.Fprintln(w, "--\t------\t----\t-----\t----------------")

		for i, c := range matched {
			if i >= limit {
				break
			}
			status := string(c.Status)
			if status == "" {
				status = "-"
			}
			email := c.Email
			if email == "" {
				email = "-"
			}
			last := "never"
			if c.LastInteractionAt != nil {
				last = c.LastInteractionAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, status, strings.Join(c.Tags, ","), email, last)
		}
		w.Flush()

		if len(matched) > limit {
			fmt.Fprintf(out, "... and %d more\n", len(matched)-limit)
		}
	}

	fmt.Fprintf(out, "\nTotal: %d recipients\n", len(matched))
}
