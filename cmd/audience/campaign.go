package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/audience/internal/backend"
	"github.com/foxzi/audience/internal/campaign"
	"github.com/foxzi/audience/internal/db"
	"github.com/foxzi/audience/internal/models"
	"github.com/foxzi/audience/internal/repository"
	"github.com/foxzi/audience/internal/roster"
	"github.com/foxzi/audience/internal/segment"
)

var (
	campaignWorkspace string
	campaignName      string
	campaignMessage   string
	campaignSubject   string
	campaignTemplate  string
	campaignSchedule  string
	campaignCriteria  criteriaFlags

	historyWorkspace string
	historyChannel   string
	historyLimit     int
	historyOffset    int
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign commands",
}

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a campaign for the contacts matching the criteria",
	Long: `Segment the workspace roster and create the campaign in the backend with
the recipient count frozen at this moment. Empty audiences are refused.`,
	RunE: runCampaignCreate,
}

var campaignHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List campaigns created through this service",
	RunE:  runCampaignHistory,
}

func init() {
	f := campaignCreateCmd.Flags()
	f.StringVarP(&campaignWorkspace, "workspace", "w", "", "Workspace ID (required)")
	f.StringVar(&campaignName, "name", "", "Campaign name (required)")
	f.StringVar(&campaignMessage, "message", "", "Message text")
	f.StringVar(&campaignSubject, "subject", "", "Email subject (email channel)")
	f.StringVar(&campaignTemplate, "template", "", "Template ID used instead of message text")
	f.StringVar(&campaignSchedule, "schedule", "", "Schedule time (RFC3339); empty creates a draft")
	campaignCriteria.register(f)
	campaignCreateCmd.MarkFlagRequired("workspace")
	campaignCreateCmd.MarkFlagRequired("name")

	campaignHistoryCmd.Flags().StringVarP(&historyWorkspace, "workspace", "w", "", "Filter by workspace")
	campaignHistoryCmd.Flags().StringVar(&historyChannel, "channel", "", "Filter by channel (whatsapp, email)")
	campaignHistoryCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of submissions to show")
	campaignHistoryCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of submissions to skip")

	campaignCmd.AddCommand(campaignCreateCmd, campaignHistoryCmd)
	rootCmd.AddCommand(campaignCmd)
}

func openDatabase(path string) (*db.DB, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func runCampaignCreate(cmd *cobra.Command, args []string) error {
	criteria, err := campaignCriteria.criteria()
	if err != nil {
		return err
	}

	draft := campaign.Draft{
		WorkspaceID: campaignWorkspace,
		Name:        campaignName,
		Message:     campaignMessage,
		Subject:     campaignSubject,
		TemplateID:  campaignTemplate,
		Criteria:    criteria,
	}
	if campaignSchedule != "" {
		at, err := time.Parse(time.RFC3339, campaignSchedule)
		if err != nil {
			return fmt.Errorf("invalid --schedule: %w", err)
		}
		draft.ScheduledAt = &at
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cliLogger(cfg)

	store, err := roster.NewBoltStore(cfg.Roster.SnapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot storage: %w", err)
	}
	defer store.Close()

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.Timeout)
	svc := campaign.NewService(
		roster.NewLoader(client, store, logger),
		client,
		repository.NewSubmissionRepository(database.DB),
		cfg.Server.SampleSize,
		logger,
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := svc.Create(ctx, draft)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Campaign created: %s\n", res.Campaign.ID)
	fmt.Fprintf(out, "  Name:       %s\n", res.Campaign.Name)
	fmt.Fprintf(out, "  Channel:    %s\n", criteria.Channel)
	fmt.Fprintf(out, "  Status:     %s\n", res.Campaign.Status)
	fmt.Fprintf(out, "  Recipients: %d\n", res.Recipients)
	if res.Campaign.ScheduledAt != nil {
		fmt.Fprintf(out, "  Scheduled:  %s\n", res.Campaign.ScheduledAt.Format(time.RFC3339))
	}
	return nil
}

func runCampaignHistory(cmd *cobra.Command, args []string) error {
	filter := models.SubmissionFilter{
		WorkspaceID: historyWorkspace,
		Limit:       historyLimit,
		Offset:      historyOffset,
	}
	if historyChannel != "" {
		ch, err := segment.ParseChannel(historyChannel)
		if err != nil {
			return err
		}
		filter.Channel = ch
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	subs, total, err := repository.NewSubmissionRepository(database.DB).List(filter)
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}

	if len(subs) == 0 {
		fmt.Println("No campaigns recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tWORKSPACE\tCAMPAIGN\tCHANNEL\tRECIPIENTS\tNAME")
	fmt.Fprintln(w, "-------\t---------\t--------\t-------\t----------\t----")

	for _, s := range subs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.WorkspaceID,
			s.CampaignID,
			s.Channel,
			s.TotalRecipients,
			s.Name,
		)
	}

	w.Flush()
	fmt.Printf("\nShowing %d of %d campaigns\n", len(subs), total)

	return nil
}
