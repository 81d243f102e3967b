package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/neo050/Office-Automation-Law-bot/agentloop"
	"github.com/neo050/Office-Automation-Law-bot/config"
	"github.com/neo050/Office-Automation-Law-bot/gsuite"
	"github.com/neo050/Office-Automation-Law-bot/logger"
	"github.com/neo050/Office-Automation-Law-bot/provider"
	"github.com/neo050/Office-Automation-Law-bot/schedule"
	"github.com/neo050/Office-Automation-Law-bot/store"
	"github.com/neo050/Office-Automation-Law-bot/summarize"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run only the delivery sweeper",
	Long: `Run the consolidated-link sweeper as its own process, for deployments
that separate the webhook node from the poller. Pair with 'serve --no-sweep'.`,
	RunE: runSweep,
}

var sweepOnce bool

func init() {
	sweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "Sweep once and exit")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.WhatsApp.Token == "" || cfg.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp token and phone number id are required")
	}

	ctx := context.Background()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	drive, err := gsuite.NewDrive(ctx, cfg.Google.CredentialsFile, cfg.Google.DriveRootID)
	if err != nil {
		return err
	}

	waClient := whatsapp.NewClient(cfg.WhatsApp.Token, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.GraphVersion)
	guard := whatsapp.NewGuard(waClient, cfg.RetryDelays())

	summaryProvider := provider.NewOpenAIProvider(
		cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, cfg.OpenAI.SummaryModel, 400, 0.3)
	archiver := agentloop.NewBundleArchiver(st, summarize.New(summaryProvider), drive)

	scheduler := schedule.NewScheduler(st, cfg.Delivery.LinkDelay.Std())
	sweeper := schedule.NewSweeper(scheduler, drive, archiver, guard, cfg.WhatsApp.FallbackTemplate)

	if sweepOnce {
		sweeper.Sweep(ctx)
		return nil
	}

	if err := sweeper.Start(cfg.Delivery.SweepInterval.Std()); err != nil {
		return err
	}
	defer sweeper.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("sweeper running", "interval", cfg.Delivery.SweepInterval.Std().String())
	fmt.Println("lawbot sweeper is running. Press Ctrl+C to stop.")
	<-sigChan
	logger.Info("sweeper stopped")
	return nil
}
