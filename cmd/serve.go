package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neo050/Office-Automation-Law-bot/agentloop"
	"github.com/neo050/Office-Automation-Law-bot/config"
	"github.com/neo050/Office-Automation-Law-bot/gsuite"
	"github.com/neo050/Office-Automation-Law-bot/idle"
	"github.com/neo050/Office-Automation-Law-bot/intake"
	"github.com/neo050/Office-Automation-Law-bot/logger"
	"github.com/neo050/Office-Automation-Law-bot/provider"
	"github.com/neo050/Office-Automation-Law-bot/schedule"
	"github.com/neo050/Office-Automation-Law-bot/store"
	"github.com/neo050/Office-Automation-Law-bot/summarize"
	"github.com/neo050/Office-Automation-Law-bot/webhook"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook, dialogue loop, delivery sweeper and idle finalizer",
	RunE:  runServe,
}

var serveNoSweep bool

func init() {
	serveCmd.Flags().BoolVar(&serveNoSweep, "no-sweep", false,
		"Disable the in-process delivery sweeper (run 'lawbot sweep' separately)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.WhatsApp.Token == "" || cfg.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp token and phone number id are required")
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sheets, err := gsuite.NewSheets(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.SheetName)
	if err != nil {
		return err
	}
	drive, err := gsuite.NewDrive(ctx, cfg.Google.CredentialsFile, cfg.Google.DriveRootID)
	if err != nil {
		return err
	}

	waClient := whatsapp.NewClient(cfg.WhatsApp.Token, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.GraphVersion)
	guard := whatsapp.NewGuard(waClient, cfg.RetryDelays())

	chatProvider := provider.NewOpenAIProvider(
		cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens, cfg.OpenAI.Temperature)
	summaryProvider := provider.NewOpenAIProvider(
		cfg.OpenAI.APIKey, cfg.OpenAI.APIBase, cfg.OpenAI.SummaryModel, 400, 0.3)

	queue := intake.NewQueue(st, cfg.Intake.QueueMax,
		cfg.Intake.QueueRetention.Std(), cfg.Intake.DedupWindow.Std())
	scheduler := schedule.NewScheduler(st, cfg.Delivery.LinkDelay.Std())

	archiver := agentloop.NewBundleArchiver(st, summarize.New(summaryProvider), drive)
	finalizer := idle.NewFinalizer(archiver, cfg.Idle.QuietPeriod.Std())
	defer finalizer.Stop()

	actions := agentloop.NewGoogleActions(sheets, drive, waClient)
	loop := agentloop.New(chatProvider, st, queue, scheduler, finalizer, actions, guard, agentloop.Config{
		HistoryTTL:       cfg.History.TTL.Std(),
		ConfirmTTL:       cfg.History.ConfirmationTTL.Std(),
		FallbackTemplate: cfg.WhatsApp.FallbackTemplate,
	})

	var sweeper *schedule.Sweeper
	if !serveNoSweep {
		sweeper = schedule.NewSweeper(scheduler, drive, archiver, guard, cfg.WhatsApp.FallbackTemplate)
		if err := sweeper.Start(cfg.Delivery.SweepInterval.Std()); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	server := webhook.NewServer(cfg.Server.Addr, cfg.WhatsApp.VerifyToken, loop, queue)
	if err := server.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("lawbot service started", "addr", cfg.Server.Addr)
	fmt.Println("lawbot is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("webhook shutdown failed", "error", err)
	}

	logger.Info("lawbot service stopped")
	return nil
}
