package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neo050/Office-Automation-Law-bot/config"
	"github.com/neo050/Office-Automation-Law-bot/whatsapp"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a WhatsApp message manually",
	Long:  `Send a single text message through the business number. Useful for verifying credentials and the retry guard.`,
	RunE:  runSend,
}

var (
	sendTo   string
	sendText string
)

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Recipient phone number, digits only (required)")
	sendCmd.Flags().StringVar(&sendText, "text", "", "Message text (required)")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(sendCmd)
}

func runSend(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.WhatsApp.Token == "" || cfg.WhatsApp.PhoneNumberID == "" {
		return fmt.Errorf("whatsapp token and phone number id are required")
	}

	client := whatsapp.NewClient(cfg.WhatsApp.Token, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.GraphVersion)
	guard := whatsapp.NewGuard(client, cfg.RetryDelays())

	to := strings.TrimSpace(sendTo)
	if err := guard.SendReliable(context.Background(), to, strings.TrimSpace(sendText), cfg.WhatsApp.FallbackTemplate); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	fmt.Println("message sent to", to)
	return nil
}
