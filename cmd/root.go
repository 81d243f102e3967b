// Package cmd defines the lawbot CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lawbot",
	Short: "WhatsApp legal-intake bot",
	Long: `lawbot runs the automated client-intake workflow of the law office:
a WhatsApp webhook, a tool-calling dialogue with the model, document filing
into Google Drive, and the Clients registry in Google Sheets.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
