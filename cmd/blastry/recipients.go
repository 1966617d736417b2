package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/blastry/internal/recipient"
)

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Recipient list commands",
}

var recipientsTemplateCmd = &cobra.Command{
	Use:   "template",
	Short: "Print the CSV import template",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := recipient.WriteTemplateCSV(os.Stdout); err != nil {
			return fmt.Errorf("failed to write template: %w", err)
		}
		return nil
	},
}

func init() {
	recipientsCmd.AddCommand(recipientsTemplateCmd)
	rootCmd.AddCommand(recipientsCmd)
}
