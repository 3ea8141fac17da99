package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "permits",
	Short: "Permit lifecycle microservice",
	Long:  "A permit-application microservice for payment reconciliation, lifecycle transitions, and document generation jobs.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
