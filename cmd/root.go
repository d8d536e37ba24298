package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parish-auth",
	Short: "Parish account and session service",
	Long:  `Account lifecycle for the parish platform: signup, email verification, cookie sessions with refresh rotation, password recovery, email change and profile management.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
