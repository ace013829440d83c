package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped by the release build.
var Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:           "commander",
	Short:         "Telegram bridge for tmux-hosted AI coding sessions",
	Long:          "Commander lets you drive Claude Code, Aider and friends from Telegram:\nconnect a chat to a tmux session, send prompts, and get summarized responses back.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Commander v%s\n", Version)
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, pairCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
