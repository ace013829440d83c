package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sjoeboo/commander/internal/config"
	"github.com/sjoeboo/commander/internal/session"
	"github.com/sjoeboo/commander/internal/tmux"
)

var pairCmd = &cobra.Command{
	Use:   "pair [project]",
	Short: "Mint a Telegram pairing code",
	Long: "Generates a 6-character pairing code and writes it to the shared state\n" +
		"directory. Send /pair <code> to the bot within 5 minutes to authorize the\n" +
		"chat. With a project argument, redeeming the code also connects the chat\n" +
		"to that project.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		project := ""
		if len(args) > 0 {
			project = args[0]
		}
		return runPair(project)
	},
}

func runPair(project string) error {
	if err := config.EnsureStateDir(); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	sessionName := ""
	if project != "" {
		sessionName = tmux.ManagedName(project)
	}

	book := session.NewPairingBook(config.PairingsFile())
	code, err := book.Create(project, sessionName)
	if err != nil {
		return fmt.Errorf("create pairing code: %w", err)
	}

	fmt.Printf("Pairing code: %s\n\n", code)
	if project != "" {
		fmt.Printf("Redeeming connects the chat to project %q.\n", project)
	}
	fmt.Println("In Telegram, send the bot:")
	fmt.Printf("  /pair %s\n\n", code)
	fmt.Println("The code expires in 5 minutes.")
	return nil
}
