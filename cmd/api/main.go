package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	serve := serveCmd()
	root := &cobra.Command{
		Use:   "api",
		Short: "PersonaChat API",
		Long: `PersonaChat relays chat turns to LLM providers, bills them against the
user's balance and grows a per-user profile from the conversation.

Run without a subcommand to start the HTTP server.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, pricingCmd(), seedCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
