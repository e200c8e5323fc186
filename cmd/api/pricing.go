package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"personachat/backend/internal/config"
)

func pricingCmd() *cobra.Command {
	var (
		inputTokens  int
		outputTokens int
	)
	cmd := &cobra.Command{
		Use:   "pricing [model]",
		Short: "List the model catalog or quote a turn for one model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := loadCatalog(config.Load())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				fmt.Fprintf(out, "%-34s %-10s %10s %10s  %s\n", "MODEL", "TIER", "IN/1K", "OUT/1K", "CONTEXT")
				for _, m := range catalog.Models() {
					fmt.Fprintf(out, "%-34s %-10s %10.4f %10.4f  %d\n", m.ID, m.Tier, m.PriceInput, m.PriceOutput, m.ContextLength)
				}
				fmt.Fprintf(out, "\nexchange rate: %.2f\n", catalog.ExchangeRate())
				return nil
			}

			quote := catalog.Quote(strings.TrimSpace(args[0]), inputTokens, outputTokens)
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(quote)
		},
	}
	cmd.Flags().IntVar(&inputTokens, "input", 1000, "prompt tokens to quote")
	cmd.Flags().IntVar(&outputTokens, "output", 1000, "completion tokens to quote")
	return cmd
}
