package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func askCMD() *cobra.Command {
	var company string
	var directive string
	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask one research question about a company",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}

			res, err := eng.orchestrator.Ask(cmd.Context(), company, strings.Join(args, " "), directive)
			if err != nil {
				return err
			}
			fmt.Println(res.Text)
			if res.LowConfidence {
				fmt.Println("\n(low confidence: the answer did not pass review)")
			}
			if len(res.UsedSnippets) > 0 {
				fmt.Println("\nSources:")
				for _, s := range res.UsedSnippets {
					fmt.Println("  -", s)
				}
			}
			for _, f := range res.FollowUps {
				fmt.Println("Follow-up:", f)
			}
			return nil
		},
	}
	ask.Flags().StringVar(&company, "company", "", "company to research (required)")
	ask.Flags().StringVar(&directive, "directive", "", "account directive to address first")
	_ = ask.MarkFlagRequired("company")

	return ask
}
