package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/accountplan/internal/agent/core"
)

func reportCMD() *cobra.Command {
	var company string
	var directive string
	var asJSON bool
	var report = &cobra.Command{
		Use:   "report",
		Short: "Generate a full account-plan report",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}

			rep, err := eng.orchestrator.BuildReport(cmd.Context(), company, directive)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}

			fmt.Printf("# Account Plan: %s\n", rep.Company)
			if rep.LowConfidence {
				fmt.Println("(some sections could not be fully verified)")
			}
			for _, sec := range rep.Sections {
				fmt.Printf("\n## %s\n", sec.Title)
				switch {
				case sec.Unavailable:
					fmt.Println("Not available for this run.")
				case sec.Table != nil:
					printTable(sec)
				case sec.Series != nil:
					printSeries(sec)
				default:
					fmt.Println(sec.Body)
				}
			}
			if len(rep.References) > 0 {
				fmt.Println("\n## References")
				for _, r := range rep.References {
					fmt.Println("  -", r)
				}
			}
			return nil
		},
	}
	report.Flags().StringVar(&company, "company", "", "company to report on (required)")
	report.Flags().StringVar(&directive, "directive", "", "account directive the report must open with")
	report.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	_ = report.MarkFlagRequired("company")

	return report
}

func printTable(sec core.Section) {
	fmt.Println(strings.Join(sec.Table.Columns, " | "))
	for _, row := range sec.Table.Rows {
		fmt.Println(strings.Join(row, " | "))
	}
}

func printSeries(sec core.Section) {
	if sec.Body != "" {
		fmt.Println(sec.Body)
	}
	for _, p := range sec.Series.Points {
		fmt.Printf("  %d: %.0f %s\n", p.Year, p.Revenue, sec.Series.Currency)
	}
}
