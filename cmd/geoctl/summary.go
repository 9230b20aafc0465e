package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/EmpoweredVote/EV-Geo/internal/batch"
	"github.com/EmpoweredVote/EV-Geo/internal/enrichment"
	"github.com/EmpoweredVote/EV-Geo/internal/ingest"
)

var (
	summaryAll    bool
	summaryIngest bool
	summaryJSON   bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary [country-code...]",
	Short: "Run enrichment (or ingestion) quietly and print a per-country summary",
	RunE:  runSummary,
}

func init() {
	summaryCmd.Flags().BoolVar(&summaryAll, "all", false, "cover every supported country")
	summaryCmd.Flags().BoolVar(&summaryIngest, "ingest", false, "summarise an ingestion run instead of enrichment")
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "print the summary as JSON")
	summaryCmd.Flags().IntVar(&enrichBatchSize, "batch-size", enrichment.DefaultBatchSize, "areas per model call")
	summaryCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "decide without writing names")
	summaryCmd.Flags().IntVar(&enrichLevel, "level", -1, "only enrich this admin level (-1 for all)")
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	codes, err := resolveCountries(args, summaryAll)
	if err != nil {
		return err
	}

	var s batch.Summary
	if summaryIngest {
		s = services.Orchestrator.IngestionSummary(cmd.Context(), codes, ingest.Options{WithTags: true})
	} else {
		opts, err := enrichOptions()
		if err != nil {
			return err
		}
		s = services.Orchestrator.EnrichmentSummary(cmd.Context(), codes, opts)
	}

	if summaryJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	printSummary(cmd.OutOrStdout(), s)
	return nil
}

func printSummary(w io.Writer, s batch.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COUNTRY\tOK\tPROCESSED\tAPPLIED\tVALIDATED\tSKIPPED\tFAILED\tMS\tERROR")
	for _, c := range s.Countries {
		fmt.Fprintf(tw, "%s\t%v\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			c.CountryCode, c.Success, c.Counts.Processed, c.Counts.Applied, c.Counts.Validated,
			c.Counts.Skipped, c.Counts.Failed, c.ElapsedMs, c.Error)
	}
	_ = tw.Flush()

	status := "completed"
	if !s.Completed {
		status = "interrupted"
	}
	fmt.Fprintf(w, "\n%s %s: %d succeeded, %d failed in %dms\n", s.Kind, status, s.SuccessCount, s.FailCount, s.ElapsedMs)
}
