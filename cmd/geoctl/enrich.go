package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EmpoweredVote/EV-Geo/internal/enrichment"
)

var (
	enrichAll       bool
	enrichBatchSize int
	enrichDryRun    bool
	enrichLevel     int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [country-code...]",
	Short: "Fill missing English and Japanese area names",
	Long: `Sends areas with a missing name_en or name_ja to the naming model in
batches and writes the accepted names. Existing names are never replaced.`,
	RunE: runEnrich,
}

func init() {
	enrichCmd.Flags().BoolVar(&enrichAll, "all", false, "enrich every supported country")
	enrichCmd.Flags().IntVar(&enrichBatchSize, "batch-size", enrichment.DefaultBatchSize, "areas per model call")
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "decide without writing names")
	enrichCmd.Flags().IntVar(&enrichLevel, "level", -1, "only enrich this admin level (-1 for all)")
	rootCmd.AddCommand(enrichCmd)
}

func enrichOptions() (enrichment.Options, error) {
	if enrichBatchSize < 1 {
		return enrichment.Options{}, errors.New("--batch-size must be positive")
	}
	opts := enrichment.Options{BatchSize: enrichBatchSize, DryRun: enrichDryRun}
	if enrichLevel >= 0 {
		level := enrichLevel
		opts.Level = &level
	}
	return opts, nil
}

func runEnrich(cmd *cobra.Command, args []string) error {
	if services.Enricher == nil {
		return errors.New("enrichment not configured: set GEMINI_API_KEY")
	}
	codes, err := resolveCountries(args, enrichAll)
	if err != nil {
		return err
	}
	opts, err := enrichOptions()
	if err != nil {
		return err
	}

	sink := newBarSink(cmd.OutOrStdout())
	res := services.Orchestrator.RunEnrichment(cmd.Context(), codes, opts, sink)
	sink.finish()

	if res.Interrupted {
		return errors.New("enrichment interrupted")
	}
	if res.FailCount > 0 {
		return fmt.Errorf("%d of %d countries failed", res.FailCount, len(codes))
	}
	return nil
}
