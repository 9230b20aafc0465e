package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EmpoweredVote/EV-Geo/internal/ingest"
)

var (
	ingestAll        bool
	ingestTags       bool
	ingestThumbnails bool
	ingestSimplified bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [country-code...]",
	Short: "Load ADM0/ADM1/ADM2 boundaries into the area store",
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestAll, "all", false, "ingest every supported country")
	ingestCmd.Flags().BoolVar(&ingestTags, "tags", true, "match OpenStreetMap tags for localized names")
	ingestCmd.Flags().BoolVar(&ingestThumbnails, "thumbnails", false, "resolve Wikipedia thumbnails for tagged areas")
	ingestCmd.Flags().BoolVar(&ingestSimplified, "simplified", false, "download simplified geometry")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	codes, err := resolveCountries(args, ingestAll)
	if err != nil {
		return err
	}
	opts := ingest.Options{WithTags: ingestTags, WithThumbnails: ingestThumbnails, Simplified: ingestSimplified}

	sink := newBarSink(cmd.OutOrStdout())
	res := services.Orchestrator.RunIngestion(cmd.Context(), codes, opts, sink)
	sink.finish()

	if res.Interrupted {
		return errors.New("ingestion interrupted")
	}
	if res.FailCount > 0 {
		return fmt.Errorf("%d of %d countries failed", res.FailCount, len(codes))
	}
	return nil
}
