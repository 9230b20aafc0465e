// Command geoctl runs boundary ingestion and name enrichment from the
// command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/EmpoweredVote/EV-Geo/internal/app"
	"github.com/EmpoweredVote/EV-Geo/internal/areas"
	"github.com/EmpoweredVote/EV-Geo/internal/config"
	"github.com/EmpoweredVote/EV-Geo/internal/db"
)

var (
	cfg      config.Config
	services *app.Services
)

var rootCmd = &cobra.Command{
	Use:           "geoctl",
	Short:         "Ingest administrative boundaries and enrich area names",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env.local")

		var err error
		cfg, err = config.LoadFromEnv()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		db.Connect(cfg.DatabaseURL, cfg.DBVerbose)
		services = app.NewServices(cfg, areas.Init())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if services != nil {
			services.Close()
		}
	},
}

// resolveCountries turns positional codes or --all into a validated list.
func resolveCountries(args []string, all bool) ([]string, error) {
	if !all && len(args) == 0 {
		return nil, errors.New("name at least one country code or pass --all")
	}
	return services.Countries.Resolve(args, all)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
