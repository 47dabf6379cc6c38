package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/luma/ondemand/internal/env"
)

var SetupCmd = &cobra.Command{
	Use:   "setup [properties]",
	Short: "Write a manifest listing every archive in the cache",
	Long: `Write a manifest listing every archive in the cache

Usage
	ondemand setup server.properties

The manifest is written to OUTDIR/LOADFILE and read by start.
`,
	Args: cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		catalog, err := env.LoadCatalog(catalogPath(args), env.SetupMode)
		if err != nil {
			return err
		}

		_, err = writeManifest(ctx, catalog, log)
		return err
	},
}
