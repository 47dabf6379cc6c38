package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/ondemand/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "ondemand",
	Short: "Serve cache archives to game clients on demand",
	Long: `Serve cache archives to game clients on demand

Running ondemand without a command is the same as running
	ondemand start server.properties
`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		return StartCmd.RunE(cmd, args)
	},
}

func init() {
	RootCmd.AddCommand(StartCmd)
	RootCmd.AddCommand(SetupCmd)
	RootCmd.AddCommand(FetchCmd)
	RootCmd.AddCommand(StatusCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func catalogPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return ""
}
