package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/ondemand/client"
	"github.com/luma/ondemand/protocol"
	"github.com/luma/ondemand/transport"
)

var (
	fetchAddr     string
	fetchIndex    uint8
	fetchArchive  uint16
	fetchPriority string
	fetchOut      string
	fetchTimeout  time.Duration
)

func init() {
	flags := FetchCmd.Flags()

	flags.StringVarP(&fetchAddr, "addr", "a", net.JoinHostPort("127.0.0.1", strconv.Itoa(transport.BasePort)), "The server to fetch from")
	flags.Uint8VarP(&fetchIndex, "index", "i", 0, "The index the archive belongs to")
	flags.Uint16Var(&fetchArchive, "archive", 0, "The archive to fetch")
	flags.StringVarP(&fetchPriority, "priority", "p", "urgent", "The priority class to request with: urgent, priority or passive")
	flags.StringVarP(&fetchOut, "out", "o", "", "Write the archive to this file instead of printing a summary")
	flags.DurationVar(&fetchTimeout, "timeout", 10*time.Second, "Give up after this long")
}

var FetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one archive from a running server",
	Long: `Fetch one archive from a running server

Usage
	ondemand fetch --addr 127.0.0.1:43594 --index 0 --archive 10 --out archive.dat
`,
	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		priority, err := parsePriority(fetchPriority)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
		defer cancel()

		conn, err := client.Dial(ctx, fetchAddr, zap.NewNop())
		if err != nil {
			return err
		}
		defer conn.Close()

		start := time.Now()
		data, err := conn.Fetch(ctx, fetchIndex, fetchArchive, priority)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d/%d: %s in %d chunks, %s\n",
			fetchIndex, fetchArchive,
			humanize.Bytes(uint64(len(data))),
			protocol.BlockCount(len(data)),
			time.Since(start).Round(time.Millisecond))

		if fetchOut == "" {
			return nil
		}

		return os.WriteFile(fetchOut, data, 0640)
	},
}

func parsePriority(name string) (protocol.Priority, error) {
	for _, p := range protocol.Priorities {
		if p.String() == name {
			return p, nil
		}
	}

	return 0, fmt.Errorf("Unknown priority %q, expected urgent, priority or passive", name)
}
