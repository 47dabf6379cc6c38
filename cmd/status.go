package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var ErrInvalidStatus = errors.New("Server status is not valid JSON")

var statusURL string

func init() {
	StatusCmd.Flags().StringVarP(&statusURL, "url", "u", "http://127.0.0.1:7362/status", "The admin status endpoint of a running server")
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running server",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient := &http.Client{Timeout: 5 * time.Second}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, statusURL, nil)
		if err != nil {
			return err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("Server status request failed: %s", resp.Status)
		}

		return printStatus(cmd.OutOrStdout(), body)
	},
}

func printStatus(w io.Writer, body []byte) error {
	if !gjson.ValidBytes(body) {
		return ErrInvalidStatus
	}

	fields := gjson.GetManyBytes(body,
		"version",
		"sessions.active",
		"sessions.accepted",
		"archives.count",
		"archives.bytes")

	_, err := fmt.Fprintf(w, "version:  %s\nsessions: %d active, %s accepted\narchives: %s, %s\n",
		fields[0].String(),
		fields[1].Int(),
		humanize.Comma(fields[2].Int()),
		humanize.Comma(fields[3].Int()),
		humanize.Bytes(fields[4].Uint()))

	return err
}
