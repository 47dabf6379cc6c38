package gen

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/ondemand/internal/meta"
)

var (
	manDir      string
	markdownDir string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for the ondemand server",
	Long: `Generate up-to-date man pages for every ondemand command. By default
the pages are written to the "man" directory under the current directory.`,
	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		header := &doc.GenManHeader{
			Section: "1",
			Manual:  "ondemand Manual",
			Source:  fmt.Sprintf("ondemand %s", meta.Version),
		}

		return generate(cmd, manDir, "man pages", func(root *cobra.Command, dir string) error {
			return doc.GenManTree(root, header, dir)
		})
	},
}

var MarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Generate markdown reference pages for the ondemand server",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		return generate(cmd, markdownDir, "markdown pages", doc.GenMarkdownTree)
	},
}

// generate runs gen over the whole command tree, creating dir first.
func generate(cmd *cobra.Command, dir string, what string, gen func(*cobra.Command, string) error) error {
	out := cmd.OutOrStdout()

	if err := ensureDir(out, dir); err != nil {
		return err
	}

	cmd.Root().DisableAutoGenTag = true

	fmt.Fprintln(out, "Generating ondemand", what, "in", dir, "...")

	if err := gen(cmd.Root(), dir); err != nil {
		return err
	}

	fmt.Fprintln(out, "Done.")

	return nil
}

func ensureDir(out io.Writer, dir string) error {
	if _, err := os.Stat(dir); err == nil || !os.IsNotExist(err) {
		return err
	}

	fmt.Fprintln(out, "Directory", dir, "does not exist, creating...")

	return os.MkdirAll(dir, 0750)
}

func init() {
	ManPagesCmd.PersistentFlags().StringVar(&manDir, "dir", "man", "the directory to write the man pages.")
	MarkdownCmd.PersistentFlags().StringVar(&markdownDir, "dir", "docs", "the directory to write the markdown pages.")

	// For bash-completion
	for _, c := range []*cobra.Command{ManPagesCmd, MarkdownCmd} {
		if err := c.PersistentFlags().SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
			panic(err)
		}
	}
}
