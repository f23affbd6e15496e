package tools

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var docsOutputDir string

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Generate markdown documentation for the elfkit command tree",
	Long: `Walks the elfkit command tree and writes one markdown file per
command into --output (default: ./docs), via spf13/cobra's doc
generator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(docsOutputDir, 0o755); err != nil {
			return fmt.Errorf("tools docs: %w", err)
		}
		return doc.GenMarkdownTree(cmd.Root(), docsOutputDir)
	},
}

func init() {
	ToolsCmd.AddCommand(docsCmd)
	docsCmd.Flags().StringVarP(&docsOutputDir, "output", "o", "docs", "output directory for generated markdown")
}
