package commands

import (
	"encoding/json"

	"bitwise74/media-api/internal"

	"github.com/spf13/cobra"
)

var (
	reindexBatchSize int
	reindexTypes     []string
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the media reference index of all content",
	Long: `Walks every content record of the selected types in ascending id order
and recomputes which media it references.

Examples:
  # Use the configured batch size and content types
  mediactl reindex

  # Smaller batches, pages only
  mediactl reindex --batch-size 10 --types page`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := internal.ReindexOptions()
		if cmd.Flags().Changed("batch-size") {
			opts.BatchSize = reindexBatchSize
		}
		if len(reindexTypes) > 0 {
			opts.ContentTypes = reindexTypes
		}

		res, err := deps.Reindexer.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	reindexCmd.Flags().IntVar(&reindexBatchSize, "batch-size", 50, "records per batch (1-1000)")
	reindexCmd.Flags().StringSliceVar(&reindexTypes, "types", nil, "content types to process (default: reindex.content_types)")
}
