package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ingestConcurrency int

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Ingest a PDF file or a directory of PDFs",
	Long: `Extract, chunk, embed and index PDF documents. Re-ingesting a
file replaces its previous chunks.

Examples:
  # Ingest a single file
  docqad ingest report.pdf

  # Ingest every PDF in a directory, four documents at a time
  docqad ingest ./docs --concurrency 4`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 2, "documents processed in parallel")
}

func runIngest(cmd *cobra.Command, args []string) error {
	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.close()

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if info.IsDir() {
		results, err := st.ingestor.IngestDir(ctx, path, ingestConcurrency)
		if err != nil {
			return err
		}
		for _, meta := range results {
			fmt.Printf("%s: %d pages, %d chunks\n", meta.DocID, meta.PageCount, len(meta.ChunkIDs))
		}
		return nil
	}

	meta, err := st.ingestor.IngestFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d pages, %d chunks\n", meta.DocID, meta.PageCount, len(meta.ChunkIDs))
	return nil
}
