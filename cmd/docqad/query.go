package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryJSON bool
	queryDocs []string
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a retrieval query against the local index",
	Long: `Run the full retrieval pipeline (analysis, hybrid search,
reranking, accuracy filtering) and print the final context.

Examples:
  # Human-readable output
  docqad query "what changed in the fourth quarter"

  # Full result as JSON
  docqad query --json "what changed in the fourth quarter"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the full result as JSON")
	queryCmd.Flags().StringSliceVar(&queryDocs, "doc", nil, "restrict retrieval to these document IDs (repeatable)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.close()

	query := strings.Join(args, " ")
	result, err := st.service.Retrieve(cmd.Context(), query, queryDocs)
	if err != nil {
		return err
	}

	if queryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Empty {
		fmt.Println("no documents ingested yet")
		return nil
	}
	fmt.Printf("query type: %s (%s), strategy: %s, %d chunks\n\n",
		result.Analysis.Type, result.Analysis.Complexity, result.Method, len(result.Candidates))
	fmt.Println(result.Context)
	return nil
}
