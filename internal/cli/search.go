package cli

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/wire"
)

func init() {
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the tracker for files by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var results []wire.SearchResult
	if err := client.get("/api/search?q="+url.QueryEscape(args[0]), &results); err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No files found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tSEEDERS\tHASH")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Name, domain.HumanSize(r.Size), r.Seeders, r.Hash)
	}
	return w.Flush()
}
