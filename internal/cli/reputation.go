package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chunkmesh-network/chunkmesh/internal/infra/reputation"
)

func init() {
	rootCmd.AddCommand(reputationCmd)
}

var reputationCmd = &cobra.Command{
	Use:   "reputation",
	Short: "Show this peer's view of other peers",
	RunE:  runReputation,
}

func runReputation(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var entries []reputation.Entry
	if err := client.get("/api/reputations", &entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No peer interactions recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tSCORE\tINTERACTIONS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%.2f\t%d\n", e.PeerID, e.Score, e.Interactions)
	}
	return w.Flush()
}
