package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
)

func init() {
	rootCmd.AddCommand(psCmd)
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List active and finished downloads",
	RunE:  runPs,
}

func runPs(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var body struct {
		Active  map[string]domain.JobState `json:"active"`
		History []domain.JobState          `json:"history"`
	}
	if err := client.get("/api/downloads", &body); err != nil {
		return err
	}

	if len(body.Active) == 0 && len(body.History) == 0 {
		fmt.Println("No downloads.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tPROGRESS\tSTATUS")
	for _, job := range body.Active {
		fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\n",
			job.Name, domain.HumanSize(job.Size), job.Progress, job.Status)
	}
	for _, job := range body.History {
		fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\n",
			job.Name, domain.HumanSize(job.Size), job.Progress, job.Status)
	}
	return w.Flush()
}
