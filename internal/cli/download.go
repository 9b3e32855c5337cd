package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var downloadDest string

func init() {
	downloadCmd.Flags().StringVar(&downloadDest, "dest", "", "destination path for the finished file")
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download <hash>",
	Short: "Download a file from the network by its hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	body := map[string]string{"hash": args[0]}
	if downloadDest != "" {
		body["destination_path"] = downloadDest
	}
	if err := client.post("/api/download", body, nil); err != nil {
		return err
	}

	fmt.Println("Download started. Track progress with: chunkmesh ps")
	return nil
}
