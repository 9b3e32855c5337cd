package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(shareCmd)
}

var shareCmd = &cobra.Command{
	Use:   "share <path>",
	Short: "Share a local file with the network",
	Args:  cobra.ExactArgs(1),
	RunE:  runShare,
}

func runShare(cmd *cobra.Command, args []string) error {
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var reply struct {
		Hash string `json:"hash"`
		Name string `json:"name"`
	}
	if err := client.post("/api/share", map[string]string{"path": abs}, &reply); err != nil {
		return err
	}

	fmt.Printf("Sharing %s\n", reply.Name)
	fmt.Printf("Hash: %s\n", reply.Hash)
	return nil
}
