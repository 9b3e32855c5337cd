package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chunkmesh-network/chunkmesh/internal/daemon"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/tracker"
)

func init() {
	rootCmd.AddCommand(trackerCmd)
}

var trackerCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Run the tracker",
	Long: `Run the rendezvous point of the network: the file index and peer
registry that peers register with and query for holders.`,
	RunE: runTracker,
}

func runTracker(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	srv := tracker.NewServer(tracker.NewIndex(), cfg.Tracker.BufferSize)
	if err := srv.Listen(cfg.Tracker.Addr()); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		srv.Close()
	}()

	fmt.Printf("chunkmesh tracker listening on %s\n", cfg.Tracker.Addr())
	srv.Serve()
	return nil
}
