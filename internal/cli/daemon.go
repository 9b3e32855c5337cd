package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chunkmesh-network/chunkmesh/internal/api"
	"github.com/chunkmesh-network/chunkmesh/internal/daemon"
	"github.com/chunkmesh-network/chunkmesh/internal/infra/chunkserver"
)

var daemonBehavior string

func init() {
	daemonCmd.Flags().StringVar(&daemonBehavior, "behavior", string(chunkserver.Honest),
		"chunk server behavior (honest|refusing|corrupting)")
	// The byzantine behaviors exist only to reproduce adversarial test
	// scenarios; keep them out of casual --help output.
	daemonCmd.Flags().MarkHidden("behavior")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the peer daemon",
	Long: `Run the long-lived peer process: the chunk server, the tracker
control connection with periodic re-registration, and the local HTTP
API used by the other subcommands.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	behavior, err := chunkserver.ParseBehavior(daemonBehavior)
	if err != nil {
		return err
	}

	sup, err := daemon.New(cfg, behavior)
	if err != nil {
		return err
	}
	if err := sup.Start(); err != nil {
		return err
	}
	defer sup.Stop()

	srv := api.NewServer(sup)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	httpServer := &http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Minute,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		httpServer.Close()
	}()

	fmt.Printf("chunkmesh peer %s serving on http://%s\n", sup.ID(), cfg.API.Addr())
	fmt.Printf("  Chunk server: 127.0.0.1:%d\n", sup.Port())
	fmt.Printf("  Tracker: %s\n", cfg.Tracker.Addr())
	if cfg.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", cfg.API.Addr())
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
