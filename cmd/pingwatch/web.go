package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/user/pingwatch/internal/metrics"
	"github.com/user/pingwatch/internal/util"
	"github.com/user/pingwatch/internal/web"
)

var webPort int

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the HTTP API",
	Long: `Serve the incident store over HTTP without running the monitor.
Use this next to a daemon started without --with-web.

Endpoints:
  GET    /api/health
  GET    /api/incidents?limit=&host=
  GET    /api/incidents/latest
  GET    /api/incidents/unresolved
  GET    /api/incidents/host/{host}
  GET    /api/incidents/{id}
  PUT    /api/incidents/{id}/resolve
  DELETE /api/incidents
  GET    /api/statistics
  GET    /api/report?last=24h
  GET    /metrics

Examples:
  pingwatch web
  pingwatch web --port 9090`,
	RunE: runWeb,
}

func init() {
	webCmd.Flags().IntVarP(&webPort, "port", "p", 0, "Web server port (default from config)")
}

func runWeb(cmd *cobra.Command, args []string) error {
	port := webPort
	if port == 0 {
		port = cfg.WebPort
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(store, util.Logger().Named("web"), nil, port)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Printf("Serving on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return srv.Stop(context.Background())
}
