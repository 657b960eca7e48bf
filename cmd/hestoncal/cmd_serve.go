package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run manifest, batch API and progress WebSocket",
	Long: `Start the HTTP server. Routes:

  GET  /healthz, /readyz    liveness and readiness
  GET  /metrics             Prometheus metrics
  GET  /api/runs[/{key}]    run manifest
  POST /api/batches         start a dateset batch
  GET  /api/batches[/{id}]  batch snapshots
  GET  /ws                  progress stream

SIGINT or SIGTERM drains requests and waits for a running batch.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default :<server.port>)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApplication(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(ctx, serveAddr)
}
