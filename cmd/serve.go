package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"netmon/internal/config"
	"netmon/internal/flow"
	"netmon/internal/handlers"
	"netmon/internal/logging"
	"netmon/internal/session"
	"netmon/internal/store"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture service",
	Long: `Start the HTTP service. Capture does not begin until a client
posts to /api/capture/start.

Capturing requires CAP_NET_RAW (or root).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := logging.Init(cfg.Log); err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) error {
	ring := store.New(cfg.Capture.BufferSize)
	sess := session.New(ring, session.Config{
		SnapLen:     int32(cfg.Capture.SnapLen),
		Promiscuous: cfg.Capture.Promiscuous,
	})
	hub := handlers.NewHub()
	sess.AddListener(hub)
	flows := flow.NewTable()
	sess.AddListener(flows)

	mux := http.NewServeMux()
	handlers.New(sess, ring, flows, hub, cfg.Capture.Interface).Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("netmon listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logrus.WithField("signal", sig.String()).Info("shutting down")
	}

	// Stop the capture first so the source handle is released before
	// the process exits.
	sess.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
