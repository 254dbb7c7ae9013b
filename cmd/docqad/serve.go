package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/fyrsmithlabs/docqa/internal/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the docqa HTTP server",
	Long: `Start the HTTP server exposing document management, query,
evaluation and monitoring endpoints.

Examples:
  # Serve with the default config
  docqad serve

  # Serve with an explicit config file
  docqad serve --config ./config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := buildStack()
	if err != nil {
		return err
	}
	defer st.close()

	server, err := httpapi.NewServer(st.service, st.ingestor, st.manager, st.collector, st.feedback, st.logger, &httpapi.Config{
		Host: st.cfg.Server.Host,
		Port: st.cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		st.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), st.cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}
