package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/prince-dkc/universal-qr-print/internal/api"
	"github.com/prince-dkc/universal-qr-print/internal/config"
	"github.com/prince-dkc/universal-qr-print/internal/generate"
	"github.com/prince-dkc/universal-qr-print/internal/images"
	"github.com/prince-dkc/universal-qr-print/internal/printer"
	"github.com/prince-dkc/universal-qr-print/internal/qrgen"
	"github.com/prince-dkc/universal-qr-print/internal/snapshot"
	"github.com/prince-dkc/universal-qr-print/internal/workspace"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		port    int
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the label web interface",
		Long: `Starts the label generator web interface.

The interface generates single labels or bulk sessions from uploaded
sheets, previews the tiled pages and prints them through the browser
or to configured network printers.`,
		Example: `  # Start with config.yaml from the working directory
  labelserver serve

  # Start on a custom port with debug logging
  labelserver serve --port 3000 --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logBuf := api.NewLogBuffer(500)
			slog.SetDefault(slog.New(api.NewLogHandler(logBuf,
				slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))))

			return serve(cmd.Context(), cfg, logBuf)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (overrides config)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logBuf *api.LogBuffer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store, err := snapshot.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer store.Close()

	imgs := images.NewStore()
	gen := generate.New(qrgen.NewClient(cfg.Generator.Endpoint, cfg.Generator.Timeout), imgs, generate.Options{
		MaxRows:        cfg.Generator.MaxBulkRows,
		MaxQuantity:    cfg.Generator.MaxQuantity,
		Concurrency:    cfg.Generator.BulkConcurrency,
		UppercaseCodes: cfg.Generator.UppercaseCodes,
		Metrics:        generate.NewMetrics(reg),
	})

	hub := api.NewHub(30 * time.Second)
	defer hub.Close()

	ws := workspace.New(gen, imgs, workspace.Options{
		Sizing:             cfg.Sizing(),
		GuardDuplicateBulk: cfg.Generator.GuardDuplicateBulk,
		PageSize:           cfg.PageSize(),
		MaxQuantity:        cfg.Generator.MaxQuantity,
		Snapshots:          snapshot.NewSnapshotter(store, imgs),
		OnChange: func(v workspace.View) {
			hub.Broadcast(api.Event{Type: "state", Version: v.Version, Data: v})
		},
	})
	if err := ws.Restore(ctx); err != nil {
		slog.Warn("Could not restore previous session", "err", err)
	}

	printers := printer.NewManager(printer.DiscoveryOptions{
		Subnets: cfg.Discovery.Subnets,
		Port:    cfg.Discovery.Port,
		Timeout: cfg.Discovery.Timeout,
	})
	defer printers.Close()
	for _, p := range cfg.Printers {
		printers.AddPrinter(printer.NewNetworkPrinter(p.ID, p.Name, p.Address, p.Port,
			printer.Media{DPI: p.DPI, WidthMM: p.WidthMM}))
		slog.Info("Added printer", "id", p.ID, "address", p.Address)
	}

	srv := api.NewServer(cfg, api.Deps{
		Workspace: ws,
		Images:    imgs,
		Printers:  printers,
		Logs:      logBuf,
		Jobs:      api.NewJobBuffer(50),
		Events:    hub,
		Registry:  reg,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Label interface available",
			"addr", server.Addr,
			"url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
			"store", cfg.Store.Driver,
			"generator", cfg.Generator.Endpoint)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Hijacked websocket connections are not closed by Shutdown
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "err", err)
			return err
		}
		slog.Info("Server stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}
