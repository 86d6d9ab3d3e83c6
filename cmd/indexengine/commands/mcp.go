package commands

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/Sumatoshi-tech/codefang-index/internal/mcpserver"
	"github.com/Sumatoshi-tech/codefang-index/pkg/observability"
	"github.com/Sumatoshi-tech/codefang-index/pkg/version"
)

const metricsReadHeaderTimeout = 10 * time.Second

// NewMCPCommand creates the serve-mcp subcommand: the engine's tools over
// MCP stdio transport, with an optional Prometheus scrape endpoint.
func NewMCPCommand() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Serve the indexing engine as MCP tools on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			obsCfg := observability.DefaultConfig()
			obsCfg.ServiceName = "indexengine"
			obsCfg.ServiceVersion = version.Version
			obsCfg.Mode = observability.ModeMCP
			obsCfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

			providers, err := observability.Init(obsCfg)
			if err != nil {
				return err
			}
			defer func() { _ = providers.Shutdown(cmd.Context()) }()

			eng, _, err := buildEngine(configPath)
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				if err := serveMetrics(metricsAddr); err != nil {
					return err
				}
			}

			srv := mcpserver.NewServer(eng, providers.Logger)

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (disabled when empty)")

	return cmd
}

func serveMetrics(addr string) error {
	handler, err := observability.PrometheusHandler()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           observability.HTTPMiddleware(otel.Tracer("indexengine.metrics"), slog.Default(), mux),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	return nil
}
