package observability

import "log/slog"

// AppMode distinguishes how the process is being run; it shapes resource
// attributes and whether logs mirror to a human-readable console writer.
type AppMode string

// Application modes.
const (
	ModeCLI    AppMode = "cli"
	ModeMCP    AppMode = "mcp"
	ModeServer AppMode = "server"
)

// defaultShutdownTimeoutSec bounds provider shutdown when the config does
// not set one.
const defaultShutdownTimeoutSec = 5

// Config controls observability initialization: service identity, OTLP
// export, sampling, and logging.
type Config struct {
	// ServiceName identifies the service in traces and metrics.
	ServiceName string

	// ServiceVersion is attached as a resource attribute when non-empty.
	ServiceVersion string

	// Environment names the deployment environment (dev, staging, prod).
	Environment string

	// Mode records how the process is running.
	Mode AppMode

	// OTLPEndpoint is the gRPC endpoint for trace and metric export.
	// Empty disables export entirely (no-op providers).
	OTLPEndpoint string

	// OTLPHeaders are extra gRPC headers sent with each export.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS on the OTLP connection.
	OTLPInsecure bool

	// SampleRatio sets a parent-based TraceIDRatio sampler when > 0;
	// OTEL_TRACES_SAMPLER environment settings take precedence.
	SampleRatio float64

	// DebugTrace forces the always-on sampler (ahead of OTEL_TRACES_SAMPLER
	// and SampleRatio) and logs attribute keys dropped by the filter to stderr.
	DebugTrace bool

	// TraceVerbose keeps full span attributes even when exporting;
	// otherwise the attribute filter trims unknown keys.
	TraceVerbose bool

	// LogLevel is the minimum level for the structured logger.
	LogLevel slog.Level

	// LogJSON selects JSON log output over text.
	LogJSON bool

	// ShutdownTimeoutSec bounds the flush on Shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns the baseline configuration: CLI mode, info-level
// logging, no export.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "codefang",
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
