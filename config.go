package goSession

import "errors"

// Config defines a public type used by goSession APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Audit   AuditConfig
	Metrics MetricsConfig
	Restore RestoreConfig
}

// AuditConfig defines a public type used by goSession APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goSession APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RestoreConfig defines a public type used by goSession APIs.
//
// RestoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RestoreConfig struct {
	// ClearOnFailure wipes the persisted snapshot when a restore attempt is
	// rejected by the authenticator. Enabled by default: a snapshot that
	// failed to restore once will fail again.
	ClearOnFailure bool
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig returns the configuration used when the caller provides none.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Restore: RestoreConfig{
			ClearOnFailure: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	// All sections are value types today; the clone exists so Builder and
	// Session never alias caller-owned config.
	return cfg
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
func (c Config) Validate() error {
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must not be negative")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("latency histograms require metrics to be enabled")
	}
	return nil
}
