package internaldefs

import (
	goSession "github.com/kvistad/goSession"
)

// CounterDef names one session counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one session latency histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricAuthenticateSuccess, Name: "gosession_authenticate_success_total", Help: "Successful authenticate operations."},
	{ID: goSession.MetricAuthenticateFailure, Name: "gosession_authenticate_failure_total", Help: "Failed authenticate operations."},
	{ID: goSession.MetricInvalidateSuccess, Name: "gosession_invalidate_success_total", Help: "Successful invalidate operations."},
	{ID: goSession.MetricInvalidateFailure, Name: "gosession_invalidate_failure_total", Help: "Failed invalidate operations."},
	{ID: goSession.MetricRestoreSuccess, Name: "gosession_restore_success_total", Help: "Successful session restores."},
	{ID: goSession.MetricRestoreFailure, Name: "gosession_restore_failure_total", Help: "Failed session restores."},
	{ID: goSession.MetricStoreUpdateApplied, Name: "gosession_store_update_applied_total", Help: "External store updates that produced an authenticated session."},
	{ID: goSession.MetricStoreUpdateRejected, Name: "gosession_store_update_rejected_total", Help: "External store updates that cleared the session."},
	{ID: goSession.MetricAuthenticatorRefresh, Name: "gosession_authenticator_refresh_total", Help: "Authenticator-pushed session data refreshes."},
	{ID: goSession.MetricRemoteInvalidation, Name: "gosession_remote_invalidation_total", Help: "Authenticator-pushed session invalidations."},
	{ID: goSession.MetricAuthorizationFailed, Name: "gosession_authorization_failed_total", Help: "Reported authorization failures."},
}

// HistogramDefs lists every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricAuthenticateLatency, Name: "gosession_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds holds the Prometheus le labels matching the core buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix holds instrument-name-safe forms of HistogramBounds.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
