package internaldefs

import (
	"github.com/MrEthical07/authflow"
)

// CounterDef binds a controller counter to its exported name.
type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// HistogramDef binds a controller histogram to its exported name.
type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported from the controller's audit dispatcher rather
// than from the counter set, so it is reported even with metrics disabled.
const (
	AuditDroppedName = "authflow_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

var CounterDefs = []CounterDef{
	{ID: authflow.MetricSignUpSuccess, Name: "authflow_sign_up_success_total", Help: "Accepted sign-up registrations."},
	{ID: authflow.MetricSignUpFailure, Name: "authflow_sign_up_failure_total", Help: "Rejected sign-up registrations."},
	{ID: authflow.MetricConfirmSignUpSuccess, Name: "authflow_confirm_sign_up_success_total", Help: "Successful sign-up confirmations."},
	{ID: authflow.MetricConfirmSignUpFailure, Name: "authflow_confirm_sign_up_failure_total", Help: "Failed sign-up confirmations."},
	{ID: authflow.MetricAutoSignInSuccess, Name: "authflow_auto_sign_in_success_total", Help: "Automatic sign-ins after confirmation that succeeded."},
	{ID: authflow.MetricAutoSignInFailure, Name: "authflow_auto_sign_in_failure_total", Help: "Automatic sign-ins after confirmation that failed."},
	{ID: authflow.MetricSignInSuccess, Name: "authflow_sign_in_success_total", Help: "Successful sign-ins."},
	{ID: authflow.MetricSignInFailure, Name: "authflow_sign_in_failure_total", Help: "Failed sign-ins."},
	{ID: authflow.MetricSignOutSuccess, Name: "authflow_sign_out_success_total", Help: "Successful sign-outs."},
	{ID: authflow.MetricSignOutFailure, Name: "authflow_sign_out_failure_total", Help: "Failed sign-outs."},
	{ID: authflow.MetricPasswordResetRequest, Name: "authflow_password_reset_request_total", Help: "Accepted password reset requests."},
	{ID: authflow.MetricPasswordResetRequestFailure, Name: "authflow_password_reset_request_failure_total", Help: "Rejected password reset requests."},
	{ID: authflow.MetricPasswordResetConfirmSuccess, Name: "authflow_password_reset_confirm_success_total", Help: "Successful password reset confirmations."},
	{ID: authflow.MetricPasswordResetConfirmFailure, Name: "authflow_password_reset_confirm_failure_total", Help: "Failed password reset confirmations."},
	{ID: authflow.MetricValidationFailure, Name: "authflow_validation_failure_total", Help: "Operations rejected by local input validation."},
	{ID: authflow.MetricBusyRejected, Name: "authflow_busy_rejected_total", Help: "Operations rejected because the flow was busy."},
	{ID: authflow.MetricStaleResultDropped, Name: "authflow_stale_result_dropped_total", Help: "Provider results dropped after a flow reset."},
	{ID: authflow.MetricProviderEvent, Name: "authflow_provider_event_total", Help: "Identity provider events received."},
	{ID: authflow.MetricReconcile, Name: "authflow_reconcile_total", Help: "Session queries sent to the identity provider."},
	{ID: authflow.MetricReconcileShared, Name: "authflow_reconcile_shared_total", Help: "Reconcile calls that joined an in-flight session query."},
	{ID: authflow.MetricReconcileFailure, Name: "authflow_reconcile_failure_total", Help: "Session queries that failed closed."},
	{ID: authflow.MetricReconcileDiscarded, Name: "authflow_reconcile_discarded_total", Help: "Reconcile results overtaken by a newer verdict."},
}

var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricReconcileLatency, Name: "authflow_reconcile_latency_seconds", Help: "Session query latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the last
// controller bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for backends
// without native histogram labels.
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

// NormalizeBuckets copies raw into a fixed array, zero filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
