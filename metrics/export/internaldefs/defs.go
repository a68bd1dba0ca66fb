package internaldefs

import (
	"math"

	auth "github.com/opendigitaleducation/edifice-mobile-framework-sub000"
)

// CounterDef binds a counter metric ID to its exported name.
type CounterDef struct {
	ID   auth.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram metric ID to its exported name. BucketHelp and
// CountHelp describe the per-bucket series for backends without native histograms.
type HistogramDef struct {
	ID         auth.MetricID
	Name       string
	Help       string
	BucketHelp string
	CountHelp  string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: auth.MetricLoginSuccess, Name: "emf_auth_login_success_total", Help: "Logins that produced a full session."},
	{ID: auth.MetricLoginPartial, Name: "emf_auth_login_partial_total", Help: "Logins that produced a partial session."},
	{ID: auth.MetricLoginFailure, Name: "emf_auth_login_failure_total", Help: "Failed login attempts."},
	{ID: auth.MetricLoginRestored, Name: "emf_auth_login_restored_total", Help: "Sessions restored from a stored token."},
	{ID: auth.MetricLoginNothingToRestore, Name: "emf_auth_login_nothing_to_restore_total", Help: "Restore attempts without a stored token."},
	{ID: auth.MetricActivationRedirect, Name: "emf_auth_activation_redirect_total", Help: "Logins redirected to account activation."},
	{ID: auth.MetricRenewRedirect, Name: "emf_auth_renew_redirect_total", Help: "Logins redirected to password renewal."},
	{ID: auth.MetricDeviceRegisterFailure, Name: "emf_auth_device_register_failure_total", Help: "Failed push token registrations."},
	{ID: auth.MetricTokenRefreshed, Name: "emf_auth_token_refreshed_total", Help: "Access tokens refreshed before use."},
	{ID: auth.MetricActivationSuccess, Name: "emf_auth_activation_success_total", Help: "Accepted account activations."},
	{ID: auth.MetricActivationFailure, Name: "emf_auth_activation_failure_total", Help: "Rejected account activations."},
	{ID: auth.MetricPasswordChangeSuccess, Name: "emf_auth_password_change_success_total", Help: "Accepted password changes."},
	{ID: auth.MetricPasswordChangeFailure, Name: "emf_auth_password_change_failure_total", Help: "Rejected password changes."},
	{ID: auth.MetricPasswordChangeRegex, Name: "emf_auth_password_change_regex_total", Help: "Password changes rejected by the password policy."},
	{ID: auth.MetricForgotSuccess, Name: "emf_auth_forgot_success_total", Help: "Forgot id or password requests accepted by the platform."},
	{ID: auth.MetricForgotFailure, Name: "emf_auth_forgot_failure_total", Help: "Forgot id or password requests refused by the platform."},
	{ID: auth.MetricLogout, Name: "emf_auth_logout_total", Help: "Logouts."},
	{ID: auth.MetricSessionRefreshed, Name: "emf_auth_session_refreshed_total", Help: "Sessions rebuilt after a requirement change."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{
		ID:         auth.MetricLoginLatency,
		Name:       "emf_auth_login_latency_seconds",
		Help:       "Time from credential submission to an installed session, in seconds.",
		BucketHelp: "Logins that installed a session within the bucket bound, cumulative.",
		CountHelp:  "Logins timed by the login latency histogram.",
	},
}

// TrackingDroppedName is the counter exported for dropped tracking events.
const TrackingDroppedName = "emf_auth_tracking_dropped_total"

// TrackingDroppedHelp describes TrackingDroppedName.
const TrackingDroppedHelp = "Tracking events dropped on a full dispatcher buffer."

// HistogramBounds are the le labels matching the engine latency buckets.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"10",
	"+Inf",
}

// HistogramUpperBounds are HistogramBounds as numbers.
var HistogramUpperBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 10, math.Inf(1)}

// HistogramBoundSuffix names the per-bucket login latency series where labels are
// unavailable: emf_auth_login_latency_seconds_bucket_le_0_25 counts logins done
// within 250ms.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"10",
	"inf",
}

// NormalizeBuckets copies raw into a fixed eight bucket array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
