package auth

import (
	"errors"
	"strings"
	"time"
)

// LintSeverity ranks a LintWarning.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	}
	return "UNKNOWN"
}

// LintWarning is a valid but questionable setting.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the list of warnings returned by Config.Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins the warnings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	selected := r.BySeverity(min)
	if len(selected) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(selected))
	for _, w := range selected {
		msgs = append(msgs, w.Code+": "+w.Message)
	}
	return errors.New("config lint: " + strings.Join(msgs, "; "))
}

// Lint reports settings that validate but are likely mistakes. It does not repeat
// Validate's checks.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Tracking.Enabled && !c.Tracking.DropIfFull {
		add("tracking_blocking", LintHigh, "a slow tracking sink can stall logins; enable DropIfFull")
	}
	if !c.Tracking.Enabled {
		add("tracking_disabled", LintInfo, "no analytics events are emitted")
	}
	if !c.Metrics.Enabled && c.Metrics.EnableLatencyHistograms {
		add("latency_without_metrics", LintWarn, "latency histograms need Metrics.Enabled")
	}
	if c.Transport.RateLimit == 0 {
		add("rate_limit_disabled", LintWarn, "requests to the platform are not rate limited")
	}
	if c.Transport.Timeout > time.Minute {
		add("timeout_long", LintWarn, "login screens wait up to the transport timeout")
	}
	if c.Enrichment.ProfileRequired {
		add("profile_required", LintWarn, "logins fail whenever the profile service is down")
	}
	if c.Tokens.RefreshLeeway == 0 {
		add("refresh_leeway_zero", LintInfo, "tokens about to expire are restored without refresh")
	}
	return ws
}
