package flows

import (
	"context"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
)

// PathReset is the password change endpoint.
const PathReset = "auth/reset"

// policyMatchTimeout bounds one evaluation of a platform password policy.
const policyMatchTimeout = 250 * time.Millisecond

// ChangePasswordInput is a validated password change submission.
type ChangePasswordInput struct {
	Platform        *platform.Platform
	Login           string
	OldPassword     string
	NewPassword     string
	ConfirmPassword string
	ResetCode       string
	ForceChange     bool
	// PasswordRegex is the policy from the last loaded auth context, if any.
	PasswordRegex string
}

// ChangePasswordMetrics carries metric IDs needed by the password change flow.
type ChangePasswordMetrics struct {
	PasswordChangeSuccess int
	PasswordChangeFailure int
	PasswordChangeRegex   int
}

// ChangePasswordEvents carries tracking event names used by the password change flow.
type ChangePasswordEvents struct {
	PasswordChangeSuccess string
	PasswordChangeFailure string
}

// ChangePasswordDeps captures password change dependencies.
type ChangePasswordDeps struct {
	PostForm PostFormFunc

	IsChangePasswordError func(error) bool
	// ChangePasswordError builds the typed error. regex marks a policy mismatch.
	ChangePasswordError func(regex bool, message string, cause error) error

	MetricInc func(int)
	Track     TrackFunc

	Metrics        ChangePasswordMetrics
	Events         ChangePasswordEvents
	EngineNotReady error
}

// RunChangePassword submits the reset form. When the submission fails and the new
// password does not match the platform policy, the error reports the policy mismatch
// instead of the generic failure.
func RunChangePassword(ctx context.Context, in ChangePasswordInput, deps ChangePasswordDeps) error {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Track == nil {
		deps.Track = noopTrack
	}
	if deps.IsChangePasswordError == nil {
		deps.IsChangePasswordError = func(error) bool { return false }
	}
	if in.Platform == nil || deps.PostForm == nil || deps.ChangePasswordError == nil {
		return deps.EngineNotReady
	}

	err := submitPassword(ctx, in, deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.PasswordChangeFailure)
		deps.Track(ctx, deps.Events.PasswordChangeFailure, false, in.Platform.Name, "", err, func() map[string]string {
			return map[string]string{"forceChange": boolString(in.ForceChange)}
		})
		return err
	}

	deps.MetricInc(deps.Metrics.PasswordChangeSuccess)
	deps.Track(ctx, deps.Events.PasswordChangeSuccess, true, in.Platform.Name, "", nil, func() map[string]string {
		return map[string]string{"forceChange": boolString(in.ForceChange)}
	})
	return nil
}

func submitPassword(ctx context.Context, in ChangePasswordInput, deps ChangePasswordDeps) error {
	fields := []transport.Field{
		{Name: "login", Value: in.Login},
		{Name: "oldPassword", Value: in.OldPassword},
		{Name: "password", Value: in.NewPassword},
		{Name: "confirmPassword", Value: in.ConfirmPassword},
		{Name: "callback", Value: ""},
	}
	if in.ResetCode != "" {
		fields = append(fields, transport.Field{Name: "resetCode", Value: in.ResetCode})
	}
	if in.ForceChange {
		fields = append(fields, transport.Field{Name: "forceChange", Value: "force"})
	}

	resp, err := deps.PostForm(ctx, in.Platform, PathReset, fields)
	if err != nil {
		if regexErr := policyError(in, deps, err); regexErr != nil {
			return regexErr
		}
		if deps.IsChangePasswordError(err) {
			return err
		}
		return deps.ChangePasswordError(false, "password change request failed", err)
	}
	msg, failed := submissionFailure(resp)
	if !failed {
		return nil
	}
	if regexErr := policyError(in, deps, nil); regexErr != nil {
		return regexErr
	}
	return deps.ChangePasswordError(false, msg, nil)
}

func policyError(in ChangePasswordInput, deps ChangePasswordDeps, cause error) error {
	if !violatesPolicy(in.PasswordRegex, in.NewPassword) {
		return nil
	}
	deps.MetricInc(deps.Metrics.PasswordChangeRegex)
	return deps.ChangePasswordError(true, "new password does not match the platform password policy", cause)
}

// violatesPolicy reports a definite mismatch. Platforms write policies for a
// JavaScript engine (lookaheads are common), so they are evaluated with ECMAScript
// semantics. A pattern that does not compile, or a match that times out, is not a
// mismatch.
func violatesPolicy(pattern, password string) bool {
	if pattern == "" {
		return false
	}
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return false
	}
	re.MatchTimeout = policyMatchTimeout
	ok, err := re.MatchString(password)
	if err != nil {
		return false
	}
	return !ok
}
