package flows

import (
	"context"
	"errors"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
)

// Activation endpoints.
const (
	PathActivation      = "auth/activation"
	PathActivationMatch = "auth/activation/match"
	PathResetMatch      = "auth/reset/match"
)

// ActivateInput is a validated activation submission.
type ActivateInput struct {
	Platform        *platform.Platform
	Theme           string
	ActivationCode  string
	Login           string
	Password        string
	ConfirmPassword string
	Mail            string
	Phone           string
	AcceptCGU       bool
}

// ActivateMetrics carries metric IDs needed by the activation flow.
type ActivateMetrics struct {
	ActivationSuccess int
	ActivationFailure int
}

// ActivateEvents carries tracking event names used by the activation flow.
type ActivateEvents struct {
	ActivationSuccess string
	ActivationFailure string
}

// ActivateDeps captures activation dependencies.
type ActivateDeps struct {
	PostForm PostFormFunc
	// Login completes the sign-in with the activated credentials.
	Login func(context.Context, ActivateInput) (*LoginOutcome, error)

	IsActivationError func(error) bool
	ActivationError   func(message string, cause error) error

	MetricInc func(int)
	Track     TrackFunc

	Metrics        ActivateMetrics
	Events         ActivateEvents
	EngineNotReady error
}

// RunActivate submits the activation form and, once accepted, logs in with the new
// credentials. Submission failures are returned as activation errors; errors from the
// login step are returned unchanged.
func RunActivate(ctx context.Context, in ActivateInput, deps ActivateDeps) (*LoginOutcome, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Track == nil {
		deps.Track = noopTrack
	}
	if deps.IsActivationError == nil {
		deps.IsActivationError = func(error) bool { return false }
	}
	if in.Platform == nil || deps.PostForm == nil || deps.Login == nil || deps.ActivationError == nil {
		return nil, deps.EngineNotReady
	}

	if err := submitActivation(ctx, in, deps); err != nil {
		deps.MetricInc(deps.Metrics.ActivationFailure)
		deps.Track(ctx, deps.Events.ActivationFailure, false, in.Platform.Name, "", err, nil)
		return nil, err
	}

	outcome, err := deps.Login(ctx, in)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.ActivationSuccess)
	deps.Track(ctx, deps.Events.ActivationSuccess, true, in.Platform.Name, "", nil, func() map[string]string {
		return map[string]string{"theme": in.Theme}
	})
	return outcome, nil
}

func submitActivation(ctx context.Context, in ActivateInput, deps ActivateDeps) error {
	fields := []transport.Field{
		{Name: "theme", Value: in.Theme},
		{Name: "login", Value: in.Login},
		{Name: "password", Value: in.Password},
		{Name: "confirmPassword", Value: in.ConfirmPassword},
		{Name: "activationCode", Value: in.ActivationCode},
		{Name: "acceptCGU", Value: boolString(in.AcceptCGU)},
	}
	if in.Mail != "" {
		fields = append(fields, transport.Field{Name: "mail", Value: in.Mail})
	}
	if in.Phone != "" {
		fields = append(fields, transport.Field{Name: "phone", Value: in.Phone})
	}

	resp, err := deps.PostForm(ctx, in.Platform, PathActivation, fields)
	if err != nil {
		if deps.IsActivationError(err) {
			return err
		}
		return deps.ActivationError("activation request failed", err)
	}
	if msg, failed := submissionFailure(resp); failed {
		return deps.ActivationError(msg, nil)
	}
	return nil
}

// MatchCode asks the platform whether code is a pending one-time code for login.
// path is PathActivationMatch or PathResetMatch.
func MatchCode(ctx context.Context, post PostFormFunc, p *platform.Platform, path, login, code string) (bool, error) {
	field := "activationCode"
	if path == PathResetMatch {
		field = "resetCode"
	}
	resp, err := post(ctx, p, path, []transport.Field{
		{Name: "login", Value: login},
		{Name: field, Value: code},
	})
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, nil
	}
	var body struct {
		Match bool `json:"match"`
	}
	if err := resp.Decode(&body); err != nil {
		return false, errors.New("invalid match response")
	}
	return body.Match, nil
}
