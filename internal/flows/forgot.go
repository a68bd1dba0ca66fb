package flows

import (
	"context"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
)

// Forgot endpoints.
const (
	PathForgotID       = "auth/forgot-id"
	PathForgotPassword = "auth/forgot-password"
)

// Forgot modes.
const (
	ForgotModeID       = "id"
	ForgotModePassword = "password"
)

// ForgotInput is one forgotten login or password request.
type ForgotInput struct {
	Platform    *platform.Platform
	Mode        string
	Login       string
	Mail        string
	FirstName   string
	StructureID string
}

// ForgotOutcome is the decoded response body and whether the status was 2xx.
type ForgotOutcome struct {
	OK     bool
	Status int
	Body   map[string]any
}

// ForgotDeps captures forgot dependencies.
type ForgotDeps struct {
	PostJSON func(ctx context.Context, p *platform.Platform, path string, body any) (*transport.Response, error)

	MetricInc func(int)
	Track     TrackFunc

	SuccessMetric  int
	FailureMetric  int
	Event          string
	EngineNotReady error
	InvalidMode    error
}

// RunForgot posts the request. Transport failures are returned as errors; a non-2xx
// status is reported through OK.
func RunForgot(ctx context.Context, in ForgotInput, deps ForgotDeps) (ForgotOutcome, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Track == nil {
		deps.Track = noopTrack
	}
	if in.Platform == nil || deps.PostJSON == nil {
		return ForgotOutcome{}, deps.EngineNotReady
	}

	var path string
	body := map[string]string{"service": "mail"}
	switch in.Mode {
	case ForgotModeID:
		path = PathForgotID
		body["mail"] = in.Mail
		if in.FirstName != "" {
			body["firstName"] = in.FirstName
		}
		if in.StructureID != "" {
			body["structureId"] = in.StructureID
		}
	case ForgotModePassword:
		path = PathForgotPassword
		body["login"] = in.Login
	default:
		return ForgotOutcome{}, deps.InvalidMode
	}

	resp, err := deps.PostJSON(ctx, in.Platform, path, body)
	if err != nil {
		deps.MetricInc(deps.FailureMetric)
		deps.Track(ctx, deps.Event, false, in.Platform.Name, "", err, nil)
		return ForgotOutcome{}, err
	}

	out := ForgotOutcome{OK: resp.OK(), Status: resp.Status}
	if resp.IsJSON() {
		var decoded map[string]any
		if err := resp.Decode(&decoded); err == nil {
			out.Body = decoded
		}
	}
	if out.OK {
		deps.MetricInc(deps.SuccessMetric)
	} else {
		deps.MetricInc(deps.FailureMetric)
	}
	deps.Track(ctx, deps.Event, out.OK, in.Platform.Name, "", nil, func() map[string]string {
		return map[string]string{"mode": in.Mode}
	})
	return out, nil
}
