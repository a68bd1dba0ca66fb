// Package navigation projects login results onto declarative navigation actions for
// the UI router.
//
// # Architecture boundaries
//
// [Project] is pure: it reads its input and returns a value. It never inspects the
// current navigation stack, so it is safe to call on a rehydrated state after a cold
// start. Routes are addressed by name only.
package navigation

import (
	auth "github.com/opendigitaleducation/edifice-mobile-framework-sub000"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
)

// Kind is how an action changes the navigation stack.
type Kind string

const (
	// Push appends a route; the user can go back.
	Push Kind = "push"
	// Reset replaces the whole stack with one route, so a mandatory step cannot be
	// skipped by going back.
	Reset Kind = "reset"
)

// Route names.
const (
	RouteActivation       = "Activation"
	RouteChangePassword   = "ChangePassword"
	RouteRevalidateTerms  = "RevalidateTerms"
	RouteMobileValidation = "MobileValidation"
	RouteMailValidation   = "MailValidation"
)

// Params are the route parameters. Only the fields a route needs are set.
type Params struct {
	Platform    *platform.Platform
	Context     *session.AuthContext
	Credentials auth.Credentials
	RememberMe  bool
	ForceChange bool
	// ResetCode is the one-time code of a password renewal.
	ResetCode     string
	DefaultMobile string
	DefaultEmail  string
}

// NavAction is one navigation instruction.
type NavAction struct {
	Kind   Kind
	Route  string
	Params Params
}

// Input is what Project reads: the login result and, for verification steps, the
// installed session.
type Input struct {
	Result  *auth.LoginResult
	Session *session.Session
	// PhoneRegion reads mobile numbers stored without a country code. Empty means
	// auth.DefaultPhoneRegion.
	PhoneRegion string
}

// FromPending rebuilds a login result from a pending redirection kept in state.
func FromPending(p *session.Pending, c *session.AuthContext) *auth.LoginResult {
	if p == nil {
		return nil
	}
	return &auth.LoginResult{
		Action:      auth.Action(p.Action),
		Platform:    p.Platform,
		Context:     c,
		Credentials: auth.Credentials{Username: p.Login, Password: p.Password},
		RememberMe:  p.RememberMe,
	}
}

// Project maps in to a navigation action, or nil when the caller should use its
// default post-login route.
func Project(in Input) *NavAction {
	r := in.Result
	if r == nil {
		return nil
	}
	base := Params{
		Platform:    r.Platform,
		Context:     r.Context,
		Credentials: r.Credentials,
		RememberMe:  r.RememberMe,
	}

	switch r.Action {
	case auth.ActionActivate:
		return &NavAction{Kind: Push, Route: RouteActivation, Params: base}
	case auth.ActionRenewPassword:
		base.ResetCode = r.Credentials.Password
		return &NavAction{Kind: Push, Route: RouteChangePassword, Params: base}
	case auth.ActionMustRevalidateTerms:
		return &NavAction{Kind: Reset, Route: RouteRevalidateTerms, Params: base}
	case auth.ActionMustChangePassword:
		base.ForceChange = true
		return &NavAction{Kind: Reset, Route: RouteChangePassword, Params: base}
	case auth.ActionMustVerifyMobile:
		if in.Session != nil {
			base.DefaultMobile = prefillMobile(in.Session.User.Mobile, in.PhoneRegion)
		}
		return &NavAction{Kind: Reset, Route: RouteMobileValidation, Params: base}
	case auth.ActionMustVerifyEmail:
		if in.Session != nil {
			base.DefaultEmail = in.Session.User.Email
		}
		return &NavAction{Kind: Reset, Route: RouteMailValidation, Params: base}
	}
	return nil
}

// prefillMobile shows the number in E.164 when it parses, as typed otherwise.
func prefillMobile(raw, region string) string {
	if raw == "" {
		return ""
	}
	if n, err := auth.NormalizePhone(raw, region); err == nil {
		return n
	}
	return raw
}
