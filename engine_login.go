package auth

import (
	"context"
	"errors"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/internal/flows"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/tokenstore"
)

// Login signs in to p. With creds nil the stored token is used, and a missing token
// returns nil, nil without touching state.
//
// A nil result with a nil error means a full session is installed. A non-nil result
// asks for a follow-up step: a partial session scenario, or an activation or renewal
// redirect when the password was a pending one-time code. Failures are recorded in
// state with opts.ErrorTimestamp and returned as a TaggedError.
func (e *Engine) Login(ctx context.Context, p *platform.Platform, creds *Credentials, opts LoginOptions) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	in := flows.LoginInput{
		Platform:       p,
		RememberMe:     opts.RememberMe,
		ErrorTimestamp: opts.ErrorTimestamp,
	}
	if creds != nil {
		in.WithCredentials = true
		in.Username = creds.Username
		in.Password = creds.Password
	}

	outcome, err := flows.RunLogin(ctx, in, e.flows.Login)
	if err != nil {
		return nil, err
	}
	return loginResult(p, outcome, creds, opts), nil
}

// Restore logs in to the last used platform with the stored token. It returns
// nil, nil when there is nothing to restore.
func (e *Engine) Restore(ctx context.Context) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	name, err := e.cache.LoadPlatform(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := e.platforms.Get(name)
	if err != nil {
		e.logger.WarnContext(ctx, "cached platform no longer configured", "platform", name, "error", err)
		return nil, nil
	}
	return e.Login(ctx, p, nil, LoginOptions{})
}

// Logout ends the session. Every step runs even when an earlier one fails; the
// first token store error is returned.
func (e *Engine) Logout(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	p, tok := e.held()
	if e.devices != nil && p != nil && tok != nil {
		if err := e.devices.Unregister(ctx, p, tok); err != nil {
			e.logger.WarnContext(ctx, "device token unregistration failed", "platform", p.Name, "error", err)
		}
	}
	e.hold(nil, nil)

	clearErr := e.tokens.Clear(ctx)
	if clearErr != nil {
		e.logger.WarnContext(ctx, "clear token failed", "error", clearErr)
	}
	if err := e.transport.ClearCookies(); err != nil {
		e.logger.WarnContext(ctx, "clear cookies failed", "error", err)
	}

	prev := e.store.Get()
	e.store.Dispatch(session.LoggedOut{})
	e.metricInc(MetricLogout)

	userID := ""
	if prev.Session != nil {
		userID = prev.Session.User.ID
	}
	e.track(ctx, CategoryAuth, EventLogout, true, prev.Platform, userID, nil, nil)
	return clearErr
}

// RefreshSession fetches the account again with the held token and replaces the
// session. It is used once a blocking step is done, so the new scenario (often
// none) takes effect. Failures leave state unchanged.
func (e *Engine) RefreshSession(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	p, tok := e.held()
	if p == nil || tok == nil {
		return ErrNoActiveSession
	}

	user, err := e.gatherUser(ctx, p, tok)
	if err != nil {
		return classifyError(err)
	}
	if err := ensureUserValidity(user); err != nil {
		return err
	}

	scenario := ResolvePartialSession(user)
	if scenario == session.ScenarioNone && e.config.Enrichment.FetchProfile {
		enriched, err := e.enrichProfile(ctx, p, tok, user)
		switch {
		case err == nil:
			user = enriched
		case e.config.Enrichment.ProfileRequired:
			return classifyError(err)
		default:
			e.logger.WarnContext(ctx, "profile enrichment failed", "platform", p.Name, "error", err)
		}
	}

	sess := &session.Session{
		Platform:     p,
		User:         user,
		TokenPresent: true,
		ExpiresAt:    e.tokenExpiry(tok),
		Scenario:     scenario,
	}
	if scenario == session.ScenarioNone {
		e.store.Dispatch(session.Full{Session: sess})
	} else {
		e.store.Dispatch(session.Partial{Session: sess})
	}
	e.metricInc(MetricSessionRefreshed)
	return nil
}

// LoadContext fetches the public login context of p and stores it in state.
func (e *Engine) LoadContext(ctx context.Context, p *platform.Platform) (*AuthContext, error) {
	if e == nil || p == nil {
		return nil, ErrEngineNotReady
	}
	c, err := e.loadAuthContext(ctx, p)
	if err != nil {
		return nil, classifyError(err)
	}
	e.store.Dispatch(session.ContextLoaded{Context: c})
	return c, nil
}

func loginResult(p *platform.Platform, outcome *flows.LoginOutcome, creds *Credentials, opts LoginOptions) *LoginResult {
	if outcome == nil {
		return nil
	}
	res := &LoginResult{
		Action:     Action(outcome.Action),
		Platform:   p,
		Context:    outcome.Context,
		RememberMe: opts.RememberMe,
	}
	if creds != nil {
		res.Credentials = *creds
	}
	return res
}
