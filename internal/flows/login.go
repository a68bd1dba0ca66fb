package flows

import (
	"context"
	"errors"
	"time"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
	"golang.org/x/oauth2"
)

// Actions produced by a login besides the partial session scenarios.
const (
	ActionActivate      = "activate"
	ActionRenewPassword = "renew-password"
)

var errNothingToRestore = errors.New("no stored token")

// LoginInput is one login attempt. Without credentials the stored token is used.
type LoginInput struct {
	Platform        *platform.Platform
	WithCredentials bool
	Username        string
	Password        string
	RememberMe      bool
	ErrorTimestamp  time.Time
}

// LoginOutcome is the flow-local result of a login that needs a follow-up step.
// A nil outcome with a nil error means the caller proceeds to default navigation.
type LoginOutcome struct {
	Action  string
	Context *session.AuthContext
	Session *session.Session
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess          int
	LoginPartial          int
	LoginFailure          int
	LoginRestored         int
	LoginNothingToRestore int
	ActivationRedirect    int
	RenewRedirect         int
	DeviceRegisterFailure int
	TokenRefreshed        int
}

// LoginEvents carries tracking event names used by the login flow.
type LoginEvents struct {
	LoginSuccess  string
	LoginPartial  string
	LoginFailure  string
	LoginRedirect string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	PersistWAYF     bool
	FetchProfile    bool
	ProfileRequired bool

	Now          func() time.Time
	RequestToken func(context.Context, *platform.Platform, string, string) (*oauth2.Token, error)
	// LoadToken returns nil, nil when nothing is stored.
	LoadToken    func(context.Context) (*oauth2.Token, error)
	RefreshToken func(context.Context, *platform.Platform, *oauth2.Token) (*oauth2.Token, error)
	TokenExpired func(*oauth2.Token) bool
	TokenExpiry  func(*oauth2.Token) time.Time
	SaveToken    func(context.Context, *oauth2.Token) error
	ClearToken   func(context.Context) error

	GatherUser    func(context.Context, *platform.Platform, *oauth2.Token) (session.UserInfo, error)
	ValidateUser  func(session.UserInfo) error
	Resolve       func(session.UserInfo) session.Scenario
	EnrichProfile func(context.Context, *platform.Platform, *oauth2.Token, session.UserInfo) (session.UserInfo, error)
	LoadContext   func(context.Context, *platform.Platform) (*session.AuthContext, error)

	RegisterDevice func(context.Context, *platform.Platform, *oauth2.Token) error
	CachePlatform  func(context.Context, string) error
	CacheSession   func(context.Context, *session.Session) error
	ClearCookies   func() error
	HoldToken      func(*platform.Platform, *oauth2.Token)
	Dispatch       func(session.Transition)

	MatchActivation func(ctx context.Context, p *platform.Platform, login, code string) (bool, error)
	MatchReset      func(ctx context.Context, p *platform.Platform, login, code string) (bool, error)

	Classify         func(error) error
	IsBadCredentials func(error) bool
	ErrorKind        func(error) string

	MetricInc      func(int)
	ObserveLatency func(time.Duration)
	Track          TrackFunc
	Warn           func(string, ...any)

	Metrics        LoginMetrics
	Events         LoginEvents
	EngineNotReady error
}

// RunLogin executes the login sequence: connect, fetch identity, classify, enrich,
// register the device, persist, clear cookies and install the resulting state.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (*LoginOutcome, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(time.Duration) {}
	}
	if deps.Track == nil {
		deps.Track = noopTrack
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.Classify == nil {
		deps.Classify = func(err error) error { return err }
	}
	if deps.ErrorKind == nil {
		deps.ErrorKind = func(err error) string { return err.Error() }
	}
	if deps.IsBadCredentials == nil {
		deps.IsBadCredentials = func(error) bool { return false }
	}
	if deps.TokenExpired == nil {
		deps.TokenExpired = func(tok *oauth2.Token) bool { return !tok.Valid() }
	}
	if deps.TokenExpiry == nil {
		deps.TokenExpiry = func(tok *oauth2.Token) time.Time { return tok.Expiry }
	}
	if deps.HoldToken == nil {
		deps.HoldToken = func(*platform.Platform, *oauth2.Token) {}
	}
	if in.Platform == nil ||
		deps.RequestToken == nil ||
		deps.LoadToken == nil ||
		deps.GatherUser == nil ||
		deps.Resolve == nil ||
		deps.Dispatch == nil {
		return nil, deps.EngineNotReady
	}

	start := deps.Now()
	defer func() { deps.ObserveLatency(deps.Now().Sub(start)) }()

	outcome, err := runLoginSteps(ctx, in, deps)
	if err == nil {
		return outcome, nil
	}
	if errors.Is(err, errNothingToRestore) {
		deps.MetricInc(deps.Metrics.LoginNothingToRestore)
		return nil, nil
	}
	return recoverLogin(ctx, in, deps, deps.Classify(err))
}

func runLoginSteps(ctx context.Context, in LoginInput, deps LoginDeps) (*LoginOutcome, error) {
	p := in.Platform

	// 1. Establish connection.
	var tok *oauth2.Token
	var err error
	restored := false
	if in.WithCredentials {
		tok, err = deps.RequestToken(ctx, p, in.Username, in.Password)
		if err != nil {
			return nil, err
		}
	} else {
		tok, err = deps.LoadToken(ctx)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return nil, errNothingToRestore
		}
		restored = true
		if deps.TokenExpired(tok) && tok.RefreshToken != "" && deps.RefreshToken != nil {
			tok, err = deps.RefreshToken(ctx, p, tok)
			if err != nil {
				return nil, err
			}
			deps.MetricInc(deps.Metrics.TokenRefreshed)
		}
	}

	// 2. Fetch identity.
	user, err := deps.GatherUser(ctx, p, tok)
	if err != nil {
		return nil, err
	}
	if deps.ValidateUser != nil {
		if err := deps.ValidateUser(user); err != nil {
			return nil, err
		}
	}

	// 3. Classify.
	scenario := deps.Resolve(user)

	// 4. Enrich. Restricted accounts skip the profile until the blocking step is done.
	var authCtx *session.AuthContext
	if scenario == session.ScenarioNone {
		if deps.FetchProfile && deps.EnrichProfile != nil {
			enriched, err := deps.EnrichProfile(ctx, p, tok, user)
			switch {
			case err == nil:
				user = enriched
			case deps.ProfileRequired:
				return nil, err
			default:
				deps.Warn("profile enrichment failed", "platform", p.Name, "error", err)
			}
		}
	} else {
		authCtx = loadContext(ctx, p, deps)
	}

	sess := &session.Session{
		Platform:     p,
		User:         user,
		TokenPresent: true,
		ExpiresAt:    deps.TokenExpiry(tok),
		Scenario:     scenario,
	}

	// 5. Register device token. Failure never affects the outcome.
	registerDevice(ctx, p, tok, deps)

	// 6. Persist.
	persistSession(ctx, in, restored, sess, tok, deps)
	deps.HoldToken(p, tok)

	// 7. Clear stale cookies. Runs on both branches below.
	clearCookies(deps)

	// 8. Install state.
	if scenario != session.ScenarioNone {
		deps.Dispatch(session.Partial{Session: sess, Context: authCtx})
		deps.MetricInc(deps.Metrics.LoginPartial)
		deps.Track(ctx, deps.Events.LoginPartial, true, p.Name, user.ID, nil, func() map[string]string {
			return map[string]string{"scenario": string(scenario)}
		})
		return &LoginOutcome{Action: string(scenario), Context: authCtx, Session: sess}, nil
	}

	deps.Dispatch(session.Full{Session: sess})
	deps.MetricInc(deps.Metrics.LoginSuccess)
	if restored {
		deps.MetricInc(deps.Metrics.LoginRestored)
	}
	deps.Track(ctx, deps.Events.LoginSuccess, true, p.Name, user.ID, nil, func() map[string]string {
		return map[string]string{"restored": boolString(restored)}
	})
	return nil, nil
}

// recoverLogin handles a failed login. Bad credentials may be a pending activation or
// reset code typed in the password field; every other failure is recorded and returned.
func recoverLogin(ctx context.Context, in LoginInput, deps LoginDeps, err error) (*LoginOutcome, error) {
	p := in.Platform
	deps.HoldToken(p, nil)

	if in.WithCredentials && deps.IsBadCredentials(err) {
		outcome, secondary := matchPendingCode(ctx, in, deps, err)
		if secondary == nil {
			forgetSession(ctx, deps)
			deps.Dispatch(session.Redirected{
				Pending: session.Pending{
					Action:     outcome.Action,
					Platform:   p,
					Login:      in.Username,
					Password:   in.Password,
					RememberMe: in.RememberMe,
				},
				Context: outcome.Context,
			})
			if outcome.Action == ActionActivate {
				deps.MetricInc(deps.Metrics.ActivationRedirect)
			} else {
				deps.MetricInc(deps.Metrics.RenewRedirect)
			}
			deps.Track(ctx, deps.Events.LoginRedirect, true, p.Name, "", nil, func() map[string]string {
				return map[string]string{"action": outcome.Action}
			})
			return outcome, nil
		}
		err = deps.Classify(secondary)
	}

	deps.Dispatch(session.Failed{Kind: deps.ErrorKind(err), Timestamp: in.ErrorTimestamp})
	forgetSession(ctx, deps)
	deps.MetricInc(deps.Metrics.LoginFailure)
	deps.Track(ctx, deps.Events.LoginFailure, false, p.Name, "", err, func() map[string]string {
		return map[string]string{"kind": deps.ErrorKind(err)}
	})
	return nil, err
}

// matchPendingCode checks the credentials against pending activation then reset codes.
// When neither matches, original is returned as the secondary error.
func matchPendingCode(ctx context.Context, in LoginInput, deps LoginDeps, original error) (*LoginOutcome, error) {
	action := ""
	if deps.MatchActivation != nil {
		ok, err := deps.MatchActivation(ctx, in.Platform, in.Username, in.Password)
		if err != nil {
			return nil, err
		}
		if ok {
			action = ActionActivate
		}
	}
	if action == "" && deps.MatchReset != nil {
		ok, err := deps.MatchReset(ctx, in.Platform, in.Username, in.Password)
		if err != nil {
			return nil, err
		}
		if ok {
			action = ActionRenewPassword
		}
	}
	if action == "" {
		return nil, original
	}
	return &LoginOutcome{Action: action, Context: loadContext(ctx, in.Platform, deps)}, nil
}

func loadContext(ctx context.Context, p *platform.Platform, deps LoginDeps) *session.AuthContext {
	if deps.LoadContext == nil {
		return nil
	}
	authCtx, err := deps.LoadContext(ctx, p)
	if err != nil {
		deps.Warn("auth context unavailable", "platform", p.Name, "error", err)
		return nil
	}
	return authCtx
}

func registerDevice(ctx context.Context, p *platform.Platform, tok *oauth2.Token, deps LoginDeps) {
	if deps.RegisterDevice == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			deps.MetricInc(deps.Metrics.DeviceRegisterFailure)
			deps.Warn("device token registration panicked", "platform", p.Name, "panic", r)
		}
	}()
	if err := deps.RegisterDevice(ctx, p, tok); err != nil {
		deps.MetricInc(deps.Metrics.DeviceRegisterFailure)
		deps.Warn("device token registration failed", "platform", p.Name, "error", err)
	}
}

// persistSession always remembers the platform. The session and token are kept only
// for remembered logins, WAYF platforms and restores; otherwise any stored copy from
// an earlier login is removed.
func persistSession(ctx context.Context, in LoginInput, restored bool, sess *session.Session, tok *oauth2.Token, deps LoginDeps) {
	p := in.Platform
	if deps.CachePlatform != nil {
		if err := deps.CachePlatform(ctx, p.Name); err != nil {
			deps.Warn("cache platform failed", "platform", p.Name, "error", err)
		}
	}

	keep := restored || (in.WithCredentials && in.RememberMe) || (deps.PersistWAYF && p.WAYF)
	if !keep {
		forgetSession(ctx, deps)
		return
	}
	if deps.SaveToken != nil {
		if err := deps.SaveToken(ctx, tok); err != nil {
			deps.Warn("save token failed", "platform", p.Name, "error", err)
		}
	}
	if deps.CacheSession != nil {
		if err := deps.CacheSession(ctx, sess); err != nil {
			deps.Warn("cache session failed", "platform", p.Name, "error", err)
		}
	}
}

func forgetSession(ctx context.Context, deps LoginDeps) {
	if deps.ClearToken == nil {
		return
	}
	if err := deps.ClearToken(ctx); err != nil {
		deps.Warn("clear token failed", "error", err)
	}
}

func clearCookies(deps LoginDeps) {
	if deps.ClearCookies == nil {
		return
	}
	if err := deps.ClearCookies(); err != nil {
		deps.Warn("clear cookies failed", "error", err)
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
