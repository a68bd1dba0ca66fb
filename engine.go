package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/internal/flows"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/jwt"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/tokenstore"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
	"golang.org/x/oauth2"
)

// Engine drives the authentication lifecycle against the configured platforms and
// publishes the resulting state through its session.Store.
//
// Methods run their steps on the caller's goroutine. Concurrent logins are not
// serialized: the last state written wins.
type Engine struct {
	config    Config
	platforms *platform.Registry
	transport Transport
	tokens    TokenStore
	cache     SessionCache
	store     *session.Store
	inspector *jwt.Inspector
	devices   DeviceRegistrar
	tracking  *trackingDispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	flows     flows.Deps

	mu      sync.Mutex
	heldP   *platform.Platform
	heldTok *oauth2.Token
}

// Close flushes pending tracking events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.tracking != nil {
		e.tracking.Close()
	}
}

// TrackingDropped returns the number of tracking events dropped on a full buffer.
func (e *Engine) TrackingDropped() uint64 {
	if e == nil || e.tracking == nil {
		return 0
	}
	return e.tracking.Dropped()
}

// MetricsSnapshot returns the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// State returns a copy of the current authentication state.
func (e *Engine) State() session.AuthState {
	return e.store.Get()
}

// Subscribe registers fn for every state change and returns its cancel func.
func (e *Engine) Subscribe(fn func(session.AuthState)) func() {
	return e.store.Subscribe(fn)
}

// TakePending consumes the pending redirection left by the last login, if any.
func (e *Engine) TakePending() *session.Pending {
	return e.store.TakePending()
}

// Platforms returns the registry the Engine was built with.
func (e *Engine) Platforms() *platform.Registry {
	return e.platforms
}

// Token returns a copy of the bearer token of the active session.
func (e *Engine) Token() (*oauth2.Token, bool) {
	_, tok := e.held()
	if tok == nil {
		return nil, false
	}
	copied := *tok
	return &copied, true
}

func (e *Engine) hold(p *platform.Platform, tok *oauth2.Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tok == nil {
		e.heldP, e.heldTok = nil, nil
		return
	}
	e.heldP, e.heldTok = p, tok
}

func (e *Engine) held() (*platform.Platform, *oauth2.Token) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heldP, e.heldTok
}

// tokenFor returns the held token when it belongs to p.
func (e *Engine) tokenFor(p *platform.Platform) *oauth2.Token {
	hp, tok := e.held()
	if hp == nil || p == nil || hp.Name != p.Name {
		return nil
	}
	return tok
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) track(
	ctx context.Context,
	category string,
	action string,
	success bool,
	platformName string,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.tracking == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := TrackingEvent{
		ID:        uuid.NewString(),
		Timestamp: e.now().UTC(),
		Category:  category,
		Action:    action,
		Platform:  platformName,
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = ErrorKind(err)
	}

	e.tracking.Emit(ctx, event)
}

func (e *Engine) trackFunc(category string) flows.TrackFunc {
	return func(ctx context.Context, event string, success bool, platformName, userID string, err error, metadata func() map[string]string) {
		e.track(ctx, category, event, success, platformName, userID, err, metadata)
	}
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}

func (e *Engine) getJSON(p *platform.Platform, tok *oauth2.Token) flows.GetJSONFunc {
	return func(ctx context.Context, path string, query url.Values, out any) error {
		return e.transport.GetJSON(ctx, p, tok, path, query, out)
	}
}

func (e *Engine) postForm(ctx context.Context, p *platform.Platform, path string, fields []transport.Field) (*transport.Response, error) {
	return e.transport.PostForm(ctx, p, e.tokenFor(p), path, fields)
}

func (e *Engine) postJSON(ctx context.Context, p *platform.Platform, path string, body any) (*transport.Response, error) {
	return e.transport.PostJSON(ctx, p, nil, path, body)
}

// loadToken returns nil, nil when nothing usable is stored. A corrupt entry is removed.
func (e *Engine) loadToken(ctx context.Context) (*oauth2.Token, error) {
	tok, err := e.tokens.Load(ctx)
	switch {
	case err == nil:
		return tok, nil
	case errors.Is(err, tokenstore.ErrNotFound):
		return nil, nil
	case errors.Is(err, tokenstore.ErrCorrupt):
		e.warn("stored token unreadable, discarding", "error", err)
		if err := e.tokens.Clear(ctx); err != nil {
			e.warn("clear token failed", "error", err)
		}
		return nil, nil
	}
	return nil, err
}

// tokenExpiry prefers the expiry from the grant, then the JWT exp claim.
func (e *Engine) tokenExpiry(tok *oauth2.Token) time.Time {
	if tok == nil {
		return time.Time{}
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return e.inspector.ExpiresAt(tok.AccessToken)
}

// tokenExpired reports whether tok expires within the refresh leeway. Tokens with
// no known expiry are treated as valid.
func (e *Engine) tokenExpired(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" {
		return true
	}
	exp := e.tokenExpiry(tok)
	if exp.IsZero() {
		return false
	}
	return !e.now().Add(e.config.Tokens.RefreshLeeway).Before(exp)
}

func (e *Engine) gatherUser(ctx context.Context, p *platform.Platform, tok *oauth2.Token) (session.UserInfo, error) {
	return flows.GatherUserInfo(ctx, flows.UserInfoDeps{
		GetJSON:           e.getJSON(p, tok),
		UserInfoError:     gatherError(UserInfoFail),
		RequirementsError: gatherError(UserRequirementsFail),
	})
}

func (e *Engine) enrichProfile(ctx context.Context, p *platform.Platform, tok *oauth2.Token, u session.UserInfo) (session.UserInfo, error) {
	return flows.EnrichProfile(ctx, e.getJSON(p, tok), u)
}

// The login context is public: it is read before any credentials exist.
func (e *Engine) loadAuthContext(ctx context.Context, p *platform.Platform) (*session.AuthContext, error) {
	return flows.LoadAuthContext(ctx, e.getJSON(p, nil))
}

func (e *Engine) buildFlowDeps() flows.Deps {
	metricInc := func(id int) { e.metricInc(MetricID(id)) }

	var registerDevice func(context.Context, *platform.Platform, *oauth2.Token) error
	if e.devices != nil {
		registerDevice = e.devices.Register
	}

	return flows.Deps{
		Login: flows.LoginDeps{
			PersistWAYF:     e.config.Persistence.PersistWAYF,
			FetchProfile:    e.config.Enrichment.FetchProfile,
			ProfileRequired: e.config.Enrichment.ProfileRequired,

			Now:          e.now,
			RequestToken: e.transport.PasswordToken,
			LoadToken:    e.loadToken,
			RefreshToken: e.transport.Refresh,
			TokenExpired: e.tokenExpired,
			TokenExpiry:  e.tokenExpiry,
			SaveToken:    e.tokens.Save,
			ClearToken:   e.tokens.Clear,

			GatherUser:    e.gatherUser,
			ValidateUser:  ensureUserValidity,
			Resolve:       ResolvePartialSession,
			EnrichProfile: e.enrichProfile,
			LoadContext:   e.loadAuthContext,

			RegisterDevice: registerDevice,
			CachePlatform:  e.cache.CachePlatform,
			CacheSession:   e.cache.CacheSession,
			ClearCookies:   e.transport.ClearCookies,
			HoldToken:      e.hold,
			Dispatch:       func(t session.Transition) { e.store.Dispatch(t) },

			MatchActivation: func(ctx context.Context, p *platform.Platform, login, code string) (bool, error) {
				return flows.MatchCode(ctx, e.postForm, p, flows.PathActivationMatch, login, code)
			},
			MatchReset: func(ctx context.Context, p *platform.Platform, login, code string) (bool, error) {
				return flows.MatchCode(ctx, e.postForm, p, flows.PathResetMatch, login, code)
			},

			Classify:         classifyError,
			IsBadCredentials: func(err error) bool { return errors.Is(err, ErrBadCredentials) },
			ErrorKind:        ErrorKind,

			MetricInc:      metricInc,
			ObserveLatency: func(d time.Duration) { e.metrics.Observe(MetricLoginLatency, d) },
			Track:          e.trackFunc(CategoryAuth),
			Warn:           e.warn,

			Metrics: flows.LoginMetrics{
				LoginSuccess:          int(MetricLoginSuccess),
				LoginPartial:          int(MetricLoginPartial),
				LoginFailure:          int(MetricLoginFailure),
				LoginRestored:         int(MetricLoginRestored),
				LoginNothingToRestore: int(MetricLoginNothingToRestore),
				ActivationRedirect:    int(MetricActivationRedirect),
				RenewRedirect:         int(MetricRenewRedirect),
				DeviceRegisterFailure: int(MetricDeviceRegisterFailure),
				TokenRefreshed:        int(MetricTokenRefreshed),
			},
			Events: flows.LoginEvents{
				LoginSuccess:  EventLoginSuccess,
				LoginPartial:  EventLoginPartial,
				LoginFailure:  EventLoginFailure,
				LoginRedirect: EventLoginRedirect,
			},
			EngineNotReady: ErrEngineNotReady,
		},
		Activate: flows.ActivateDeps{
			PostForm:          e.postForm,
			IsActivationError: isActivationError,
			ActivationError:   newActivationError,
			MetricInc:         metricInc,
			Track:             e.trackFunc(CategoryAccount),
			Metrics: flows.ActivateMetrics{
				ActivationSuccess: int(MetricActivationSuccess),
				ActivationFailure: int(MetricActivationFailure),
			},
			Events: flows.ActivateEvents{
				ActivationSuccess: EventActivationSuccess,
				ActivationFailure: EventActivationFailure,
			},
			EngineNotReady: ErrEngineNotReady,
		},
		ChangePassword: flows.ChangePasswordDeps{
			PostForm:              e.postForm,
			IsChangePasswordError: isChangePasswordError,
			ChangePasswordError:   newChangePasswordError,
			MetricInc:             metricInc,
			Track:                 e.trackFunc(CategoryAccount),
			Metrics: flows.ChangePasswordMetrics{
				PasswordChangeSuccess: int(MetricPasswordChangeSuccess),
				PasswordChangeFailure: int(MetricPasswordChangeFailure),
				PasswordChangeRegex:   int(MetricPasswordChangeRegex),
			},
			Events: flows.ChangePasswordEvents{
				PasswordChangeSuccess: EventPasswordChangeSuccess,
				PasswordChangeFailure: EventPasswordChangeFailure,
			},
			EngineNotReady: ErrEngineNotReady,
		},
		Forgot: flows.ForgotDeps{
			PostJSON:       e.postJSON,
			MetricInc:      metricInc,
			Track:          e.trackFunc(CategoryAccount),
			SuccessMetric:  int(MetricForgotSuccess),
			FailureMetric:  int(MetricForgotFailure),
			Event:          EventForgot,
			EngineNotReady: ErrEngineNotReady,
			InvalidMode:    ErrInvalidForgotMode,
		},
	}
}
