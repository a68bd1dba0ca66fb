package auth

import (
	"context"
	"net/url"
	"time"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/internal/flows"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
	"golang.org/x/oauth2"
)

// AuthContext is the login context a platform publishes.
type AuthContext = session.AuthContext

// Credentials are held only for the duration of one login attempt. Activation and
// renewal codes travel in the Password slot.
type Credentials struct {
	Username string
	Password string
}

// LoginOptions tune one login attempt.
type LoginOptions struct {
	RememberMe bool
	// ErrorTimestamp is recorded with any failure so a screen shows it once.
	ErrorTimestamp time.Time
}

// Action is the follow-up step a LoginResult asks for.
type Action string

const (
	ActionActivate            Action = flows.ActionActivate
	ActionRenewPassword       Action = flows.ActionRenewPassword
	ActionMustChangePassword  Action = Action(session.MustChangePassword)
	ActionMustRevalidateTerms Action = Action(session.MustRevalidateTerms)
	ActionMustVerifyMobile    Action = Action(session.MustVerifyMobile)
	ActionMustVerifyEmail     Action = Action(session.MustVerifyEmail)
)

// Scenario returns the partial session scenario carried by a, if any.
func (a Action) Scenario() (session.Scenario, bool) {
	s := session.Scenario(a)
	if s == session.ScenarioNone || !s.Valid() {
		return session.ScenarioNone, false
	}
	return s, true
}

// LoginResult is returned when a login cannot complete normally. A nil result means
// the caller proceeds to default post-login navigation.
type LoginResult struct {
	Action      Action
	Platform    *platform.Platform
	Context     *AuthContext
	Credentials Credentials
	RememberMe  bool
}

// ForgotMode selects what the user forgot.
type ForgotMode string

const (
	ForgotID       ForgotMode = flows.ForgotModeID
	ForgotPassword ForgotMode = flows.ForgotModePassword
)

// ForgotResult is the platform answer to a forgot request.
type ForgotResult struct {
	OK     bool
	Status int
	Body   map[string]any
}

// TokenStore persists the bearer credential.
type TokenStore interface {
	Save(ctx context.Context, tok *oauth2.Token) error
	Load(ctx context.Context) (*oauth2.Token, error)
	Clear(ctx context.Context) error
}

// SessionCache remembers the last platform and the last session.
type SessionCache interface {
	CachePlatform(ctx context.Context, name string) error
	LoadPlatform(ctx context.Context) (string, error)
	CacheSession(ctx context.Context, sess *session.Session) error
}

// Transport is the subset of *transport.Client the Engine needs.
type Transport interface {
	PasswordToken(ctx context.Context, p *platform.Platform, username, password string) (*oauth2.Token, error)
	Refresh(ctx context.Context, p *platform.Platform, tok *oauth2.Token) (*oauth2.Token, error)
	GetJSON(ctx context.Context, p *platform.Platform, tok *oauth2.Token, path string, query url.Values, out any) error
	PostJSON(ctx context.Context, p *platform.Platform, tok *oauth2.Token, path string, body any) (*transport.Response, error)
	PostForm(ctx context.Context, p *platform.Platform, tok *oauth2.Token, path string, fields []transport.Field) (*transport.Response, error)
	ClearCookies() error
}
