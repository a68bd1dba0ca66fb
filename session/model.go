package session

import (
	"time"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
)

// Scenario classifies an authenticated account that still has a blocking step to
// complete. The zero value means the account is fully usable.
type Scenario string

const (
	// ScenarioNone marks a fully usable account.
	ScenarioNone Scenario = ""
	// MustChangePassword requires a new password before any other access.
	MustChangePassword Scenario = "MUST_CHANGE_PASSWORD"
	// MustRevalidateTerms requires accepting the current terms of use.
	MustRevalidateTerms Scenario = "MUST_REVALIDATE_TERMS"
	// MustVerifyMobile requires confirming the account mobile number.
	MustVerifyMobile Scenario = "MUST_VERIFY_MOBILE"
	// MustVerifyEmail requires confirming the account e-mail address.
	MustVerifyEmail Scenario = "MUST_VERIFY_EMAIL"
)

// Valid reports whether s is one of the known scenarios, including ScenarioNone.
func (s Scenario) Valid() bool {
	switch s {
	case ScenarioNone, MustChangePassword, MustRevalidateTerms, MustVerifyMobile, MustVerifyEmail:
		return true
	}
	return false
}

// UserType is the profile type of an account.
type UserType string

const (
	UserTypeStudent   UserType = "Student"
	UserTypeRelative  UserType = "Relative"
	UserTypeTeacher   UserType = "Teacher"
	UserTypePersonnel UserType = "Personnel"
	UserTypeGuest     UserType = "Guest"
)

// Structure is a school or organisation the account belongs to.
type Structure struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserInfo is a normalized account snapshot. Each fetch yields a new value.
type UserInfo struct {
	ID          string      `json:"id"`
	Login       string      `json:"login"`
	DisplayName string      `json:"displayName"`
	FirstName   string      `json:"firstName,omitempty"`
	LastName    string      `json:"lastName,omitempty"`
	Type        UserType    `json:"type,omitempty"`
	Structures  []Structure `json:"structures,omitempty"`
	Groups      []string    `json:"groups,omitempty"`
	Mobile      string      `json:"mobile,omitempty"`
	Email       string      `json:"email,omitempty"`

	HasPassword           bool `json:"hasPassword"`
	MustChangePassword    bool `json:"mustChangePassword"`
	NeedsRevalidateTerms  bool `json:"needsRevalidateTerms"`
	NeedsRevalidateMobile bool `json:"needsRevalidateMobile"`
	NeedsRevalidateEmail  bool `json:"needsRevalidateEmail"`
	MobileValidated       bool `json:"mobileValidated"`
	EmailValidated        bool `json:"emailValidated"`

	// Public profile, filled only for fully usable accounts.
	Avatar    string   `json:"avatar,omitempty"`
	Birthdate string   `json:"birthdate,omitempty"`
	Mood      string   `json:"mood,omitempty"`
	Motto     string   `json:"motto,omitempty"`
	Hobbies   []string `json:"hobbies,omitempty"`
}

// Clone returns a deep copy of u.
func (u UserInfo) Clone() UserInfo {
	out := u
	if u.Structures != nil {
		out.Structures = append([]Structure(nil), u.Structures...)
	}
	if u.Groups != nil {
		out.Groups = append([]string(nil), u.Groups...)
	}
	if u.Hobbies != nil {
		out.Hobbies = append([]string(nil), u.Hobbies...)
	}
	return out
}

// Session is the authenticated record held in application state.
type Session struct {
	Platform     *platform.Platform
	User         UserInfo
	TokenPresent bool
	ExpiresAt    time.Time
	Scenario     Scenario
}

// Partial reports whether the session still has a blocking step to resolve.
func (s *Session) Partial() bool {
	return s != nil && s.Scenario != ScenarioNone
}

// Clone returns a deep copy of s. The platform pointer is shared.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.User = s.User.Clone()
	return &out
}

// Mandatory lists the fields a platform requires at activation time.
type Mandatory struct {
	Mail  bool `json:"mail"`
	Phone bool `json:"phone"`
}

// AuthContext is the login context a platform publishes (terms, password policy).
type AuthContext struct {
	CGU               bool              `json:"cgu"`
	PasswordRegex     string            `json:"passwordRegex"`
	PasswordRegexI18n map[string]string `json:"passwordRegexI18n,omitempty"`
	Mandatory         Mandatory         `json:"mandatory"`
}

// Clone returns a deep copy of c.
func (c *AuthContext) Clone() *AuthContext {
	if c == nil {
		return nil
	}
	out := *c
	if c.PasswordRegexI18n != nil {
		out.PasswordRegexI18n = make(map[string]string, len(c.PasswordRegexI18n))
		for k, v := range c.PasswordRegexI18n {
			out.PasswordRegexI18n[k] = v
		}
	}
	return &out
}

// RecordedError is the last login failure. Timestamp is whatever the caller supplied,
// zero for automatic logins; screens compare it to their own render time.
type RecordedError struct {
	Kind      string
	Timestamp time.Time
}

// ShownAt reports whether a screen rendered at ts should display this error.
func (e *RecordedError) ShownAt(ts time.Time) bool {
	return e != nil && !e.Timestamp.IsZero() && e.Timestamp.Equal(ts)
}

// Pending is a one-shot redirection produced when a login could not complete.
// Login and Password carry the credentials; for activation and renewal the password
// slot holds the one-time code.
type Pending struct {
	Action     string
	Platform   *platform.Platform
	Login      string
	Password   string
	RememberMe bool
}

// AuthState is everything the application knows about authentication at one instant.
type AuthState struct {
	Session  *Session
	Error    *RecordedError
	Context  *AuthContext
	Pending  *Pending
	Platform string
}

// LoggedIn reports whether a session is installed, partial or not.
func (s AuthState) LoggedIn() bool {
	return s.Session != nil
}

func (s AuthState) clone() AuthState {
	out := s
	out.Session = s.Session.Clone()
	out.Context = s.Context.Clone()
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	return out
}
