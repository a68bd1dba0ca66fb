package auth

import "github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"

// ResolvePartialSession returns the blocking step u must complete before using the
// application, or session.ScenarioNone. When several apply, terms come first, then
// the password change, then mobile and e-mail verification.
func ResolvePartialSession(u session.UserInfo) session.Scenario {
	switch {
	case u.NeedsRevalidateTerms:
		return session.MustRevalidateTerms
	case u.MustChangePassword:
		return session.MustChangePassword
	case u.NeedsRevalidateMobile && !u.MobileValidated:
		return session.MustVerifyMobile
	case u.NeedsRevalidateEmail && !u.EmailValidated:
		return session.MustVerifyEmail
	}
	return session.ScenarioNone
}

// ensureUserValidity rejects user info that cannot identify a session.
func ensureUserValidity(u session.UserInfo) error {
	if u.ID == "" {
		return invalidUser("id")
	}
	if u.Login == "" {
		return invalidUser("login")
	}
	return nil
}
