package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/transport"
	"golang.org/x/oauth2"
)

var (
	// ErrEngineNotReady is returned when an Engine is used before Build wired it.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrNoActiveSession is returned by operations that need an installed session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrInvalidForgotMode is returned by Forgot for modes other than id and password.
	ErrInvalidForgotMode = errors.New("invalid forgot mode")
	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid config")
)

// Error tags carried by TaggedError values.
const (
	TagAuth           = "EAUTH"
	TagActivation     = "EACTIVATION"
	TagChangePassword = "ECHANGEPWD"
)

// TaggedError is the closed set of typed failures returned by login, activation and
// password change. Only *AuthError, *ActivationError and *ChangePasswordError
// implement it.
type TaggedError interface {
	error
	Tag() string
	tagged()
}

// AuthErrorCode classifies transport and credential level login failures.
type AuthErrorCode string

const (
	BadCredentials       AuthErrorCode = "BAD_CREDENTIALS"
	NotPremium           AuthErrorCode = "NOT_PREMIUM"
	PreDeleted           AuthErrorCode = "PRE_DELETED"
	TooManyTries         AuthErrorCode = "TOO_MANY_TRIES"
	PlatformNotExists    AuthErrorCode = "PLATFORM_NOT_EXISTS"
	NetworkError         AuthErrorCode = "NETWORK_ERROR"
	UserInfoFail         AuthErrorCode = "USERINFO_FAIL"
	UserRequirementsFail AuthErrorCode = "USERREQUIREMENTS_FAIL"
	UnknownError         AuthErrorCode = "UNKNOWN_ERROR"
)

// AuthError is a login failure.
type AuthError struct {
	Code        AuthErrorCode
	Message     string
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any *AuthError with the same code, so errors.Is(err, ErrBadCredentials)
// works for every bad credentials failure.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// Tag implements TaggedError.
func (e *AuthError) Tag() string { return TagAuth }
func (e *AuthError) tagged() {}

// Sentinels for errors.Is, one per code.
var (
	ErrBadCredentials       = &AuthError{Code: BadCredentials}
	ErrNotPremium           = &AuthError{Code: NotPremium}
	ErrPreDeleted           = &AuthError{Code: PreDeleted}
	ErrTooManyTries         = &AuthError{Code: TooManyTries}
	ErrPlatformNotExists    = &AuthError{Code: PlatformNotExists}
	ErrNetwork              = &AuthError{Code: NetworkError}
	ErrUserInfoFail         = &AuthError{Code: UserInfoFail}
	ErrUserRequirementsFail = &AuthError{Code: UserRequirementsFail}
	ErrUnknown              = &AuthError{Code: UnknownError}
)

// ActivationError is a failed account activation.
type ActivationError struct {
	Message string
	Err     error
}

func (e *ActivationError) Error() string {
	if e.Err != nil {
		return "activation: " + e.Message + ": " + e.Err.Error()
	}
	return "activation: " + e.Message
}

func (e *ActivationError) Unwrap() error { return e.Err }

// Tag implements TaggedError.
func (e *ActivationError) Tag() string { return TagActivation }
func (e *ActivationError) tagged() {}

// ChangePasswordReason distinguishes password change failures for UI messaging.
type ChangePasswordReason string

const (
	ChangePasswordGeneric    ChangePasswordReason = "generic"
	ChangePasswordRegex      ChangePasswordReason = "regex"
	ChangePasswordValidation ChangePasswordReason = "validation"
)

// ChangePasswordError is a failed password change.
type ChangePasswordError struct {
	Reason  ChangePasswordReason
	Message string
	Err     error
}

func (e *ChangePasswordError) Error() string {
	if e.Err != nil {
		return "change password: " + e.Message + ": " + e.Err.Error()
	}
	return "change password: " + e.Message
}

func (e *ChangePasswordError) Unwrap() error { return e.Err }

// Tag implements TaggedError.
func (e *ChangePasswordError) Tag() string { return TagChangePassword }
func (e *ChangePasswordError) tagged() {}

// ErrorKind returns the kind recorded in state for err: the AuthErrorCode for auth
// errors, the tag for the other tagged errors and UNKNOWN_ERROR otherwise.
func ErrorKind(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return string(ae.Code)
	}
	var te TaggedError
	if errors.As(err, &te) {
		return te.Tag()
	}
	return string(UnknownError)
}

// classifyError maps any failure raised while logging in to the taxonomy. Tagged
// errors pass through unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var te TaggedError
	if errors.As(err, &te) {
		return err
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return classifyOAuthError(re)
	}
	if isNetworkError(err) {
		return &AuthError{Code: NetworkError, Err: err}
	}
	return &AuthError{Code: UnknownError, Err: err}
}

func classifyOAuthError(re *oauth2.RetrieveError) *AuthError {
	desc := re.ErrorDescription
	ae := &AuthError{Message: re.ErrorCode, Description: desc, Err: re}
	switch {
	case strings.Contains(desc, "not.premium"):
		ae.Code = NotPremium
	case strings.Contains(desc, "pre.deleted"):
		ae.Code = PreDeleted
	case re.ErrorCode == "invalid_grant":
		ae.Code = BadCredentials
	case re.ErrorCode == "quota_overflow":
		ae.Code = TooManyTries
	case re.Response != nil && re.Response.StatusCode == http.StatusNotFound:
		ae.Code = PlatformNotExists
	case re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError:
		ae.Code = NetworkError
	default:
		ae.Code = UnknownError
	}
	return ae
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// gatherError tags a user info or requirements read failure with code. Network
// failures stay NETWORK_ERROR.
func gatherError(code AuthErrorCode) func(error) error {
	return func(err error) error {
		var se *transport.StatusError
		if !errors.As(err, &se) && isNetworkError(err) {
			return &AuthError{Code: NetworkError, Err: err}
		}
		return &AuthError{Code: code, Err: err}
	}
}

func newActivationError(message string, cause error) error {
	return &ActivationError{Message: message, Err: cause}
}

func newChangePasswordError(regex bool, message string, cause error) error {
	reason := ChangePasswordGeneric
	if regex {
		reason = ChangePasswordRegex
	}
	return &ChangePasswordError{Reason: reason, Message: message, Err: cause}
}

func isActivationError(err error) bool {
	var ae *ActivationError
	return errors.As(err, &ae)
}

func isChangePasswordError(err error) bool {
	var ce *ChangePasswordError
	return errors.As(err, &ce)
}

func invalidUser(field string) error {
	return &AuthError{Code: UnknownError, Message: fmt.Sprintf("invalid user info: missing %s", field)}
}
