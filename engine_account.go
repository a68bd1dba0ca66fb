package auth

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/internal/flows"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/platform"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
)

// Activate submits an activation form for p and, once the platform accepts it, logs
// in with the new credentials. The model is checked against the platform's mandatory
// fields from the last loaded login context. Validation and submission failures are
// *ActivationError; the login step returns what Login returns.
func (e *Engine) Activate(ctx context.Context, p *platform.Platform, model ActivationModel, opts LoginOptions) (*LoginResult, error) {
	if e == nil || p == nil {
		return nil, ErrEngineNotReady
	}

	var mandatory session.Mandatory
	if c := e.store.Get().Context; c != nil {
		mandatory = c.Mandatory
	}
	region := e.config.Activation.PhoneRegion
	if err := model.validate(mandatory, region); err != nil {
		aerr := &ActivationError{Message: "invalid activation form", Err: err}
		e.metricInc(MetricActivationFailure)
		e.track(ctx, CategoryAccount, EventActivationFailure, false, p.Name, "", aerr, nil)
		return nil, aerr
	}
	if model.Phone != "" {
		// validate already parsed it
		model.Phone, _ = NormalizePhone(model.Phone, region)
	}

	creds := &Credentials{Username: model.Login, Password: model.Password}
	deps := e.flows.Activate
	deps.Login = func(ctx context.Context, in flows.ActivateInput) (*flows.LoginOutcome, error) {
		return flows.RunLogin(ctx, flows.LoginInput{
			Platform:        in.Platform,
			WithCredentials: true,
			Username:        in.Login,
			Password:        in.Password,
			RememberMe:      opts.RememberMe,
			ErrorTimestamp:  opts.ErrorTimestamp,
		}, e.flows.Login)
	}

	outcome, err := flows.RunActivate(ctx, flows.ActivateInput{
		Platform:        p,
		Theme:           p.Theme(e.config.Activation.DefaultTheme),
		ActivationCode:  model.ActivationCode,
		Login:           model.Login,
		Password:        model.Password,
		ConfirmPassword: model.ConfirmPassword,
		Mail:            model.Mail,
		Phone:           model.Phone,
		AcceptCGU:       model.AcceptCGU,
	}, deps)
	if err != nil {
		return nil, err
	}
	return loginResult(p, outcome, creds, opts), nil
}

// ChangePassword submits a password change on p. forceChange marks the change
// required by a MUST_CHANGE_PASSWORD session. A rejection explained by the password
// policy of the loaded login context has Reason ChangePasswordRegex.
func (e *Engine) ChangePassword(ctx context.Context, p *platform.Platform, payload ChangePasswordPayload, forceChange bool) error {
	if e == nil || p == nil {
		return ErrEngineNotReady
	}
	if err := payload.Validate(); err != nil {
		cerr := &ChangePasswordError{Reason: ChangePasswordValidation, Message: "invalid password change form", Err: err}
		e.metricInc(MetricPasswordChangeFailure)
		e.track(ctx, CategoryAccount, EventPasswordChangeFailure, false, p.Name, "", cerr, func() map[string]string {
			return map[string]string{"forceChange": strconv.FormatBool(forceChange)}
		})
		return cerr
	}

	regex := ""
	if c := e.store.Get().Context; c != nil {
		regex = c.PasswordRegex
	}

	return flows.RunChangePassword(ctx, flows.ChangePasswordInput{
		Platform:        p,
		Login:           payload.Login,
		OldPassword:     payload.OldPassword,
		NewPassword:     payload.NewPassword,
		ConfirmPassword: payload.ConfirmPassword,
		ResetCode:       payload.ResetCode,
		ForceChange:     forceChange,
		PasswordRegex:   regex,
	}, e.flows.ChangePassword)
}

// Forgot asks p to send the forgotten login (ForgotID) or a reset link
// (ForgotPassword). A refusal by the platform is reported in the result, not as an
// error.
func (e *Engine) Forgot(ctx context.Context, p *platform.Platform, payload ForgotPayload, mode ForgotMode) (ForgotResult, error) {
	if e == nil || p == nil {
		return ForgotResult{}, ErrEngineNotReady
	}
	if mode != ForgotID && mode != ForgotPassword {
		return ForgotResult{}, ErrInvalidForgotMode
	}
	if err := payload.validate(mode); err != nil {
		return ForgotResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	out, err := flows.RunForgot(ctx, flows.ForgotInput{
		Platform:    p,
		Mode:        string(mode),
		Login:       payload.Login,
		Mail:        payload.Mail,
		FirstName:   payload.FirstName,
		StructureID: payload.StructureID,
	}, e.flows.Forgot)
	if err != nil {
		return ForgotResult{}, err
	}
	return ForgotResult{OK: out.OK, Status: out.Status, Body: out.Body}, nil
}
