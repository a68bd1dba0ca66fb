package auth

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
	"github.com/opendigitaleducation/edifice-mobile-framework-sub000/session"
)

// ErrInvalidPayload is returned for malformed forgot requests.
var ErrInvalidPayload = errors.New("invalid payload")

// DefaultPhoneRegion is used to parse phone numbers written without a country code.
const DefaultPhoneRegion = "FR"

// ActivationModel is what a user submits to activate an account.
type ActivationModel struct {
	ActivationCode  string `json:"activationCode"`
	Login           string `json:"login"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Mail            string `json:"mail"`
	Phone           string `json:"phone"`
	AcceptCGU       bool   `json:"acceptCGU"`
}

// Validate checks the model without platform requirements.
func (m ActivationModel) Validate() error {
	return m.validate(session.Mandatory{}, DefaultPhoneRegion)
}

func (m ActivationModel) validate(mandatory session.Mandatory, region string) error {
	mailRules := []validation.Rule{is.Email}
	if mandatory.Mail {
		mailRules = append([]validation.Rule{validation.Required}, mailRules...)
	}
	phoneRules := []validation.Rule{validation.By(validPhone(region))}
	if mandatory.Phone {
		phoneRules = append([]validation.Rule{validation.Required}, phoneRules...)
	}
	return validation.ValidateStruct(&m,
		validation.Field(&m.ActivationCode, validation.Required),
		validation.Field(&m.Login, validation.Required),
		validation.Field(&m.Password, validation.Required),
		validation.Field(
			&m.ConfirmPassword,
			validation.Required,
			validation.By(validateStringEquals(m.Password)),
		),
		validation.Field(&m.Mail, mailRules...),
		validation.Field(&m.Phone, phoneRules...),
	)
}

// ChangePasswordPayload is a password change request. ResetCode replaces
// OldPassword when renewing with a one-time code.
type ChangePasswordPayload struct {
	Login           string `json:"login"`
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	ResetCode       string `json:"resetCode"`
}

// Validate checks the payload shape. The platform password policy is checked by
// the platform itself.
func (p ChangePasswordPayload) Validate() error {
	oldRules := []validation.Rule{}
	if p.ResetCode == "" {
		oldRules = append(oldRules, validation.Required)
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Login, validation.Required),
		validation.Field(&p.OldPassword, oldRules...),
		validation.Field(&p.NewPassword, validation.Required),
		validation.Field(
			&p.ConfirmPassword,
			validation.Required,
			validation.By(validateStringEquals(p.NewPassword)),
		),
	)
}

// ForgotPayload carries the fields of either forgot mode.
type ForgotPayload struct {
	Login       string `json:"login"`
	Mail        string `json:"mail"`
	FirstName   string `json:"firstName"`
	StructureID string `json:"structureId"`
}

func (p ForgotPayload) validate(mode ForgotMode) error {
	switch mode {
	case ForgotPassword:
		return validation.ValidateStruct(&p,
			validation.Field(&p.Login, validation.Required),
		)
	case ForgotID:
		return validation.ValidateStruct(&p,
			validation.Field(&p.Mail, validation.Required, is.Email),
		)
	}
	return ErrInvalidForgotMode
}

// NormalizePhone parses raw in region and formats it as E.164.
func NormalizePhone(raw, region string) (string, error) {
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func validPhone(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		_, err := NormalizePhone(s, region)
		return err
	}
}

func validateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
