// Package forms validates the sign-in, registration and password forms before
// anything is sent to the API.
package forms

import (
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lipvoice/voice-client/internal/errors"
)

type Register struct {
	Name            string `json:"name" validate:"min=2"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type Login struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ChangePassword requires the old password only when the account already has one
// (accounts created through Google sign-in may not).
type ChangePassword struct {
	IsPasswordSet   bool   `json:"isPasswordSet"`
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword" validate:"password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=NewPassword"`
}

// FieldErrors maps a form field's JSON name to its first failing rule's message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

func (e FieldErrors) Unwrap() error {
	return errors.ErrInvalidInput
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidatePasswordStrength(fl.Field().String()) == nil
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cp := sl.Current().Interface().(ChangePassword)
		if cp.IsPasswordSet && strings.TrimSpace(cp.OldPassword) == "" {
			sl.ReportError(cp.OldPassword, "oldPassword", "OldPassword", "oldrequired", "")
		}
	}, ChangePassword{})
	return v
}

func (r Register) Validate() error {
	return check(r)
}

func (l Login) Validate() error {
	return check(l)
}

func (c ChangePassword) Validate() error {
	return check(c)
}

func check(form any) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return errors.Wrapf(err, "validate form")
	}
	out := FieldErrors{}
	for _, fe := range ve {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "password":
		if err := ValidatePasswordStrength(fe.Value().(string)); err != nil {
			return err.Error()
		}
		return "password is too weak"
	case "email":
		return "email is not valid"
	case "eqfield":
		return "passwords do not match"
	case "oldrequired":
		return "current password is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "required":
		switch fe.Field() {
		case "email":
			return "email is not valid"
		case "confirmPassword":
			return "please confirm the password"
		default:
			return fe.Field() + " is required"
		}
	}
	return fe.Field() + " is not valid"
}
