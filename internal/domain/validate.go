package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the domain's custom tags registered.
//
//	singleline: the string holds no CR or LF. Applied to fields that end up
//	in mail headers.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
	return v
}
