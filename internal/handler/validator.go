package handler

import (
	"github.com/go-playground/validator/v10"
)

// RequestValidator adapts go-playground/validator to echo.Validator so
// handlers can call c.Validate on bound bodies.
type RequestValidator struct {
	v *validator.Validate
}

// NewValidator returns the validator installed on the Echo instance.
func NewValidator() *RequestValidator {
	return &RequestValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (r *RequestValidator) Validate(i interface{}) error {
	return r.v.Struct(i)
}
