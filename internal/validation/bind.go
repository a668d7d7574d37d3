package validation

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/storefront-payments/internal/apperr"
)

// BindAndValidate binds the JSON body into out and runs validation. The
// returned error is an *apperr.Error whose code names the first problem:
// INVALID_AMOUNT for amount fields, MISSING_FIELDS for absent required
// fields, INVALID_REQUEST for everything else.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		e := apperr.Validation(apperr.CodeInvalidRequest, "request body is not valid JSON")
		e.Err = err
		return e
	}
	return Validate(out, v)
}

// Validate runs v against a decoded request.
func Validate(req interface{}, v *validatorv10.Validate) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		e := apperr.Validation(apperr.CodeInvalidRequest, "invalid request")
		e.Err = err
		return e
	}

	fields := validationErrorsToMap(ve)
	first := ve[0]
	var e *apperr.Error
	switch {
	case first.Tag() == "money" || first.Tag() == "amount_match_items":
		e = apperr.Validation(apperr.CodeInvalidAmount, fmt.Sprintf("%s must be a positive number", jsonName(first)))
		if first.Tag() == "amount_match_items" {
			e.Message = "amount does not match the items total"
		}
	case isRequiredTag(first.Tag()):
		e = apperr.Validation(apperr.CodeMissingFields, fmt.Sprintf("%s is required", jsonName(first)))
	default:
		e = apperr.Validation(apperr.CodeInvalidRequest, fmt.Sprintf("%s is invalid", jsonName(first)))
	}
	e.Detail = map[string]any{"fields": fields}
	e.Err = err
	return e
}

func isRequiredTag(tag string) bool {
	switch tag {
	case "required", "required_without", "required_with", "min":
		return true
	}
	return false
}

// jsonName lowercases the first letter of the struct field, matching the
// JSON names used by the request types.
func jsonName(fe validatorv10.FieldError) string {
	f := fe.Field()
	if f == "" {
		return "field"
	}
	b := []byte(f)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}

func validationErrorsToMap(ve validatorv10.ValidationErrors) map[string]string {
	out := map[string]string{}
	for _, fe := range ve {
		out[fe.StructNamespace()] = fe.Tag()
	}
	return out
}
