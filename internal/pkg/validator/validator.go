package validator

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"agrirent/internal/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// same tags gin reads, so request structs declare their rules once
	validate.SetTagName("binding")
}

// Validate struct fields
func Validate(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	if fields := fieldsOf(err); fields != nil {
		return fields
	}
	return map[string]string{"_": err.Error()}
}

// FromError turns the validator.ValidationErrors gin returns from a binding
// into a *domain.ValidationError. ok is false for any other error.
func FromError(err error) (verr *domain.ValidationError, ok bool) {
	fields := fieldsOf(err)
	if fields == nil {
		return nil, false
	}
	return &domain.ValidationError{Fields: fields}, true
}

func fieldsOf(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[toSnake(fe.Field())] = describe(fe)
	}
	return out
}

// Struct validates v and returns a *domain.ValidationError, or nil.
func Struct(v interface{}) error {
	fields := Validate(v)
	if len(fields) == 0 {
		return nil
	}
	return &domain.ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lt", "lte", "max":
		return "must be at most " + fe.Param()
	case "gtfield", "gtefield":
		return "must be after " + toSnake(fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "failed " + fe.Tag()
}

func toSnake(s string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			if prevLower {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
			prevLower = false
		} else {
			prevLower = true
		}
		b.WriteRune(r)
	}
	return b.String()
}
