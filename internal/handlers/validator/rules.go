package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

// NewJobValidationRules checks payloads against the kinds served by p.
func NewJobValidationRules(p PayloadChecker) []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("payload", payloadValidator(p)),
		},
	}
}

func NewLoginValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("username", usernameValidator),
		},
	}
}
