// Package validation checks request inputs against their validate tags and
// reports the first failure as a readable validation error.
package validation

import (
	"errors"
	"fmt"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Check validates in. labels renames struct fields in messages.
func Check(in any, labels map[string]string) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.ValidationError(err.Error())
	}
	fe := verrs[0]
	label := fe.Field()
	if l, ok := labels[label]; ok {
		label = l
	}
	switch fe.Tag() {
	case "required":
		return apperr.ValidationError(label + " is required")
	case "email":
		return apperr.ValidationError(label + " is invalid")
	case "min":
		if fe.Param() == "1" {
			return apperr.ValidationError(label + " is required")
		}
		return apperr.ValidationError(fmt.Sprintf("%s must be at least %s characters", label, fe.Param()))
	case "max":
		return apperr.ValidationError(fmt.Sprintf("%s must be at most %s characters", label, fe.Param()))
	default:
		return apperr.ValidationError(label + " is invalid")
	}
}
