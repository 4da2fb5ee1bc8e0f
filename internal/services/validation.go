package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/parts-pp/parts-pp-sub000/pkg/errors"
)

// validateStruct maps validator failures to a Validation error naming each
// offending field.
func validateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("%v", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Field()+" ("+fe.Tag()+")")
	}
	return apperrors.NewValidationError("invalid %s", strings.Join(parts, ", "))
}
