package catalog

import (
	"github.com/go-playground/validator/v10"

	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// newValidator returns a validator that knows the catalog's custom rules.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("field_type", func(fl validator.FieldLevel) bool {
		return models.IsValidFieldType(models.FieldType(fl.Field().String()))
	})
	v.RegisterStructValidation(validateFieldProfile, models.FieldProfile{})
	return v
}

// validateFieldProfile enforces that unique_values is present exactly when the field
// is enumerable.
func validateFieldProfile(sl validator.StructLevel) {
	f := sl.Current().Interface().(models.FieldProfile)
	if f.Enumerable && f.UniqueValues == nil {
		sl.ReportError(f.UniqueValues, "UniqueValues", "unique_values", "required_if_enumerable", "")
	}
	if !f.Enumerable && f.UniqueValues != nil {
		sl.ReportError(f.UniqueValues, "UniqueValues", "unique_values", "excluded_unless_enumerable", "")
	}
}
