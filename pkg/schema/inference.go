package schema

import (
	"regexp"

	"github.com/ekaya-inc/ekaya-catalog/pkg/document"
	"github.com/ekaya-inc/ekaya-catalog/pkg/models"
)

// stringPatterns narrow a string value to a more specific type. They are loose
// structural checks on the value only, never on the field name.
var (
	objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	datetimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`)
)

// InferType classifies a single value. Booleans are their own variant in the document
// model, so they can never be mistaken for integers.
func InferType(v document.Value) models.FieldType {
	switch v.Kind() {
	case document.KindNull:
		return models.FieldTypeNull
	case document.KindBool:
		return models.FieldTypeBoolean
	case document.KindInt:
		return models.FieldTypeInteger
	case document.KindFloat:
		return models.FieldTypeNumber
	case document.KindString:
		s, _ := v.AsString()
		return inferStringType(s)
	case document.KindArray:
		return models.FieldTypeArray
	case document.KindObject:
		return models.FieldTypeObject
	default:
		return models.FieldTypeUnknown
	}
}

func inferStringType(s string) models.FieldType {
	switch {
	case objectIDPattern.MatchString(s):
		return models.FieldTypeObjectID
	case datetimePattern.MatchString(s):
		return models.FieldTypeDatetime
	default:
		return models.FieldTypeString
	}
}
