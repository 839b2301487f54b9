// Package schema implements the document validation collaborator: given a
// resource schema and a document it returns either nil or a structured
// field-level error map ({field: {rule: description}}). The engine is
// declarative because resource documents are dynamic maps; struct-tag
// validators cannot express per-resource schemas resolved at startup.
package schema

import (
	"fmt"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// FieldType enumerates the supported value types.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
	TypeDict     FieldType = "dict"
	TypeList     FieldType = "list"
)

// Field describes validation rules for one document field.
type Field struct {
	Type          FieldType
	Required      bool
	Readonly      bool
	MaxLength     int
	AllowedValues []string
}

// Schema is the validation declaration of one resource.
type Schema struct {
	Fields map[string]Field
	// AllowUnknown permits fields outside the declaration; resource
	// documents routinely carry metadata beyond the validated core.
	AllowUnknown bool
}

// Validate checks a full document against the schema. It returns nil when
// the document is valid; otherwise every violated rule is reported so the
// caller can surface them all at once.
func (s *Schema) Validate(doc models.Doc) appErrors.FieldErrors {
	if s == nil {
		return nil
	}
	issues := appErrors.FieldErrors{}

	for name, field := range s.Fields {
		value, present := doc[name]
		if !present || value == nil {
			if field.Required {
				addIssue(issues, name, "required", "field is required")
			}
			continue
		}
		if !typeMatches(field.Type, value) {
			addIssue(issues, name, "type", fmt.Sprintf("expected %s", field.Type))
			continue
		}
		if field.MaxLength > 0 {
			if str, ok := value.(string); ok && len(str) > field.MaxLength {
				addIssue(issues, name, "maxlength", fmt.Sprintf("exceeds %d characters", field.MaxLength))
			}
		}
		if len(field.AllowedValues) > 0 {
			if str, ok := value.(string); ok && !contains(field.AllowedValues, str) {
				addIssue(issues, name, "allowed", fmt.Sprintf("value %q is not allowed", str))
			}
		}
	}

	if !s.AllowUnknown {
		for name := range doc {
			if _, declared := s.Fields[name]; !declared && !isSystemField(name) {
				addIssue(issues, name, "unknown", "unknown field")
			}
		}
	}

	if len(issues) == 0 {
		return nil
	}
	return issues
}

// ReadonlyViolations reports readonly fields the updates attempt to change.
func (s *Schema) ReadonlyViolations(original, updates models.Doc) appErrors.FieldErrors {
	if s == nil {
		return nil
	}
	issues := appErrors.FieldErrors{}
	for name, field := range s.Fields {
		if !field.Readonly {
			continue
		}
		value, present := updates[name]
		if !present {
			continue
		}
		if fmt.Sprintf("%v", value) != fmt.Sprintf("%v", original[name]) {
			addIssue(issues, name, "readonly", "field is read only")
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return issues
}

func typeMatches(t FieldType, value interface{}) bool {
	switch t {
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeInteger:
		switch typed := value.(type) {
		case int, int64:
			return true
		case float64:
			return typed == float64(int64(typed))
		}
		return false
	case TypeNumber:
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeDatetime:
		switch typed := value.(type) {
		case string:
			_, ok := models.ParseTime(typed)
			return ok
		default:
			return false
		}
	case TypeDict:
		switch value.(type) {
		case map[string]interface{}, models.Doc:
			return true
		}
		return false
	case TypeList:
		_, ok := value.([]interface{})
		return ok
	}
	return true
}

func isSystemField(name string) bool {
	return len(name) > 0 && name[0] == '_'
}

func addIssue(issues appErrors.FieldErrors, field, rule, description string) {
	if issues[field] == nil {
		issues[field] = map[string]string{}
	}
	issues[field][rule] = description
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}
