package multitenantengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/selection/rules"
)

// Field types a tenant schema may declare.
const (
	FieldString = "string"
	FieldNumber = "number"
	FieldBool   = "bool"
)

const (
	maxFields          = 200
	maxIdentifierBytes = 100
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateSchema validates a schema definition.
// Returns an error if validation fails, nil if schema is valid
func ValidateSchema(schema Schema) error {
	if len(schema) == 0 {
		return fmt.Errorf("schema cannot be empty, must declare at least one state field")
	}

	if len(schema) > maxFields {
		return fmt.Errorf("schema declares %d fields, maximum allowed is %d", len(schema), maxFields)
	}

	for fieldName, typeName := range schema {
		if err := validateIdentifier(fieldName); err != nil {
			return fmt.Errorf("invalid field name %q: %w", fieldName, err)
		}

		if typeName == "" {
			return fmt.Errorf("field %q has empty type name", fieldName)
		}

		if strings.TrimSpace(typeName) != typeName {
			return fmt.Errorf("field %q has type with leading/trailing whitespace: %q", fieldName, typeName)
		}

		if !isValidFieldType(typeName) {
			return fmt.Errorf("field %q has invalid type %q (must be one of: string, number, bool)", fieldName, typeName)
		}
	}

	return nil
}

// ValidateDefinition checks that a string or number rule reads a field the
// schema declares with the matching type. Expression rules are checked
// against the schema when they compile in the tenant's CELEnv.
func ValidateDefinition(schema Schema, def *rules.Definition) error {
	var want string
	switch def.Kind {
	case rules.KindString:
		want = FieldString
	case rules.KindNumber:
		want = FieldNumber
	default:
		return nil
	}

	got, ok := schema[def.Property]
	if !ok {
		return fmt.Errorf("property %q is not declared in the tenant schema", def.Property)
	}
	if got != want {
		return fmt.Errorf("%s rule cannot read %s field %q", def.Kind, got, def.Property)
	}
	return nil
}

// validateIdentifier validates a field name: it must match
// ^[a-zA-Z_][a-zA-Z0-9_]*$, be 1-100 characters and not be a CEL keyword.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierBytes {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierBytes)
	}

	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}

	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}

	return nil
}

// isValidFieldType reports whether typeName is a supported field type.
// Type names are case-sensitive.
func isValidFieldType(typeName string) bool {
	switch typeName {
	case FieldString, FieldNumber, FieldBool:
		return true
	}
	return false
}

// isReservedKeyword checks if a name is a CEL reserved word, which would
// make state.<name> awkward to write in expression rules.
func isReservedKeyword(name string) bool {
	reservedKeywords := map[string]bool{
		"true":  true,
		"false": true,
		"null":  true,
		"in":    true,

		"as":        true,
		"break":     true,
		"const":     true,
		"continue":  true,
		"else":      true,
		"for":       true,
		"function":  true,
		"if":        true,
		"import":    true,
		"let":       true,
		"loop":      true,
		"package":   true,
		"namespace": true,
		"return":    true,
		"var":       true,
		"void":      true,
		"while":     true,
	}

	return reservedKeywords[name]
}
