package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation error codes (E100-E119)
const (
	// Entity errors (E100-E109)
	ErrEntityNameEmpty   = "E100" // entity name is required
	ErrDuplicateEntity   = "E101" // duplicate entity name
	ErrDuplicateTable    = "E102" // two entities share a table
	ErrNoFields          = "E103" // entity has no fields
	ErrPrimaryKey        = "E104" // missing or multiple primary keys
	ErrInvalidIdentifier = "E105" // name, table or column is not an identifier

	// Field errors (E110-E119)
	ErrFieldNameEmpty     = "E110" // field name is required
	ErrDuplicateField     = "E111" // duplicate field or column name
	ErrInvalidFieldType   = "E112" // unknown type string
	ErrUnknownTarget      = "E113" // ref target is not a registered entity
	ErrTargetOnScalar     = "E114" // target set on a non-ref field
	ErrNullablePrimaryKey = "E115" // primary key declared nullable
	ErrRefPrimaryKey      = "E116" // primary key declared as a relation
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a metadata validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// RegistryError collects every validation error found while building a
// Registry.
type RegistryError struct {
	Errors []ValidationError
}

func (e *RegistryError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return "invalid schema: " + strings.Join(msgs, "; ")
}

// Validate checks a registry against the metadata rules.
// Returns all errors found (does not fail-fast).
func Validate(r *Registry) []ValidationError {
	var errs []ValidationError
	names := make(map[string]bool)
	tables := make(map[string]string)

	for _, e := range r.entities {
		path := "entity." + e.Name

		// E100
		if e.Name == "" {
			errs = append(errs, ValidationError{
				Field:   "entity",
				Message: "entity name is required",
				Code:    ErrEntityNameEmpty,
			})
			continue
		}

		// E101
		if names[e.Name] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate entity %q", e.Name),
				Code:    ErrDuplicateEntity,
			})
		}
		names[e.Name] = true

		// E105
		for _, ident := range []string{e.Name, e.Table} {
			if !identPattern.MatchString(ident) {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("%q is not a valid identifier", ident),
					Code:    ErrInvalidIdentifier,
				})
			}
		}

		// E102
		if other, ok := tables[e.Table]; ok {
			errs = append(errs, ValidationError{
				Field:   path + ".table",
				Message: fmt.Sprintf("table %q already used by entity %q", e.Table, other),
				Code:    ErrDuplicateTable,
			})
		}
		tables[e.Table] = e.Name

		// E103
		if len(e.Fields) == 0 {
			errs = append(errs, ValidationError{
				Field:   path + ".fields",
				Message: "at least one field is required",
				Code:    ErrNoFields,
			})
			continue
		}

		errs = append(errs, validateFields(r, e)...)
	}

	return errs
}

func validateFields(r *Registry, e *Entity) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	columns := make(map[string]bool)
	primaryKeys := 0

	for i, f := range e.Fields {
		path := fmt.Sprintf("entity.%s.fields[%d]", e.Name, i)

		// E110
		if f.Name == "" {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "field name is required",
				Code:    ErrFieldNameEmpty,
			})
			continue
		}
		path = fmt.Sprintf("entity.%s.%s", e.Name, f.Name)

		// E105
		for _, ident := range []string{f.Name, f.Column} {
			if !identPattern.MatchString(ident) {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("%q is not a valid identifier", ident),
					Code:    ErrInvalidIdentifier,
				})
			}
		}

		// E111
		if seen[f.Name] || columns[f.Column] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate field or column %q", f.Name),
				Code:    ErrDuplicateField,
			})
		}
		seen[f.Name] = true
		columns[f.Column] = true

		// E112
		if !f.Type.Valid() {
			errs = append(errs, ValidationError{
				Field:   path + ".type",
				Message: fmt.Sprintf("invalid type %q (expected string, integer, float, boolean or ref)", f.Type),
				Code:    ErrInvalidFieldType,
			})
		}

		// E113, E114
		if f.IsRelation() {
			if _, ok := r.byName[f.Target]; !ok {
				errs = append(errs, ValidationError{
					Field:   path + ".target",
					Message: fmt.Sprintf("unknown target entity %q", f.Target),
					Code:    ErrUnknownTarget,
				})
			}
		} else if f.Target != "" {
			errs = append(errs, ValidationError{
				Field:   path + ".target",
				Message: "target is only allowed on ref fields",
				Code:    ErrTargetOnScalar,
			})
		}

		if f.PrimaryKey {
			primaryKeys++
			// E115
			if f.Nullable {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: "primary key cannot be nullable",
					Code:    ErrNullablePrimaryKey,
				})
			}
			// E116
			if f.IsRelation() {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: "primary key cannot be a relation",
					Code:    ErrRefPrimaryKey,
				})
			}
		}
	}

	// E104
	if primaryKeys != 1 {
		errs = append(errs, ValidationError{
			Field:   "entity." + e.Name,
			Message: fmt.Sprintf("exactly one primary key is required, found %d", primaryKeys),
			Code:    ErrPrimaryKey,
		})
	}

	return errs
}
