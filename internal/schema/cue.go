package schema

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// LoadCUE compiles CUE source and builds a Registry from its top-level
// "entity" struct. Field order follows declaration order.
func LoadCUE(src []byte, filename string) (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, &CompileError{
			Field:   "entity",
			Message: "no entity definitions found",
			Pos:     v.Pos(),
		}
	}

	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []Entity
	for iter.Next() {
		e, err := compileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return NewRegistry(entities...)
}

// compileEntity parses one entity struct.
func compileEntity(name string, v cue.Value) (Entity, error) {
	e := Entity{Name: name}

	tableVal := v.LookupPath(cue.ParsePath("table"))
	if tableVal.Exists() {
		table, err := tableVal.String()
		if err != nil {
			return Entity{}, formatCUEError(err)
		}
		e.Table = table
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return Entity{}, &CompileError{
			Field:   fmt.Sprintf("entity.%s.fields", name),
			Message: "fields are required",
			Pos:     v.Pos(),
		}
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return Entity{}, formatCUEError(err)
	}

	for iter.Next() {
		f, err := compileField(iter.Label(), iter.Value())
		if err != nil {
			return Entity{}, err
		}
		e.Fields = append(e.Fields, f)
	}

	return e, nil
}

// compileField accepts either a bare CUE type (string, int, float, bool)
// or a struct with explicit attributes.
func compileField(name string, v cue.Value) (Field, error) {
	f := Field{Name: name}

	if v.IncompleteKind() != cue.StructKind {
		t, err := fieldTypeFromKind(v)
		if err != nil {
			return Field{}, err
		}
		f.Type = t
		return f, nil
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return Field{}, &CompileError{
			Field:   name + ".type",
			Message: "type is required",
			Pos:     v.Pos(),
		}
	}
	typeName, err := typeVal.String()
	if err != nil {
		return Field{}, formatCUEError(err)
	}
	f.Type = FieldType(typeName)

	for _, attr := range []struct {
		label string
		dst   *string
	}{
		{"column", &f.Column},
		{"target", &f.Target},
	} {
		av := v.LookupPath(cue.ParsePath(attr.label))
		if !av.Exists() {
			continue
		}
		s, err := av.String()
		if err != nil {
			return Field{}, formatCUEError(err)
		}
		*attr.dst = s
	}

	for _, attr := range []struct {
		label string
		dst   *bool
	}{
		{"nullable", &f.Nullable},
		{"primary_key", &f.PrimaryKey},
	} {
		av := v.LookupPath(cue.ParsePath(attr.label))
		if !av.Exists() {
			continue
		}
		b, err := av.Bool()
		if err != nil {
			return Field{}, formatCUEError(err)
		}
		*attr.dst = b
	}

	return f, nil
}

// fieldTypeFromKind converts a bare CUE type to a field type.
func fieldTypeFromKind(v cue.Value) (FieldType, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return TypeString, nil
	case cue.IntKind:
		return TypeInteger, nil
	case cue.FloatKind, cue.NumberKind:
		return TypeFloat, nil
	case cue.BoolKind:
		return TypeBoolean, nil
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a metadata compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
