package ddl

import (
	"fmt"
	"sort"
	"strings"

	"lakerunner/internal/domain"
)

// Compile renders a CREATE TABLE statement for the given engine dialect.
// Deterministic: the same (tableName, fields, engineID) always yields
// byte-identical DDL. Fails with an UnsupportedTypeError when a field type
// has no mapping in the dialect, so the registry can abort the registration
// before anything is stored.
func Compile(tableName string, fields []domain.Field, engineID string) (string, error) {
	d, err := DialectFor(engineID)
	if err != nil {
		return "", err
	}

	if err := ValidateIdentifier(tableName); err != nil {
		return "", domain.ErrValidation("invalid table name %q: %v", tableName, err)
	}
	if len(fields) == 0 {
		return "", domain.ErrValidation("at least one field is required")
	}

	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		rendered, err := renderField(d, f, false)
		if err != nil {
			return "", err
		}
		cols = append(cols, rendered)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)%s",
		d.Quote(tableName), strings.Join(cols, ", "), d.TableSuffix), nil
}

// renderField renders one "name TYPE" definition, recursing into nested
// struct fields. member selects the dialect's composite-member nullability
// rendering instead of the column-level one.
func renderField(d *Dialect, f domain.Field, member bool) (string, error) {
	if err := ValidateIdentifier(f.Name); err != nil {
		return "", domain.ErrValidation("invalid field name %q: %v", f.Name, err)
	}

	typ, composite, err := renderType(d, f)
	if err != nil {
		return "", err
	}
	nullable := d.Nullable
	if member {
		nullable = d.MemberNullable
	}
	return d.Quote(f.Name) + " " + nullable(typ, f.Nullable, composite), nil
}

func renderType(d *Dialect, f domain.Field) (typ string, composite bool, err error) {
	if f.Type == domain.FieldTypeStruct {
		if len(f.Fields) == 0 {
			return "", false, domain.ErrValidation("struct field %q has no members", f.Name)
		}
		members := make([]string, 0, len(f.Fields))
		for _, child := range f.Fields {
			rendered, err := renderField(d, child, true)
			if err != nil {
				return "", false, err
			}
			members = append(members, rendered)
		}
		return d.Composite(members), true, nil
	}

	mapped, ok := d.Types[f.Type]
	if !ok {
		return "", false, domain.ErrUnsupportedType(
			"field %q: type %q has no mapping in the %s dialect", f.Name, f.Type, d.Engine)
	}
	return mapped, false, nil
}

func joinMembers(members []string) string {
	return strings.Join(members, ", ")
}

func sortStrings(s []string) {
	sort.Strings(s)
}
