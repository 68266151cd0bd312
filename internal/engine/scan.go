package engine

import (
	"database/sql"
)

// scanAll drains rows into memory, returning column names, the driver's
// native type names, and the row values. Always closes rows.
func scanAll(rows *sql.Rows) (columns, typeNames []string, out [][]interface{}, err error) {
	defer rows.Close() //nolint:errcheck

	columns, err = rows.Columns()
	if err != nil {
		return nil, nil, nil, err
	}

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, nil, err
	}
	typeNames = make([]string, len(colTypes))
	for i, ct := range colTypes {
		typeNames[i] = ct.DatabaseTypeName()
	}

	out = make([][]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, nil, err
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	return columns, typeNames, out, nil
}
