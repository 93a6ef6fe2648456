package cassette

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

type (
	tableDef struct {
		name    string
		columns []columnDef
		pk      []string
		unique  []uniqueDef
	}

	uniqueDef struct {
		name    string
		columns []string
	}

	columnDef struct {
		name     string
		datatype string
	}
)

// expectedKeys lists the primary key of every table a cassette must carry,
// columns are sorted by name.
var expectedKeys = map[string][]string{
	"kv_rows":    {"row_id"},
	"kv_columns": {"column_hash"},
	"kv_values":  {"column_hash", "row_id"},
	"kv_index":   {"seq"},
	"kv_links":   {"link_hash"},
	"kv_secrets": {"name"},
}

// expectedUnique lists the unique constraints writes depend on, columns are
// sorted by name.
var expectedUnique = map[string][][]string{
	"kv_index": {{"column_hash", "row_id", "value_hash"}},
}

// verifySchema refuses files that happen to be sqlite databases but were not
// written by this package (or were written by an incompatible version).
func verifySchema(ctx context.Context, db *sql.DB, tape string) error {
	for name, pk := range expectedKeys {
		td, err := loadTableDef(ctx, db, name)
		if errors.Is(err, sql.ErrNoRows) {
			return InvalidTape{Path: tape, Table: name, cause: errors.New("table is missing")}
		} else if err != nil {
			return InvalidTape{Path: tape, Table: name, cause: err}
		}
		if !reflect.DeepEqual(td.pk, pk) {
			return InvalidTape{Path: tape, Table: name, cause: fmt.Errorf("primary key should be %v got %v", pk, td.pk)}
		}
		for _, cols := range expectedUnique[name] {
			if !td.hasUnique(cols) {
				return InvalidTape{Path: tape, Table: name, cause: fmt.Errorf("missing unique constraint on %v", cols)}
			}
		}
	}
	return nil
}

func (td *tableDef) hasUnique(cols []string) bool {
	for _, u := range td.unique {
		if reflect.DeepEqual(u.columns, cols) {
			return true
		}
	}
	return false
}

func loadTableDef(ctx context.Context, db *sql.DB, name string) (*tableDef, error) {
	td := tableDef{
		name: name,
	}

	type tableInfoRow struct {
		name     string
		datatype string
		pk       int
	}
	rows, err := db.QueryContext(ctx, `select name, type, pk from pragma_table_info(?) order by name`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var row tableInfoRow
		err = rows.Scan(&row.name, &row.datatype, &row.pk)
		if err != nil {
			return nil, err
		}
		// the reported case depends on the sqlite version
		td.columns = append(td.columns, columnDef{name: row.name, datatype: strings.ToUpper(row.datatype)})
		// pk holds the position of the column inside the key, 0 means not part of it
		if row.pk > 0 {
			td.pk = append(td.pk, row.name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(td.columns) == 0 {
		return nil, sql.ErrNoRows
	}
	uniqueIdx, err := listUniqueIndexes(ctx, db, name)
	if err != nil {
		return nil, err
	}
	for _, v := range uniqueIdx {
		udef, err := loadUniqueDef(ctx, db, v)
		if err != nil {
			return nil, err
		}
		td.unique = append(td.unique, udef)
	}
	return &td, nil
}

func loadUniqueDef(ctx context.Context, db *sql.DB, name string) (uniqueDef, error) {
	rows, err := db.QueryContext(ctx, `select name from pragma_index_info(?) order by name`, name)
	if err != nil {
		return uniqueDef{}, err
	}
	defer rows.Close()
	ud := uniqueDef{
		name: name,
	}
	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return uniqueDef{}, err
		}
		ud.columns = append(ud.columns, name)
	}
	return ud, rows.Err()
}

func listUniqueIndexes(ctx context.Context, db *sql.DB, name string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `select name from pragma_index_list(?) where [unique] = 1 order by name`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []string
	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, name)
	}
	return ret, rows.Err()
}
