package cassette

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func TestReadTableInfo(t *testing.T) {
	tape := filepath.Join(t.TempDir(), "test")

	ctx := context.Background()
	c, err := LoadControlCassette(ctx, tape, true, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	td, err := loadTableDef(ctx, c.db, "kv_links")
	if err != nil {
		t.Fatal(err)
	}

	expected := tableDef{
		name: "kv_links",
		columns: []columnDef{
			{name: "expires_at", datatype: "INTEGER"},
			{name: "link_hash", datatype: "TEXT"},
			{name: "row_id", datatype: "TEXT"},
		},
		pk: []string{"link_hash"},
		unique: []uniqueDef{
			{name: "sqlite_autoindex_kv_links_1", columns: []string{"link_hash"}},
		},
	}

	if !reflect.DeepEqual(expected, *td) {
		t.Fatalf("Expecting: %v\nGot: %v", expected, *td)
	}
}

func TestRejectForeignDatabase(t *testing.T) {
	tape := filepath.Join(t.TempDir(), "test")
	ctx := context.Background()

	db, err := openCassetteDatabase(ctx, tape, true)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.ExecContext(ctx, `create table kv_rows(id integer primary key)`)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	_, err = LoadControlCassette(ctx, tape, true, Options{})
	var invalid InvalidTape
	if !errors.As(err, &invalid) {
		t.Fatalf("expecting InvalidTape got %v", err)
	}
	if invalid.Table != "kv_rows" {
		t.Errorf("table kv_rows should be reported, got %v", invalid.Table)
	}
}

func TestMissingTable(t *testing.T) {
	tape := filepath.Join(t.TempDir(), "test")
	ctx := context.Background()
	c, err := LoadControlCassette(ctx, tape, true, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_, err = loadTableDef(ctx, c.db, "kv_missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expecting sql.ErrNoRows got %v", err)
	}
}

func TestRejectIndexWithoutUniqueConstraint(t *testing.T) {
	tape := filepath.Join(t.TempDir(), "test")
	ctx := context.Background()
	c, err := LoadControlCassette(ctx, tape, true, Options{})
	if err != nil {
		t.Fatal(err)
	}
	c.Close()

	db, err := openCassetteDatabase(ctx, tape, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, cmd := range []string{
		`drop table kv_index`,
		`create table kv_index(
			seq integer not null primary key autoincrement,
			column_hash text not null,
			value_hash text not null,
			value_hash64 integer not null,
			row_id text not null
		)`,
	} {
		if _, err := db.ExecContext(ctx, cmd); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	_, err = LoadControlCassette(ctx, tape, true, Options{})
	var invalid InvalidTape
	if !errors.As(err, &invalid) {
		t.Fatalf("expecting InvalidTape got %v", err)
	}
	if invalid.Table != "kv_index" {
		t.Errorf("table kv_index should be reported, got %v", invalid.Table)
	}
}
