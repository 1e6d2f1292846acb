package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Internal column fragments shared by every compiled table.
const (
	colRowID     = "row_id INTEGER PRIMARY KEY AUTOINCREMENT"
	colJSON      = "json TEXT NOT NULL CHECK (json_valid(json))"
	colRoot      = "root_row_id INTEGER NOT NULL"
	colContainer = "container_row_id INTEGER NOT NULL"
	colOrder     = "item_order INTEGER NOT NULL"
	colStart     = "valid_start INTEGER NOT NULL"
	colEnd       = "valid_end INTEGER NOT NULL DEFAULT 9223372036854775807"
)

// CreateSchema compiles and applies DDL for the named types, or for every
// registered type when no names are given. Root types bring their whole
// part subtree. All statements are IF NOT EXISTS, so compiling twice
// against unchanged declarations neither errors nor duplicates columns or
// indexes.
func (b *Backend) CreateSchema(ctx context.Context, names ...string) error {
	db, reg, err := b.session()
	if err != nil {
		return err
	}

	wanted, err := b.schemaTargets(reg, names)
	if err != nil {
		return err
	}

	for _, t := range wanted {
		for _, ddl := range DDLForType(t) {
			b.log.Debugw("applying ddl", "type", t.Name, "sql", ddl)
			if _, err := db.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("creating schema for %s: %w", t.Name, err)
			}
		}
	}
	b.log.Infow("schema created", "types", len(wanted))
	return nil
}

// schemaTargets expands the requested names into creation order, pulling
// in part subtrees of requested roots and deduplicating.
func (b *Backend) schemaTargets(reg *schema.Registry, names []string) ([]*schema.EntityType, error) {
	include := make(map[string]bool)
	if len(names) == 0 {
		for _, t := range reg.Types() {
			include[t.Name] = true
		}
	} else {
		for _, name := range names {
			t, err := b.entityType(reg, name)
			if err != nil {
				return nil, err
			}
			include[t.Name] = true
		}
		// A requested type brings every type underneath it.
		for _, t := range reg.Types() {
			for cur := t.OwnerType(); cur != nil; cur = cur.OwnerType() {
				if include[cur.Name] {
					include[t.Name] = true
					break
				}
			}
		}
	}

	var out []*schema.EntityType
	for _, t := range reg.CreationOrder() {
		if include[t.Name] {
			out = append(out, t)
		}
	}
	return out, nil
}

// DDLForType returns the ordered DDL statements for one entity type: the
// main table, its indexes, one satellite table with indexes per
// array-index field, and the FTS5 table when full-text fields exist.
func DDLForType(t *schema.EntityType) []string {
	ddl := []string{tableDDL(t)}
	ddl = append(ddl, indexDDL(t)...)
	for _, f := range t.ArrayFields() {
		ddl = append(ddl, satelliteDDL(t, f)...)
	}
	if fts := fullTextDDL(t); fts != "" {
		ddl = append(ddl, fts)
	}
	return ddl
}

// tableDDL builds the CREATE TABLE statement. Scalar, unique, and
// full-text fields become generated columns extracted from the JSON
// payload; external fields become plain columns the upsert engine fills
// from the resolved owner value. Array fields live in satellite tables
// and payload fields stay inside the JSON.
func tableDDL(t *schema.EntityType) string {
	cols := []string{colRowID}
	if t.Versioned {
		cols = append(cols, colStart, colEnd)
	}
	if !t.IsRoot() {
		cols = append(cols, colRoot, colContainer, colOrder)
	}
	cols = append(cols, colJSON)

	for _, f := range t.Fields {
		switch f.Kind {
		case schema.KindScalar, schema.KindUnique, schema.KindFullText:
			cols = append(cols, generatedColumn(f))
		case schema.KindExternal:
			cols = append(cols, fmt.Sprintf("%s %s", f.Name, f.Type))
		case schema.KindPayload, schema.KindArray:
			// No column of their own.
		}
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n);", t.Table(), strings.Join(cols, ",\n    "))
}

// generatedColumn renders a stored generated column extracting one JSON
// path from the payload.
func generatedColumn(f schema.FieldSpec) string {
	path := f.JSONSteps()[0]
	return fmt.Sprintf("%s %s GENERATED ALWAYS AS (json_extract(json, '%s')) STORED", f.Name, f.Type, path)
}

// indexDDL builds the secondary indexes: one per scalar and external
// field, a unique index per unique field, the identity index, and the
// validity-range index for versioned tables. For versioned tables the
// identity index is partial over current rows, so historical rows may
// repeat an identity.
func indexDDL(t *schema.EntityType) []string {
	var ddl []string
	tbl := t.Table()

	if !t.IsRoot() {
		ddl = append(ddl,
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS ix_%s_root ON %s(root_row_id);", tbl, tbl),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS ix_%s_container ON %s(container_row_id, item_order);", tbl, tbl),
		)
	}
	if t.Versioned {
		ddl = append(ddl,
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS ix_%s_valid ON %s(valid_start, valid_end);", tbl, tbl),
		)
	}

	for _, f := range t.Fields {
		switch f.Kind {
		case schema.KindScalar, schema.KindExternal:
			ddl = append(ddl, fmt.Sprintf("CREATE INDEX IF NOT EXISTS ix_%s_%s ON %s(%s);", tbl, f.Name, tbl, f.Name))
		case schema.KindUnique:
			if t.Versioned {
				ddl = append(ddl, fmt.Sprintf(
					"CREATE UNIQUE INDEX IF NOT EXISTS ux_%s_%s ON %s(%s) WHERE valid_end = %d;",
					tbl, f.Name, tbl, f.Name, types.VersionEndOpen))
			} else {
				ddl = append(ddl, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS ux_%s_%s ON %s(%s);", tbl, f.Name, tbl, f.Name))
			}
		}
	}
	return ddl
}

// satelliteDDL builds the side table holding one row per element of an
// array-index field, plus its owner and value indexes.
func satelliteDDL(t *schema.EntityType, f schema.FieldSpec) []string {
	sat := t.SatelliteTable(f.Name)
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    owner_row_id INTEGER NOT NULL,\n    item_order INTEGER NOT NULL,\n    value %s\n);", sat, f.Type),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS ix_%s_owner ON %s(owner_row_id);", sat, sat),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS ix_%s_value ON %s(value);", sat, sat),
	}
}

// fullTextDDL builds the FTS5 table over the type's full-text fields, or
// returns "" when the type declares none. Rows are addressed by rowid =
// the owning row's row_id and maintained by the upsert engine.
func fullTextDDL(t *schema.EntityType) string {
	fts := t.FullTextFields()
	if len(fts) == 0 {
		return ""
	}
	names := make([]string, len(fts))
	for i, f := range fts {
		names[i] = f.Name
	}
	return fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s);", t.FullTextTable(), strings.Join(names, ", "))
}
