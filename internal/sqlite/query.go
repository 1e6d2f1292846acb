package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Get returns the root entity with the given identity, children populated.
// For versioned types this is the current version.
func (b *Backend) Get(ctx context.Context, typeName, identity string) (*types.Stored, error) {
	db, reg, err := b.session()
	if err != nil {
		return nil, err
	}
	root, err := b.rootType(reg, typeName)
	if err != nil {
		return nil, err
	}
	idField, _ := root.IdentityField()

	verExpr := "0"
	q := fmt.Sprintf("SELECT row_id, %s, json FROM %s WHERE %s = ?", verExpr, root.Table(), idField.Name)
	if root.Versioned {
		verExpr = "valid_start"
		q = fmt.Sprintf("SELECT row_id, %s, json FROM %s WHERE %s = ? AND valid_end = %d",
			verExpr, root.Table(), idField.Name, types.VersionEndOpen)
	}

	var rowID, version int64
	var raw string
	err = db.QueryRowContext(ctx, q, identity).Scan(&rowID, &version, &raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("getting %s %s: %w", typeName, identity, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", typeName, identity, err)
	}
	doc, err := decodeDoc(raw)
	if err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", typeName, identity, err)
	}

	st := &types.Stored{RowID: rowID, Identity: identity, Version: version, Doc: doc}
	if err := assembleParts(ctx, db, reg, root, []*types.Stored{st}); err != nil {
		return nil, fmt.Errorf("getting %s %s: %w", typeName, identity, err)
	}
	return st, nil
}

// Find returns exactly one entity matching the criteria: zero matches is
// ErrNotFound, more than one is ErrAmbiguousMatch.
func (b *Backend) Find(ctx context.Context, typeName string, criteria types.Criteria, opts types.FindOptions) (*types.Stored, error) {
	probe := opts
	probe.Offset = 0
	probe.Limit = 2
	matches, err := b.Search(ctx, typeName, criteria, probe)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("finding %s: %w", typeName, types.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("finding %s: %w", typeName, types.ErrAmbiguousMatch)
	}
}

// Search returns all entities matching the criteria, children populated,
// in the requested order. Limit and offset count distinct target rows,
// not join rows, so a root with many matching children still consumes one
// slot of the page.
func (b *Backend) Search(ctx context.Context, typeName string, criteria types.Criteria, opts types.FindOptions) ([]*types.Stored, error) {
	db, reg, err := b.session()
	if err != nil {
		return nil, err
	}
	target, err := b.entityType(reg, typeName)
	if err != nil {
		return nil, err
	}
	if opts.AsOfVersion != 0 && !target.Root().Versioned {
		return nil, fmt.Errorf("searching %s: %w", typeName, types.ErrUnversionedType)
	}

	plan, err := compileFind(target, criteria, opts)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", typeName, err)
	}

	stored, err := b.runPlan(ctx, db, target, plan)
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", typeName, err)
	}
	if err := assembleParts(ctx, db, reg, target, stored); err != nil {
		return nil, fmt.Errorf("searching %s: %w", typeName, err)
	}
	return stored, nil
}

// runPlan executes a compiled row-id plan and scans the matched target
// rows. The outer query joins the target table back to the plan's row ids
// and repeats the plan's ordering.
func (b *Backend) runPlan(ctx context.Context, db *sql.DB, target *schema.EntityType, plan *queryPlan) ([]*types.Stored, error) {
	idExpr := "''"
	if f, ok := target.IdentityField(); ok {
		idExpr = "t." + f.Name
	}
	verExpr := "0"
	if target.Versioned {
		verExpr = "t.valid_start"
	}
	q := fmt.Sprintf("SELECT t.row_id, %s, %s, t.json FROM %s AS t JOIN (%s) AS m ON t.row_id = m.row_id ORDER BY %s",
		idExpr, verExpr, target.Table(), plan.baseSQL, strings.Join(plan.orderBy, ", "))

	rows, err := db.QueryContext(ctx, q, plan.args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", target.Name, err)
	}
	defer rows.Close()

	var out []*types.Stored
	for rows.Next() {
		var rowID, version int64
		var identity sql.NullString
		var raw string
		if err := rows.Scan(&rowID, &identity, &version, &raw); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", target.Name, err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, &types.Stored{RowID: rowID, Identity: identity.String, Version: version, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying %s: %w", target.Name, err)
	}
	return out, nil
}

// Records returns flat row-level projections of the named field paths.
// Unlike Search, joined one-to-many fields multiply rows and pagination
// counts those rows.
func (b *Backend) Records(ctx context.Context, typeName string, fields []string, criteria types.Criteria, opts types.FindOptions) ([]map[string]any, error) {
	db, reg, err := b.session()
	if err != nil {
		return nil, err
	}
	target, err := b.entityType(reg, typeName)
	if err != nil {
		return nil, err
	}

	q, args, err := compileRecords(target, fields, criteria, opts)
	if err != nil {
		return nil, fmt.Errorf("selecting %s records: %w", typeName, err)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting %s records: %w", typeName, err)
	}
	defer rows.Close()

	var out []map[string]any
	vals := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s records: %w", typeName, err)
		}
		rec := make(map[string]any, len(fields))
		for i, f := range fields {
			rec[f] = normalizeScan(vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("selecting %s records: %w", typeName, err)
	}
	return out, nil
}

// normalizeScan converts driver scan values to JSON-friendly Go values.
func normalizeScan(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// Count returns the number of distinct target rows matching the criteria.
func (b *Backend) Count(ctx context.Context, typeName string, criteria types.Criteria) (int64, error) {
	db, reg, err := b.session()
	if err != nil {
		return 0, err
	}
	target, err := b.entityType(reg, typeName)
	if err != nil {
		return 0, err
	}

	q, args, err := compileCount(target, criteria, 0)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", typeName, err)
	}
	var n int64
	if err := db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", typeName, err)
	}
	return n, nil
}

// Export writes the current documents of a type to w as JSONL, one Stored
// per line, ordered by row id.
func (b *Backend) Export(ctx context.Context, typeName string, w io.Writer) (int64, error) {
	all, err := b.Search(ctx, typeName, nil, types.FindOptions{})
	if err != nil {
		return 0, fmt.Errorf("exporting %s: %w", typeName, err)
	}
	enc := json.NewEncoder(w)
	var n int64
	for _, st := range all {
		if err := enc.Encode(st); err != nil {
			return n, fmt.Errorf("exporting %s: %w", typeName, err)
		}
		n++
	}
	b.log.Infow("export complete", "type", typeName, "documents", n)
	return n, nil
}
