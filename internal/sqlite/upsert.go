package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Put stores a root document and its owned parts as one atomic cascade.
// The identity field resolves which tree the write lands on: a fresh or
// unseen identity inserts, a known one updates in place, and for versioned
// types an update closes the current rows and appends new ones instead.
// The returned Stored carries the assigned identity and, for versioned
// types, the version the write produced.
func (b *Backend) Put(ctx context.Context, typeName string, doc any, info *types.VersionInfo) (*types.Stored, error) {
	db, reg, err := b.session()
	if err != nil {
		return nil, err
	}
	root, err := b.rootType(reg, typeName)
	if err != nil {
		return nil, err
	}

	d, err := normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("putting %s: %w", typeName, err)
	}

	idField, _ := root.IdentityField()
	idStep := idField.JSONSteps()[0]
	identity := ""
	if v, ok := lookupPath(d, idStep); ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("putting %s: identity field %s must be a string", typeName, idField.Name)
		}
		identity = s
	}
	if identity == "" {
		identity = generateIdentity()
		setPath(d, idStep, identity)
	}

	tree, err := buildTree(root, d)
	if err != nil {
		return nil, fmt.Errorf("putting %s %s: %w", typeName, identity, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("putting %s %s: beginning transaction: %w", typeName, identity, err)
	}
	defer tx.Rollback()

	version, err := b.nextVersion(ctx, tx, info)
	if err != nil {
		return nil, fmt.Errorf("putting %s %s: %w", typeName, identity, err)
	}

	existing, found, err := currentRowID(ctx, tx, root, idField.Name, identity)
	if err != nil {
		return nil, fmt.Errorf("putting %s %s: %w", typeName, identity, err)
	}

	op := types.ChangeInsert
	var rowID int64
	switch {
	case !found:
		rowID, err = b.insertTree(ctx, tx, tree, version)
	case root.Versioned:
		op = types.ChangeUpdate
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET valid_end = ? WHERE row_id = ?", root.Table()),
			version, existing)
		if err == nil {
			rowID, err = b.insertTree(ctx, tx, tree, version)
		}
	default:
		op = types.ChangeUpdate
		rowID = existing
		err = b.updateNode(ctx, tx, tree, existing, existing, []*node{tree})
	}
	if err != nil {
		if isUniqueViolation(err, root.Table()) {
			return nil, fmt.Errorf("putting %s %s: %w: %w", typeName, identity, types.ErrIdentityConflict, err)
		}
		return nil, fmt.Errorf("putting %s %s: %w: %w", typeName, identity, types.ErrCascadeWrite, err)
	}

	if err := b.logChange(ctx, tx, version, op, typeName, identity); err != nil {
		return nil, fmt.Errorf("putting %s %s: %w", typeName, identity, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("putting %s %s: committing: %w", typeName, identity, err)
	}

	b.log.Infow("document stored", "type", typeName, "identity", identity, "op", op, "version", version)
	st := &types.Stored{RowID: rowID, Identity: identity, Doc: d}
	if root.Versioned {
		st.Version = version
	}
	return st, nil
}

// nextVersion allocates the next version number by appending to the
// version log. Every write operation gets one, versioned or not, so the
// audit trail is complete and version numbers order all writes.
func (b *Backend) nextVersion(ctx context.Context, tx *sql.Tx, info *types.VersionInfo) (int64, error) {
	var who, where, why, tag string
	revert := false
	if info != nil {
		who, where, why, tag, revert = info.Who, info.Where, info.Why, info.Tag, info.Revert
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO strata_version_log (who, origin, why, tag, at, revert) VALUES (?, ?, ?, ?, ?, ?)",
		who, where, why, tag, rfc3339(b.now()), revert)
	if err != nil {
		return 0, fmt.Errorf("allocating version: %w", err)
	}
	v, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("allocating version: %w", err)
	}
	return v, nil
}

// logChange appends one change-log entry for a committed-to-be write.
func (b *Backend) logChange(ctx context.Context, tx *sql.Tx, version int64, op, entity, identity string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO strata_change_log (version, op, entity, identity) VALUES (?, ?, ?, ?)",
		version, op, entity, identity)
	if err != nil {
		return fmt.Errorf("logging change: %w", err)
	}
	return nil
}

// currentRowID finds the row a root identity currently resolves to. For
// versioned types only the open row counts.
func currentRowID(ctx context.Context, tx *sql.Tx, root *schema.EntityType, idCol, identity string) (int64, bool, error) {
	q := fmt.Sprintf("SELECT row_id FROM %s WHERE %s = ?", root.Table(), idCol)
	if root.Versioned {
		q += fmt.Sprintf(" AND valid_end = %d", types.VersionEndOpen)
	}
	var rowID int64
	err := tx.QueryRowContext(ctx, q, identity).Scan(&rowID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolving identity: %w", err)
	}
	return rowID, true, nil
}

// insertTree inserts a whole decomposed tree: the root row, its index
// rows, and every part row underneath with owner links and item order.
func (b *Backend) insertTree(ctx context.Context, tx *sql.Tx, n *node, version int64) (int64, error) {
	own, err := n.ownJSON()
	if err != nil {
		return 0, err
	}
	cols := []string{"json"}
	args := []any{own}
	if n.et.Versioned {
		cols = append(cols, "valid_start", "valid_end")
		args = append(args, version, types.VersionEndOpen)
	}
	res, err := tx.ExecContext(ctx, insertSQL(n.et.Table(), cols), args...)
	if err != nil {
		return 0, fmt.Errorf("inserting %s: %w", n.et.Name, err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("inserting %s: %w", n.et.Name, err)
	}
	if err := b.insertIndexRows(ctx, tx, n, rowID); err != nil {
		return 0, err
	}
	if err := b.insertChildren(ctx, tx, n, rowID, rowID, []*node{n}); err != nil {
		return 0, err
	}
	return rowID, nil
}

// insertChildren inserts every child node of parent, recursively, keeping
// document order as item order. chain runs root-first and feeds external
// field resolution.
func (b *Backend) insertChildren(ctx context.Context, tx *sql.Tx, parent *node, rootID, parentRowID int64, chain []*node) error {
	for _, pf := range parent.et.Parts {
		for i, c := range parent.children[pf.Field] {
			childChain := append(chain[:len(chain):len(chain)], c)
			rowID, err := b.insertPart(ctx, tx, c, rootID, parentRowID, i, childChain)
			if err != nil {
				return err
			}
			if err := b.insertIndexRows(ctx, tx, c, rowID); err != nil {
				return err
			}
			if err := b.insertChildren(ctx, tx, c, rootID, rowID, childChain); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertPart inserts one part row with its owner links and materialized
// external columns.
func (b *Backend) insertPart(ctx context.Context, tx *sql.Tx, n *node, rootID, containerID int64, order int, chain []*node) (int64, error) {
	own, err := n.ownJSON()
	if err != nil {
		return 0, err
	}
	cols := []string{"json", "root_row_id", "container_row_id", "item_order"}
	args := []any{own, rootID, containerID, order}
	for _, f := range n.et.ExternalFields() {
		v, err := externalValue(chain, f)
		if err != nil {
			return 0, fmt.Errorf("inserting %s: %w", n.et.Name, err)
		}
		cols = append(cols, f.Name)
		args = append(args, v)
	}
	res, err := tx.ExecContext(ctx, insertSQL(n.et.Table(), cols), args...)
	if err != nil {
		return 0, fmt.Errorf("inserting %s: %w", n.et.Name, err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("inserting %s: %w", n.et.Name, err)
	}
	return rowID, nil
}

// insertIndexRows writes the satellite and full-text rows for one node.
func (b *Backend) insertIndexRows(ctx context.Context, tx *sql.Tx, n *node, rowID int64) error {
	for _, f := range n.et.ArrayFields() {
		vals, err := arrayValues(n, f)
		if err != nil {
			return err
		}
		q := fmt.Sprintf("INSERT INTO %s (owner_row_id, item_order, value) VALUES (?, ?, ?)",
			n.et.SatelliteTable(f.Name))
		for i, v := range vals {
			if _, err := tx.ExecContext(ctx, q, rowID, i, v); err != nil {
				return fmt.Errorf("indexing %s.%s: %w", n.et.Name, f.Name, err)
			}
		}
	}
	fts := n.et.FullTextFields()
	if len(fts) == 0 {
		return nil
	}
	cols := []string{"rowid"}
	args := []any{rowID}
	for _, f := range fts {
		cols = append(cols, f.Name)
		args = append(args, ftsText(n.doc, f))
	}
	if _, err := tx.ExecContext(ctx, insertSQL(n.et.FullTextTable(), cols), args...); err != nil {
		return fmt.Errorf("indexing %s full-text: %w", n.et.Name, err)
	}
	return nil
}

// deleteIndexRows removes the satellite and full-text rows of the given
// node rows.
func (b *Backend) deleteIndexRows(ctx context.Context, tx *sql.Tx, et *schema.EntityType, rowIDs []int64) error {
	if len(rowIDs) == 0 {
		return nil
	}
	marks, args := idArgs(rowIDs)
	for _, f := range et.ArrayFields() {
		q := fmt.Sprintf("DELETE FROM %s WHERE owner_row_id IN (%s)", et.SatelliteTable(f.Name), marks)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("unindexing %s.%s: %w", et.Name, f.Name, err)
		}
	}
	if len(et.FullTextFields()) > 0 {
		q := fmt.Sprintf("DELETE FROM %s WHERE rowid IN (%s)", et.FullTextTable(), marks)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("unindexing %s full-text: %w", et.Name, err)
		}
	}
	return nil
}

// updateNode rewrites one existing node in place and reconciles its
// children against the incoming document. Children are matched by
// position: shared positions update and keep their row identifiers,
// trailing rows beyond the incoming count are deleted with their
// descendants, and extra incoming children insert as new rows.
func (b *Backend) updateNode(ctx context.Context, tx *sql.Tx, n *node, rowID, rootID int64, chain []*node) error {
	own, err := n.ownJSON()
	if err != nil {
		return err
	}
	set := []string{"json = ?"}
	args := []any{own}
	for _, f := range n.et.ExternalFields() {
		v, err := externalValue(chain, f)
		if err != nil {
			return fmt.Errorf("updating %s: %w", n.et.Name, err)
		}
		set = append(set, f.Name+" = ?")
		args = append(args, v)
	}
	args = append(args, rowID)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE row_id = ?", n.et.Table(), strings.Join(set, ", "))
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("updating %s: %w", n.et.Name, err)
	}

	if err := b.deleteIndexRows(ctx, tx, n.et, []int64{rowID}); err != nil {
		return err
	}
	if err := b.insertIndexRows(ctx, tx, n, rowID); err != nil {
		return err
	}

	for _, pf := range n.et.Parts {
		pt, _ := n.et.PartType(pf.Field)
		existing, err := childRowIDs(ctx, tx, pt, rowID)
		if err != nil {
			return err
		}
		next := n.children[pf.Field]
		shared := min(len(existing), len(next))
		for i := 0; i < shared; i++ {
			childChain := append(chain[:len(chain):len(chain)], next[i])
			if err := b.updateNode(ctx, tx, next[i], existing[i], rootID, childChain); err != nil {
				return err
			}
		}
		if len(existing) > shared {
			if err := b.deleteCascade(ctx, tx, pt, existing[shared:]); err != nil {
				return err
			}
		}
		for i := shared; i < len(next); i++ {
			childChain := append(chain[:len(chain):len(chain)], next[i])
			childID, err := b.insertPart(ctx, tx, next[i], rootID, rowID, i, childChain)
			if err != nil {
				return err
			}
			if err := b.insertIndexRows(ctx, tx, next[i], childID); err != nil {
				return err
			}
			if err := b.insertChildren(ctx, tx, next[i], rootID, childID, childChain); err != nil {
				return err
			}
		}
	}
	return nil
}

// childRowIDs lists the part rows directly under a container, in item
// order.
func childRowIDs(ctx context.Context, tx *sql.Tx, pt *schema.EntityType, containerID int64) ([]int64, error) {
	q := fmt.Sprintf("SELECT row_id FROM %s WHERE container_row_id = ? ORDER BY item_order", pt.Table())
	rows, err := tx.QueryContext(ctx, q, containerID)
	if err != nil {
		return nil, fmt.Errorf("listing %s parts: %w", pt.Name, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("listing %s parts: %w", pt.Name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s parts: %w", pt.Name, err)
	}
	return ids, nil
}

// deleteCascade removes node rows and everything underneath them:
// descendant part rows first, then index rows, then the rows themselves.
func (b *Backend) deleteCascade(ctx context.Context, tx *sql.Tx, et *schema.EntityType, rowIDs []int64) error {
	if len(rowIDs) == 0 {
		return nil
	}
	marks, args := idArgs(rowIDs)
	for _, pf := range et.Parts {
		pt, _ := et.PartType(pf.Field)
		q := fmt.Sprintf("SELECT row_id FROM %s WHERE container_row_id IN (%s)", pt.Table(), marks)
		rows, err := tx.QueryContext(ctx, q, args...)
		if err != nil {
			return fmt.Errorf("listing %s parts: %w", pt.Name, err)
		}
		var childIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("listing %s parts: %w", pt.Name, err)
			}
			childIDs = append(childIDs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("listing %s parts: %w", pt.Name, err)
		}
		rows.Close()
		if err := b.deleteCascade(ctx, tx, pt, childIDs); err != nil {
			return err
		}
	}
	if err := b.deleteIndexRows(ctx, tx, et, rowIDs); err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE row_id IN (%s)", et.Table(), marks)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("deleting %s rows: %w", et.Name, err)
	}
	return nil
}

// setPath writes a value into a document at a single-valued path,
// creating intermediate objects as needed.
func setPath(doc types.Document, step string, v any) {
	segs, err := schema.ParseStep(step)
	if err != nil || len(segs) == 0 {
		return
	}
	m := map[string]any(doc)
	for _, seg := range segs[:len(segs)-1] {
		child, ok := m[seg.Key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[seg.Key] = child
		}
		m = child
	}
	m[segs[len(segs)-1].Key] = v
}

// insertSQL renders an INSERT statement with one placeholder per column.
func insertSQL(table string, cols []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
}

// idArgs renders placeholders and args for an IN clause over row ids.
func idArgs(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// isUniqueViolation reports whether an error is a unique-index failure on
// the given table. Put maps violations on the root's unique columns to an
// identity conflict; any other constraint failure inside the cascade stays
// a cascade write failure. The driver exposes constraint class only in the
// error text, so the text is matched.
func isUniqueViolation(err error, table string) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: "+table+".")
}
