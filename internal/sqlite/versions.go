package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// Delete removes the roots matching the criteria together with their
// owned rows, in one transaction. Versioned types refuse: their history
// is append-only and only Squash may drop rows.
func (b *Backend) Delete(ctx context.Context, typeName string, criteria types.Criteria, info *types.VersionInfo) (int64, error) {
	db, reg, err := b.session()
	if err != nil {
		return 0, err
	}
	root, err := b.rootType(reg, typeName)
	if err != nil {
		return 0, err
	}
	if root.Versioned {
		return 0, fmt.Errorf("deleting %s: %w", typeName, types.ErrVersionedType)
	}

	plan, err := compileFind(root, criteria, types.FindOptions{})
	if err != nil {
		return 0, fmt.Errorf("deleting %s: %w", typeName, err)
	}
	idField, _ := root.IdentityField()
	q := fmt.Sprintf("SELECT t.row_id, t.%s FROM %s AS t JOIN (%s) AS m ON t.row_id = m.row_id",
		idField.Name, root.Table(), plan.baseSQL)
	rows, err := db.QueryContext(ctx, q, plan.args...)
	if err != nil {
		return 0, fmt.Errorf("deleting %s: %w", typeName, err)
	}
	var rowIDs []int64
	var identities []string
	for rows.Next() {
		var id int64
		var identity string
		if err := rows.Scan(&id, &identity); err != nil {
			rows.Close()
			return 0, fmt.Errorf("deleting %s: %w", typeName, err)
		}
		rowIDs = append(rowIDs, id)
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("deleting %s: %w", typeName, err)
	}
	rows.Close()
	if len(rowIDs) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("deleting %s: beginning transaction: %w", typeName, err)
	}
	defer tx.Rollback()

	version, err := b.nextVersion(ctx, tx, info)
	if err != nil {
		return 0, fmt.Errorf("deleting %s: %w", typeName, err)
	}
	if err := b.deleteCascade(ctx, tx, root, rowIDs); err != nil {
		return 0, fmt.Errorf("deleting %s: %w: %w", typeName, types.ErrCascadeWrite, err)
	}
	for _, identity := range identities {
		if err := b.logChange(ctx, tx, version, types.ChangeDelete, typeName, identity); err != nil {
			return 0, fmt.Errorf("deleting %s: %w", typeName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("deleting %s: committing: %w", typeName, err)
	}

	b.log.Infow("documents deleted", "type", typeName, "count", len(rowIDs), "version", version)
	return int64(len(rowIDs)), nil
}

// Squash drops the superseded version rows of one identity, keeping only
// the current row. The version log keeps its entries; only entity rows go.
func (b *Backend) Squash(ctx context.Context, typeName, identity string, info *types.VersionInfo) (int64, error) {
	db, reg, err := b.session()
	if err != nil {
		return 0, err
	}
	root, err := b.rootType(reg, typeName)
	if err != nil {
		return 0, err
	}
	if !root.Versioned {
		return 0, fmt.Errorf("squashing %s: %w", typeName, types.ErrUnversionedType)
	}
	idField, _ := root.IdentityField()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("squashing %s %s: beginning transaction: %w", typeName, identity, err)
	}
	defer tx.Rollback()

	if _, found, err := currentRowID(ctx, tx, root, idField.Name, identity); err != nil {
		return 0, fmt.Errorf("squashing %s %s: %w", typeName, identity, err)
	} else if !found {
		return 0, fmt.Errorf("squashing %s %s: no current row: %w", typeName, identity, types.ErrIdentityConflict)
	}

	q := fmt.Sprintf("SELECT row_id FROM %s WHERE %s = ? AND valid_end != %d",
		root.Table(), idField.Name, types.VersionEndOpen)
	rows, err := tx.QueryContext(ctx, q, identity)
	if err != nil {
		return 0, fmt.Errorf("squashing %s %s: %w", typeName, identity, err)
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("squashing %s %s: %w", typeName, identity, err)
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("squashing %s %s: %w", typeName, identity, err)
	}
	rows.Close()

	if len(stale) > 0 {
		if err := b.deleteCascade(ctx, tx, root, stale); err != nil {
			return 0, fmt.Errorf("squashing %s %s: %w: %w", typeName, identity, types.ErrCascadeWrite, err)
		}
	}
	version, err := b.nextVersion(ctx, tx, info)
	if err != nil {
		return 0, fmt.Errorf("squashing %s %s: %w", typeName, identity, err)
	}
	if err := b.logChange(ctx, tx, version, types.ChangeSquash, typeName, identity); err != nil {
		return 0, fmt.Errorf("squashing %s %s: %w", typeName, identity, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("squashing %s %s: committing: %w", typeName, identity, err)
	}

	b.log.Infow("history squashed", "type", typeName, "identity", identity, "removed", len(stale))
	return int64(len(stale)), nil
}

// History returns the version stamps of one identity, newest first: each
// row's validity range joined with the audit entry of the write that
// created it.
func (b *Backend) History(ctx context.Context, typeName, identity string) ([]types.VersionStamp, error) {
	db, reg, err := b.session()
	if err != nil {
		return nil, err
	}
	root, err := b.rootType(reg, typeName)
	if err != nil {
		return nil, err
	}
	if !root.Versioned {
		return nil, fmt.Errorf("history of %s: %w", typeName, types.ErrUnversionedType)
	}
	idField, _ := root.IdentityField()

	q := fmt.Sprintf(`SELECT r.valid_start, r.valid_end, v.who, v.why, v.tag, v.at
FROM %s AS r LEFT JOIN strata_version_log AS v ON v.version = r.valid_start
WHERE r.%s = ? ORDER BY r.valid_start DESC`, root.Table(), idField.Name)

	rows, err := db.QueryContext(ctx, q, identity)
	if err != nil {
		return nil, fmt.Errorf("history of %s %s: %w", typeName, identity, err)
	}
	defer rows.Close()

	var out []types.VersionStamp
	for rows.Next() {
		var s types.VersionStamp
		var who, why, tag, at *string
		if err := rows.Scan(&s.ValidStart, &s.ValidEnd, &who, &why, &tag, &at); err != nil {
			return nil, fmt.Errorf("history of %s %s: %w", typeName, identity, err)
		}
		s.Version = s.ValidStart
		s.Current = s.ValidEnd == types.VersionEndOpen
		if who != nil {
			s.Who = *who
		}
		if why != nil {
			s.Why = *why
		}
		if tag != nil {
			s.Tag = *tag
		}
		if at != nil {
			s.At = *at
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history of %s %s: %w", typeName, identity, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("history of %s %s: %w", typeName, identity, types.ErrNotFound)
	}
	return out, nil
}

// Versions returns recent audit log entries, newest first. Limit zero
// means all.
func (b *Backend) Versions(ctx context.Context, limit int64) ([]types.VersionInfo, error) {
	db, _, err := b.session()
	if err != nil {
		return nil, err
	}

	q := "SELECT version, who, origin, why, tag, at, revert FROM strata_version_log ORDER BY version DESC"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var out []types.VersionInfo
	for rows.Next() {
		var v types.VersionInfo
		if err := rows.Scan(&v.Version, &v.Who, &v.Where, &v.Why, &v.Tag, &v.At, &v.Revert); err != nil {
			return nil, fmt.Errorf("listing versions: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	return out, nil
}
