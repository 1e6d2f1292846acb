package sqlite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// queryPlan is a compiled criteria query. baseSQL selects one row id per
// distinct target row, with ordering and pagination already applied;
// orderBy carries the order expressions so callers can repeat them over
// the joined result.
type queryPlan struct {
	baseSQL string
	args    []any
	orderBy []string
}

// compileFind builds the row-id subquery for a find over the target type.
// Fan-out from joined parts and satellites is collapsed by grouping on the
// target row id, so limit and offset count distinct target rows rather
// than join rows.
func compileFind(target *schema.EntityType, criteria types.Criteria, opts types.FindOptions) (*queryPlan, error) {
	pb := newPlanBuilder(target)

	preds, args, err := buildPredicates(pb, criteria)
	if err != nil {
		return nil, err
	}
	vp, vargs := versionPredicate(pb, opts.AsOfVersion)
	if vp != "" {
		preds = append(preds, vp)
		args = append(args, vargs...)
	}

	orderBy, err := orderTerms(target, opts.OrderBy)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT t.row_id FROM ")
	sb.WriteString(target.Table())
	sb.WriteString(" AS t")
	for _, j := range pb.joins {
		sb.WriteString(" JOIN ")
		sb.WriteString(j.table)
		sb.WriteString(" AS ")
		sb.WriteString(j.alias)
		sb.WriteString(" ON ")
		sb.WriteString(j.cond)
	}
	if len(preds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(preds, " AND "))
	}
	sb.WriteString(" GROUP BY t.row_id ORDER BY ")
	sb.WriteString(strings.Join(orderBy, ", "))

	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, fmt.Errorf("limit and offset must not be negative: %w", types.ErrInvalidFilter)
	}
	switch {
	case opts.Limit > 0 && opts.Offset > 0:
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", opts.Limit, opts.Offset)
	case opts.Limit > 0:
		fmt.Fprintf(&sb, " LIMIT %d", opts.Limit)
	case opts.Offset > 0:
		fmt.Fprintf(&sb, " LIMIT -1 OFFSET %d", opts.Offset)
	}

	return &queryPlan{baseSQL: sb.String(), args: args, orderBy: orderBy}, nil
}

// compileCount builds a count of distinct target rows matching the
// criteria. Ordering and pagination do not apply.
func compileCount(target *schema.EntityType, criteria types.Criteria, asOf int64) (string, []any, error) {
	pb := newPlanBuilder(target)

	preds, args, err := buildPredicates(pb, criteria)
	if err != nil {
		return "", nil, err
	}
	vp, vargs := versionPredicate(pb, asOf)
	if vp != "" {
		preds = append(preds, vp)
		args = append(args, vargs...)
	}

	var sb strings.Builder
	sb.WriteString("SELECT COUNT(DISTINCT t.row_id) FROM ")
	sb.WriteString(target.Table())
	sb.WriteString(" AS t")
	for _, j := range pb.joins {
		sb.WriteString(" JOIN ")
		sb.WriteString(j.table)
		sb.WriteString(" AS ")
		sb.WriteString(j.alias)
		sb.WriteString(" ON ")
		sb.WriteString(j.cond)
	}
	if len(preds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(preds, " AND "))
	}
	return sb.String(), args, nil
}

// compileRecords builds a flat projection of the named field paths. Rows
// are not collapsed: an array field or a joined part multiplies output
// rows, and limit and offset count those rows.
func compileRecords(target *schema.EntityType, fields []string, criteria types.Criteria, opts types.FindOptions) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("records needs at least one field: %w", types.ErrInvalidFilter)
	}
	pb := newPlanBuilder(target)

	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		term, err := pb.resolveField(f)
		if err != nil {
			return "", nil, err
		}
		expr := term.expr()
		if term.spec.Kind == schema.KindArray {
			expr = pb.satelliteJoin(term) + ".value"
		}
		cols = append(cols, expr)
	}

	preds, args, err := buildPredicates(pb, criteria)
	if err != nil {
		return "", nil, err
	}
	vp, vargs := versionPredicate(pb, opts.AsOfVersion)
	if vp != "" {
		preds = append(preds, vp)
		args = append(args, vargs...)
	}

	orderBy, err := orderTerms(target, opts.OrderBy)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(target.Table())
	sb.WriteString(" AS t")
	for _, j := range pb.joins {
		sb.WriteString(" JOIN ")
		sb.WriteString(j.table)
		sb.WriteString(" AS ")
		sb.WriteString(j.alias)
		sb.WriteString(" ON ")
		sb.WriteString(j.cond)
	}
	if len(preds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(preds, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(orderBy, ", "))

	if opts.Limit < 0 || opts.Offset < 0 {
		return "", nil, fmt.Errorf("limit and offset must not be negative: %w", types.ErrInvalidFilter)
	}
	switch {
	case opts.Limit > 0 && opts.Offset > 0:
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", opts.Limit, opts.Offset)
	case opts.Limit > 0:
		fmt.Fprintf(&sb, " LIMIT %d", opts.Limit)
	case opts.Offset > 0:
		fmt.Fprintf(&sb, " LIMIT -1 OFFSET %d", opts.Offset)
	}

	return sb.String(), args, nil
}

// buildPredicates resolves every criteria term and renders its SQL
// predicate, adding joins to the builder as field paths require them.
// Terms are processed in sorted path order so the generated SQL is
// deterministic.
func buildPredicates(pb *planBuilder, criteria types.Criteria) ([]string, []any, error) {
	paths := make([]string, 0, len(criteria))
	for p := range criteria {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var preds []string
	var args []any
	for _, path := range paths {
		cond := criteria[path]
		term, err := pb.resolveField(path)
		if err != nil {
			return nil, nil, err
		}
		switch cond.Op {
		case types.OpEquals:
			expr := term.expr()
			if term.spec.Kind == schema.KindArray {
				expr = pb.satelliteJoin(term) + ".value"
			}
			preds = append(preds, expr+" = ?")
			args = append(args, cond.Value)
		case types.OpLike:
			expr := term.expr()
			if term.spec.Kind == schema.KindArray {
				expr = pb.satelliteJoin(term) + ".value"
			}
			preds = append(preds, expr+" LIKE ?")
			args = append(args, cond.Value)
		case types.OpMatch:
			if term.spec.Kind != schema.KindFullText {
				return nil, nil, fmt.Errorf("field %s is not full-text indexed: %w", path, types.ErrInvalidFilter)
			}
			raw, ok := cond.Value.(string)
			if !ok {
				return nil, nil, fmt.Errorf("match on %s needs a string query: %w", path, types.ErrInvalidFilter)
			}
			q, err := buildMatchQuery(raw)
			if err != nil {
				return nil, nil, err
			}
			fts := term.et.FullTextTable()
			preds = append(preds, fmt.Sprintf("%s.row_id IN (SELECT rowid FROM %s WHERE %s MATCH ?)",
				term.alias, fts, fts))
			args = append(args, fmt.Sprintf("%s : (%s)", term.spec.Name, q))
		default:
			return nil, nil, fmt.Errorf("unknown operator %q on %s: %w", cond.Op, path, types.ErrInvalidFilter)
		}
	}
	return preds, args, nil
}

// versionPredicate restricts a query over a versioned tree to one point in
// version time, anchored on the root table. asOf zero means the current
// version. Unversioned trees need no predicate.
func versionPredicate(pb *planBuilder, asOf int64) (string, []any) {
	root := pb.target.Root()
	if !root.Versioned {
		return "", nil
	}
	ra := pb.rootAlias()
	if asOf == 0 {
		return fmt.Sprintf("%s.valid_end = %d", ra, types.VersionEndOpen), nil
	}
	return fmt.Sprintf("%s.valid_start <= ? AND %s.valid_end > ?", ra, ra), []any{asOf, asOf}
}

// orderTerms validates and renders the order-by fields against the target
// type. Each entry is a field name with an optional "desc" or "asc"
// suffix; the default order is by row id, which follows insertion.
func orderTerms(target *schema.EntityType, orderBy []string) ([]string, error) {
	if len(orderBy) == 0 {
		return []string{"t.row_id"}, nil
	}
	out := make([]string, 0, len(orderBy))
	for _, o := range orderBy {
		name := o
		dir := ""
		if i := strings.IndexByte(o, ' '); i >= 0 {
			name = o[:i]
			switch strings.ToLower(strings.TrimSpace(o[i+1:])) {
			case "desc":
				dir = " DESC"
			case "asc":
				dir = ""
			default:
				return nil, fmt.Errorf("bad order direction in %q: %w", o, types.ErrInvalidFilter)
			}
		}
		f, ok := target.Field(name)
		if !ok {
			return nil, fmt.Errorf("order field %s not found on %s: %w", name, target.Name, types.ErrInvalidFilter)
		}
		if f.Kind == schema.KindArray {
			return nil, fmt.Errorf("cannot order by array field %s: %w", name, types.ErrInvalidFilter)
		}
		out = append(out, fieldTerm{et: target, alias: "t", spec: f}.expr()+dir)
	}
	return out, nil
}
