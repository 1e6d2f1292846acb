package types

// Op identifies a criteria operator. The set is closed: equality, SQL
// LIKE pattern match, and full-text match.
type Op string

// Supported criteria operators.
const (
	OpEquals Op = "="
	OpLike   Op = "like"
	OpMatch  Op = "match"
)

// Cond pairs an operator with its operand.
type Cond struct {
	Op    Op
	Value any
}

// Criteria maps field paths to conditions. A bare field name resolves on
// the target type first, then up its owner chain; a dotted path descends
// through owning fields into part types ("members.name").
type Criteria map[string]Cond

// Eq builds an equality condition.
func Eq(value any) Cond { return Cond{Op: OpEquals, Value: value} }

// Like builds a pattern-match condition. Wildcards are passed through to
// SQL LIKE unchanged.
func Like(pattern string) Cond { return Cond{Op: OpLike, Value: pattern} }

// Match builds a full-text condition. A term with a leading '+' is
// required; bare terms are optional.
func Match(query string) Cond { return Cond{Op: OpMatch, Value: query} }

// FindOptions carries ordering, pagination, and version selection for read
// operations. The zero value means: stable row order, no limit, current
// version.
type FindOptions struct {
	// OrderBy lists order terms, each a field name optionally followed by
	// " desc". Fields must live on the target type.
	OrderBy []string

	// Offset and Limit count distinct root entities, not joined rows.
	// Limit zero means unlimited.
	Offset int64
	Limit  int64

	// AsOfVersion selects the version visible at the given global version
	// number. Zero means the current version.
	AsOfVersion int64
}
