package schema

import (
	"errors"
	"strings"
)

// ErrInvalidMetadata is the sentinel for malformed or unresolvable type
// declarations. All Declare and Resolve failures wrap it; callers match
// with errors.Is. Metadata errors are fatal at startup and never retried.
var ErrInvalidMetadata = errors.New("invalid entity metadata")

// StorageKind says how a field is stored. The set is closed; the schema
// compiler and query planner switch over it.
type StorageKind int

const (
	// KindPayload fields live only inside the JSON document.
	KindPayload StorageKind = iota

	// KindScalar fields are projected into a generated, indexed column.
	KindScalar

	// KindUnique fields are KindScalar with a unique index.
	KindUnique

	// KindArray fields hold multiple values per row; they are stored in a
	// satellite table, one row per element.
	KindArray

	// KindFullText fields feed the type's full-text index.
	KindFullText

	// KindExternal fields materialize a value from an owner's document
	// into a plain indexed column at write time.
	KindExternal
)

// String returns the kind name used in error messages and model files.
func (k StorageKind) String() string {
	switch k {
	case KindPayload:
		return "payload"
	case KindScalar:
		return "scalar-index"
	case KindUnique:
		return "unique-index"
	case KindArray:
		return "array-index"
	case KindFullText:
		return "full-text"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// ValueType is the SQLite column affinity of an indexed field.
type ValueType string

// Supported value types.
const (
	TypeText    ValueType = "TEXT"
	TypeInteger ValueType = "INTEGER"
	TypeReal    ValueType = "REAL"
)

// FieldSpec declares one field of an entity type: the storage column name,
// how it is stored, its column affinity, and where its value comes from.
//
// Paths lists JSON-path steps. A leading run of ".." steps climbs to the
// owner (one step per level); the remaining steps are JSON paths into the
// reached document ("$.address", "$.members[*]"). A "[*]" segment unwinds
// an array and continues into each element. Empty Paths defaults to
// "$.<name>".
type FieldSpec struct {
	Name  string
	Kind  StorageKind
	Type  ValueType
	Paths []string
}

// EffectivePaths returns the declared paths, or the single default path
// derived from the field name.
func (f FieldSpec) EffectivePaths() []string {
	if len(f.Paths) > 0 {
		return f.Paths
	}
	return []string{"$." + f.Name}
}

// Climbs returns how many owner levels the field's paths climb.
func (f FieldSpec) Climbs() int {
	n := 0
	for _, p := range f.EffectivePaths() {
		if p != climbStep {
			break
		}
		n++
	}
	return n
}

// JSONSteps returns the paths with leading climb steps stripped.
func (f FieldSpec) JSONSteps() []string {
	return f.EffectivePaths()[f.Climbs():]
}

// Indexed reports whether the field owns a queryable column or index.
func (f FieldSpec) Indexed() bool {
	return f.Kind != KindPayload
}

// PartField declares an owning field: the document key under which a part
// type's instances are embedded, and whether the field holds an array of
// parts or a single part object.
type PartField struct {
	Field    string
	TypeName string
	Array    bool
}

// EntityType is a named schema descriptor. Declare instances on a Registry,
// then Resolve; afterwards the descriptor is immutable and safe for
// concurrent reads.
type EntityType struct {
	// Name identifies the type ("Company"). Table names derive from it.
	Name string

	// Fields lists the declared fields in order.
	Fields []FieldSpec

	// Identity names the field holding the durable identity value. Empty
	// for part types, which have no independent identity.
	Identity string

	// Owner names the type this one is a part of. Empty for roots.
	Owner string

	// Versioned roots keep bitemporal history: writes append version rows
	// instead of mutating prior ones. Only valid on roots.
	Versioned bool

	// Parts lists this type's owning fields.
	Parts []PartField

	table     string
	owner     *EntityType
	partTypes map[string]*EntityType
	fields    map[string]int
	depth     int
	resolved  bool
}

const climbStep = ".."

// tablePrefix starts every generated table name, keeping entity tables
// clear of user-facing names and SQL keywords.
const tablePrefix = "st_"

// Table returns the SQL table name for the type. Valid after Resolve.
func (t *EntityType) Table() string { return t.table }

// IsRoot reports whether the type has no owner.
func (t *EntityType) IsRoot() bool { return t.Owner == "" }

// OwnerType returns the resolved owner, or nil for roots.
func (t *EntityType) OwnerType() *EntityType { return t.owner }

// Root climbs the owner chain to the root type.
func (t *EntityType) Root() *EntityType {
	r := t
	for r.owner != nil {
		r = r.owner
	}
	return r
}

// Depth returns the ownership depth: zero for roots.
func (t *EntityType) Depth() int { return t.depth }

// Field returns the named field spec.
func (t *EntityType) Field(name string) (FieldSpec, bool) {
	i, ok := t.fields[name]
	if !ok {
		return FieldSpec{}, false
	}
	return t.Fields[i], true
}

// PartType returns the resolved part type embedded under the given owning
// field.
func (t *EntityType) PartType(field string) (*EntityType, bool) {
	pt, ok := t.partTypes[field]
	return pt, ok
}

// PartFieldOf returns the owning field declaration for the given field name.
func (t *EntityType) PartFieldOf(field string) (PartField, bool) {
	for _, p := range t.Parts {
		if p.Field == field {
			return p, true
		}
	}
	return PartField{}, false
}

// ArrayFields returns the KindArray fields in declaration order.
func (t *EntityType) ArrayFields() []FieldSpec {
	return t.fieldsOfKind(KindArray)
}

// FullTextFields returns the KindFullText fields in declaration order.
func (t *EntityType) FullTextFields() []FieldSpec {
	return t.fieldsOfKind(KindFullText)
}

// ExternalFields returns the KindExternal fields in declaration order.
func (t *EntityType) ExternalFields() []FieldSpec {
	return t.fieldsOfKind(KindExternal)
}

func (t *EntityType) fieldsOfKind(k StorageKind) []FieldSpec {
	var out []FieldSpec
	for _, f := range t.Fields {
		if f.Kind == k {
			out = append(out, f)
		}
	}
	return out
}

// SatelliteTable returns the satellite table name for an array-index field.
func (t *EntityType) SatelliteTable(field string) string {
	return t.table + "__" + field
}

// FullTextTable returns the FTS5 table name for the type.
func (t *EntityType) FullTextTable() string {
	return t.table + "__fts"
}

// IdentityField returns the identity field spec for identified types.
func (t *EntityType) IdentityField() (FieldSpec, bool) {
	if t.Identity == "" {
		return FieldSpec{}, false
	}
	return t.Field(t.Identity)
}

// tableNameOf derives the SQL table name from a type name: CamelCase
// becomes snake_case under the engine prefix.
func tableNameOf(name string) string {
	var b strings.Builder
	b.WriteString(tablePrefix)
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
