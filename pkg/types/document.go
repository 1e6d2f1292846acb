package types

// Document is a JSON-shaped entity payload. Owned children appear nested
// under their owning field as objects or arrays per the type declaration.
type Document map[string]any

// Stored is a persisted root entity as returned by read and write
// operations: the internal row identifier, the identity value, the version
// that produced the row (zero for unversioned types), and the document with
// its owned children reattached.
type Stored struct {
	RowID    int64    `json:"row_id"`
	Identity string   `json:"identity"`
	Version  int64    `json:"version,omitempty"`
	Doc      Document `json:"doc"`
}
