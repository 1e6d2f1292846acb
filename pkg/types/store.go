package types

import (
	"context"
	"io"

	"github.com/mesh-intelligence/strata/pkg/schema"
)

// Store is the engine's public surface. Callers attach to a backend,
// install a resolved entity registry, create the schema, then read and
// write object graphs. Implementations are safe for concurrent use once
// attached.
type Store interface {
	// Attach connects the store to the backend described by config.
	// Creates the DataDir if it does not exist. Returns ErrAlreadyAttached
	// if called while already attached.
	Attach(config Config) error

	// Detach releases backend resources. Idempotent: multiple calls
	// succeed. After Detach, operations return ErrStoreDetached.
	Detach() error

	// Register installs a resolved entity registry. Data operations
	// return ErrNoRegistry until one is installed.
	Register(reg *schema.Registry) error

	// CreateSchema compiles and applies DDL for the named types, or for
	// every registered type when no names are given. Idempotent: calling
	// it twice against unchanged declarations neither errors nor
	// duplicates columns or indexes.
	CreateSchema(ctx context.Context, names ...string) error

	// Put persists one root entity graph. An empty identity field gets a
	// generated value; a known identity updates in place (or appends a
	// version row for versioned types). Owned children are replaced to
	// match the graph. The whole write is one transaction.
	Put(ctx context.Context, typeName string, doc any, info *VersionInfo) (*Stored, error)

	// Get returns the root entity with the given identity, children
	// populated. Returns ErrNotFound when absent.
	Get(ctx context.Context, typeName, identity string) (*Stored, error)

	// Find returns exactly one entity matching the criteria. Returns
	// ErrNotFound on zero matches, ErrAmbiguousMatch on more than one.
	Find(ctx context.Context, typeName string, criteria Criteria, opts FindOptions) (*Stored, error)

	// Search returns all matching entities, children populated. Offset
	// and Limit count distinct roots even when criteria join one-to-many
	// children.
	Search(ctx context.Context, typeName string, criteria Criteria, opts FindOptions) ([]*Stored, error)

	// Records returns row-level projections of the named fields. Joined
	// one-to-many fields multiply rows; no root grouping is applied.
	Records(ctx context.Context, typeName string, fields []string, criteria Criteria, opts FindOptions) ([]map[string]any, error)

	// Count returns the number of distinct roots matching the criteria.
	Count(ctx context.Context, typeName string, criteria Criteria) (int64, error)

	// Delete removes matching roots and their owned rows. Versioned
	// types refuse (history is append-only; see Squash). Returns the
	// number of roots removed.
	Delete(ctx context.Context, typeName string, criteria Criteria, info *VersionInfo) (int64, error)

	// Squash drops superseded version rows for one identity of a
	// versioned type, keeping the current row. Returns the number of
	// version rows removed.
	Squash(ctx context.Context, typeName, identity string, info *VersionInfo) (int64, error)

	// History returns the version stamps for one identity, newest first.
	History(ctx context.Context, typeName, identity string) ([]VersionStamp, error)

	// Versions returns recent audit log entries, newest first. Limit
	// zero means all.
	Versions(ctx context.Context, limit int64) ([]VersionInfo, error)

	// Export writes the current documents of a type to w as JSONL, one
	// Stored per line. Returns the number of lines written.
	Export(ctx context.Context, typeName string, w io.Writer) (int64, error)
}
