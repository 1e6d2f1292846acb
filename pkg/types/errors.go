package types

import "errors"

// Store lifecycle errors.
var (
	ErrStoreDetached   = errors.New("store is detached")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrNoRegistry      = errors.New("no entity registry installed")
)

// Operation errors. Callers match with errors.Is; the engine wraps these
// with context describing the type, field, or identity involved.
var (
	// ErrUnknownType is returned when an operation names an entity type
	// that the installed registry does not declare.
	ErrUnknownType = errors.New("unknown entity type")

	// ErrOwnedType is returned when a root-only operation (Put, Delete,
	// Get) targets a part type. Parts persist only through their owner.
	ErrOwnedType = errors.New("owned part type cannot be used at the root")

	// ErrUnresolvableJoin is returned when a criteria field path cannot be
	// mapped to any table in the ownership tree. Reported before any SQL
	// executes.
	ErrUnresolvableJoin = errors.New("criteria path cannot be resolved to a table")

	// ErrIdentityConflict is returned when an insert collides with an
	// existing identity or unique column, or when an update or squash
	// target does not exist.
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrCascadeWrite is returned when any row of a multi-row store fails.
	// The whole transaction is rolled back first; no partial state remains.
	ErrCascadeWrite = errors.New("cascade write failed")

	// ErrConnection marks transport-level failures. The engine never
	// retries; callers may.
	ErrConnection = errors.New("database connection failure")

	ErrNotFound       = errors.New("entity not found")
	ErrAmbiguousMatch = errors.New("more than one entity matched")
	ErrInvalidFilter  = errors.New("invalid filter operator or value")

	// ErrVersionedType is returned when Delete targets a versioned type;
	// versioned history is append-only and compacts through Squash.
	ErrVersionedType = errors.New("operation not allowed on a versioned type")

	// ErrUnversionedType is returned when Squash or History target a type
	// that carries no version columns.
	ErrUnversionedType = errors.New("operation requires a versioned type")
)
