package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// Compile-time interface check: Backend must implement Store.
var _ types.Store = (*Backend)(nil)

// Backend implements the Store interface on a single SQLite database file.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	reg      *schema.Registry
	log      *zap.SugaredLogger

	// now is replaceable in tests for deterministic timestamps.
	now func() time.Time
}

// NewBackend creates a new SQLite backend instance. The backend is not
// attached; call Attach with a Config to initialize. Logging is disabled
// until a logger is set.
func NewBackend() *Backend {
	return &Backend{
		log: zap.NewNop().Sugar(),
		now: time.Now,
	}
}

// NewBackendWithLogger creates a backend that logs through the given
// sugared logger.
func NewBackendWithLogger(log *zap.SugaredLogger) *Backend {
	b := NewBackend()
	if log != nil {
		b.log = log
	}
	return b
}

// Attach opens the database under config.DataDir, applies pragmas, and
// creates the audit tables. Creates the DataDir if it does not exist.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, config.DatabasePath())
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w: %w", dbPath, types.ErrConnection, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("pinging %s: %w: %w", dbPath, types.ErrConnection, err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	for _, ddl := range auditDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return fmt.Errorf("creating audit tables: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.attached = true
	b.log.Infow("backend attached", "path", dbPath)
	return nil
}

// Detach closes the database. Idempotent: multiple calls succeed. After
// Detach, operations return ErrStoreDetached.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil // idempotent
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return fmt.Errorf("closing database: %w", err)
		}
		b.db = nil
	}

	b.attached = false
	b.log.Infow("backend detached")
	return nil
}

// Register installs a resolved entity registry. It may be called before or
// after Attach, but before any schema or data operation.
func (b *Backend) Register(reg *schema.Registry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if reg == nil || !reg.Resolved() {
		return fmt.Errorf("%w: registry must be resolved", schema.ErrInvalidMetadata)
	}
	b.reg = reg
	return nil
}

// session captures the attached state needed by one operation. Holding the
// read lock only long enough to copy the handles keeps operations
// concurrent while guarding the attach/detach lifecycle.
func (b *Backend) session() (*sql.DB, *schema.Registry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, nil, types.ErrStoreDetached
	}
	if b.reg == nil {
		return nil, nil, types.ErrNoRegistry
	}
	return b.db, b.reg, nil
}

// entityType resolves a type name through the installed registry.
func (b *Backend) entityType(reg *schema.Registry, name string) (*schema.EntityType, error) {
	t, ok := reg.Type(name)
	if !ok {
		return nil, fmt.Errorf("type %s: %w", name, types.ErrUnknownType)
	}
	return t, nil
}

// rootType resolves a type name and rejects part types, which cannot be
// addressed at the root of an operation.
func (b *Backend) rootType(reg *schema.Registry, name string) (*schema.EntityType, error) {
	t, err := b.entityType(reg, name)
	if err != nil {
		return nil, err
	}
	if !t.IsRoot() {
		return nil, fmt.Errorf("type %s: %w", name, types.ErrOwnedType)
	}
	return t, nil
}

// generateIdentity returns a new UUID v7 for empty identity fields.
func generateIdentity() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}

// rfc3339 formats a timestamp the way every stored timestamp is stored.
func rfc3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
