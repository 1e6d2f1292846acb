// Package sqlite provides the public API for the SQLite strata backend.
// This package exposes the factory functions for creating SQLite backends
// while keeping implementation details internal.
//
// See docs/ARCHITECTURE.md § Public API.
package sqlite

import (
	"go.uber.org/zap"

	"github.com/mesh-intelligence/strata/internal/sqlite"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
//
// Example:
//
//	store := sqlite.NewBackend()
//	err := store.Attach(types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".strata-db",
//	})
//	defer store.Detach()
func NewBackend() types.Store {
	return sqlite.NewBackend()
}

// NewBackendWithLogger creates a backend that logs through the given
// sugared logger instead of discarding log output.
func NewBackendWithLogger(log *zap.SugaredLogger) types.Store {
	return sqlite.NewBackendWithLogger(log)
}
