// Shared helpers for strata CLI commands.
// See docs/ARCHITECTURE.md § CLI.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/sqlite"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// attachStore resolves the data directory, creates a SQLite backend, and
// attaches it. The caller must defer store.Detach(). No entity registry is
// installed; data commands use attachStoreWithModel.
func attachStore() (types.Store, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}

	cfg := types.Config{
		Backend:      types.BackendSQLite,
		DataDir:      dataDir,
		DatabaseFile: configDatabaseFile,
		LogLevel:     configLogLevel,
	}

	store := sqlite.NewBackendWithLogger(engineLogger())
	if err := store.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach store: %w", err)
	}

	return store, nil
}

// attachStoreWithModel attaches the store and installs the entity registry
// from the configured model file.
func attachStoreWithModel() (types.Store, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}

	store, err := attachStore()
	if err != nil {
		return nil, err
	}
	if err := store.Register(reg); err != nil {
		store.Detach()
		return nil, fmt.Errorf("register model: %w", err)
	}
	return store, nil
}

// loadRegistry reads the installed model file and resolves it into an
// entity registry.
func loadRegistry() (*schema.Registry, error) {
	path, err := modelFilePath()
	if err != nil {
		return nil, fmt.Errorf("resolve model file: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no model installed at %s (run: strata schema apply -f <model.yaml>): %w", path, schema.ErrInvalidMetadata)
		}
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}

	reg, err := schema.ParseModel(raw)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return reg, nil
}

// engineLogger builds the zap logger the engine logs through. An empty
// log_level keeps the engine quiet.
func engineLogger() *zap.SugaredLogger {
	if configLogLevel == "" {
		return zap.NewNop().Sugar()
	}
	level, err := zapcore.ParseLevel(configLogLevel)
	if err != nil {
		return zap.NewNop().Sugar()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log.Sugar()
}

// parseCriteria converts repeated --eq/--like/--match flag values of the
// form field=value into engine criteria. Equality values parse as JSON when
// possible so numbers and booleans compare typed; pattern and match values
// stay strings.
func parseCriteria(eqs, likes, matches []string) (types.Criteria, error) {
	criteria := make(types.Criteria)

	add := func(arg string, cond func(string) types.Cond) error {
		field, value, ok := strings.Cut(arg, "=")
		if ok {
			ok = field != ""
		}
		if !ok {
			return fmt.Errorf("invalid criterion %q (expected field=value)", arg)
		}
		criteria[field] = cond(value)
		return nil
	}

	for _, arg := range eqs {
		if err := add(arg, func(v string) types.Cond {
			var parsed any
			if err := json.Unmarshal([]byte(v), &parsed); err != nil {
				parsed = v // raw string if not valid JSON
			}
			return types.Eq(parsed)
		}); err != nil {
			return nil, err
		}
	}
	for _, arg := range likes {
		if err := add(arg, func(v string) types.Cond { return types.Like(v) }); err != nil {
			return nil, err
		}
	}
	for _, arg := range matches {
		if err := add(arg, func(v string) types.Cond { return types.Match(v) }); err != nil {
			return nil, err
		}
	}
	return criteria, nil
}

// exitCode classifies an operation error into a CLI exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, schema.ErrInvalidMetadata):
		return exitConfig
	case errors.Is(err, types.ErrUnknownType),
		errors.Is(err, types.ErrOwnedType),
		errors.Is(err, types.ErrUnresolvableJoin),
		errors.Is(err, types.ErrInvalidFilter),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrAmbiguousMatch),
		errors.Is(err, types.ErrIdentityConflict),
		errors.Is(err, types.ErrVersionedType),
		errors.Is(err, types.ErrUnversionedType):
		return exitUsage
	default:
		return exitStore
	}
}

// fail prints a prefixed error to stderr and exits with its classified code.
func fail(prefix string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, err)
	os.Exit(exitCode(err))
}

// printJSON writes indented JSON to stdout.
func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal JSON:", err)
		os.Exit(exitStore)
	}
	fmt.Println(string(out))
}
