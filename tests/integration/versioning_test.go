// Versioned-type integration tests: append-only updates, squash
// compaction, and the audit trail through the public API.
package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// putTicket stores one version of the T-1 ticket with audit fields.
func putTicket(t *testing.T, store types.Store, status, who string) *types.Stored {
	t.Helper()
	st, err := store.Put(context.Background(), "Ticket",
		types.Document{"id": "T-1", "status": status},
		&types.VersionInfo{Who: who, Why: "status change"})
	if err != nil {
		t.Fatalf("Put Ticket %s: %v", status, err)
	}
	return st
}

func TestVersionedSquash(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	putTicket(t, store, "open", "alice")
	putTicket(t, store, "triaged", "bob")
	last := putTicket(t, store, "resolved", "carol")

	stamps, err := store.History(ctx, "Ticket", "T-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(stamps) != 3 {
		t.Fatalf("history = %d stamps, want 3", len(stamps))
	}

	// Squash drops the two superseded versions and keeps the current row.
	removed, err := store.Squash(ctx, "Ticket", "T-1", &types.VersionInfo{Who: "carol"})
	if err != nil {
		t.Fatalf("Squash: %v", err)
	}
	if removed != 2 {
		t.Errorf("squash removed %d, want 2", removed)
	}

	stamps, err = store.History(ctx, "Ticket", "T-1")
	if err != nil {
		t.Fatalf("History after squash: %v", err)
	}
	if len(stamps) != 1 || !stamps[0].Current {
		t.Fatalf("history after squash = %+v, want one current stamp", stamps)
	}

	got, err := store.Get(ctx, "Ticket", "T-1")
	if err != nil {
		t.Fatalf("Get after squash: %v", err)
	}
	if got.Doc["status"] != "resolved" {
		t.Errorf("status after squash = %v, want resolved", got.Doc["status"])
	}

	// The audit log keeps every write: three puts and the squash.
	entries, err := store.Versions(ctx, 0)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("audit entries = %d, want 4", len(entries))
	}
	if entries[0].Version <= last.Version {
		t.Errorf("squash version %d should follow last put %d", entries[0].Version, last.Version)
	}
}

func TestVersionedGuards(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	putTicket(t, store, "open", "alice")

	// History of an unknown identity is a not-found.
	if _, err := store.History(ctx, "Ticket", "T-404"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("History unknown = %v, want ErrNotFound", err)
	}

	// Delete refuses versioned types.
	if _, err := store.Delete(ctx, "Ticket",
		types.Criteria{"id": types.Eq("T-1")}, nil); !errors.Is(err, types.ErrVersionedType) {
		t.Errorf("Delete versioned = %v, want ErrVersionedType", err)
	}

	// Squash and History refuse unversioned types.
	mustPut(t, store, "Company", apple())
	if _, err := store.Squash(ctx, "Company", "x", nil); !errors.Is(err, types.ErrUnversionedType) {
		t.Errorf("Squash unversioned = %v, want ErrUnversionedType", err)
	}
	if _, err := store.History(ctx, "Company", "x"); !errors.Is(err, types.ErrUnversionedType) {
		t.Errorf("History unversioned = %v, want ErrUnversionedType", err)
	}
}
