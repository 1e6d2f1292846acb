package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// newTestBackend attaches a backend to a throwaway database.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := NewBackend()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}
	require.NoError(t, b.Attach(cfg))
	t.Cleanup(func() { _ = b.Detach() })
	return b
}

// companyRegistry declares the Company/Person/Device tree used across the
// engine tests: a full-text address, a satellite-backed tags array, a
// two-level part chain, and an external column on Person materialized
// from the company address.
func companyRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Declare(&schema.EntityType{
		Name:     "Company",
		Identity: "id",
		Fields: []schema.FieldSpec{
			{Name: "id", Kind: schema.KindUnique, Type: schema.TypeText},
			{Name: "name", Kind: schema.KindScalar, Type: schema.TypeText},
			{Name: "address", Kind: schema.KindFullText, Type: schema.TypeText},
			{Name: "motto", Kind: schema.KindPayload, Type: schema.TypeText},
			{Name: "tags", Kind: schema.KindArray, Type: schema.TypeText, Paths: []string{"$.tags[*]"}},
		},
		Parts: []schema.PartField{{Field: "members", TypeName: "Person", Array: true}},
	}))
	require.NoError(t, reg.Declare(&schema.EntityType{
		Name:  "Person",
		Owner: "Company",
		Fields: []schema.FieldSpec{
			{Name: "name", Kind: schema.KindScalar, Type: schema.TypeText},
			{Name: "company_address", Kind: schema.KindExternal, Type: schema.TypeText, Paths: []string{"..", "$.address"}},
		},
		Parts: []schema.PartField{{Field: "devices", TypeName: "Device", Array: true}},
	}))
	require.NoError(t, reg.Declare(&schema.EntityType{
		Name:  "Device",
		Owner: "Person",
		Fields: []schema.FieldSpec{
			{Name: "serial", Kind: schema.KindUnique, Type: schema.TypeText},
		},
	}))
	require.NoError(t, reg.Resolve())
	return reg
}

// ticketRegistry declares the versioned Ticket/Note tree.
func ticketRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Declare(&schema.EntityType{
		Name:      "Ticket",
		Identity:  "id",
		Versioned: true,
		Fields: []schema.FieldSpec{
			{Name: "id", Kind: schema.KindUnique, Type: schema.TypeText},
			{Name: "status", Kind: schema.KindScalar, Type: schema.TypeText},
		},
		Parts: []schema.PartField{{Field: "notes", TypeName: "Note", Array: true}},
	}))
	require.NoError(t, reg.Declare(&schema.EntityType{
		Name:  "Note",
		Owner: "Ticket",
		Fields: []schema.FieldSpec{
			{Name: "text", Kind: schema.KindScalar, Type: schema.TypeText},
		},
	}))
	require.NoError(t, reg.Resolve())
	return reg
}

// companyBackend returns an attached backend with the company schema
// applied.
func companyBackend(t *testing.T) *Backend {
	t.Helper()
	b := newTestBackend(t)
	require.NoError(t, b.Register(companyRegistry(t)))
	require.NoError(t, b.CreateSchema(context.Background()))
	return b
}

// ticketBackend returns an attached backend with the versioned ticket
// schema applied.
func ticketBackend(t *testing.T) *Backend {
	t.Helper()
	b := newTestBackend(t)
	require.NoError(t, b.Register(ticketRegistry(t)))
	require.NoError(t, b.CreateSchema(context.Background()))
	return b
}

// putDoc stores one document and fails the test on error.
func putDoc(t *testing.T, b *Backend, typeName string, doc types.Document) *types.Stored {
	t.Helper()
	st, err := b.Put(context.Background(), typeName, doc, nil)
	require.NoError(t, err)
	return st
}

// appleDoc builds the canonical two-member company fixture.
func appleDoc() types.Document {
	return types.Document{
		"name":    "Apple",
		"address": "California",
		"tags":    []any{"fruit", "tech"},
		"members": []any{
			map[string]any{
				"name":    "Steve Jobs",
				"devices": []any{map[string]any{"serial": "SJ-1"}},
			},
			map[string]any{"name": "Steve Wozniak"},
		},
	}
}

// countRows counts the rows of one table through the backend's handle.
func countRows(t *testing.T, b *Backend, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, b.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n))
	return n
}
