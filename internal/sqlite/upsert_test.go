package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/strata/pkg/types"
)

func TestPutAssignsIdentity(t *testing.T) {
	b := companyBackend(t)

	st := putDoc(t, b, "Company", appleDoc())
	assert.NotEmpty(t, st.Identity)
	assert.Equal(t, st.Identity, st.Doc["id"])

	got, err := b.Get(context.Background(), "Company", st.Identity)
	require.NoError(t, err)
	assert.Equal(t, st.Doc, got.Doc)
}

func TestPutKeepsCallerIdentity(t *testing.T) {
	b := companyBackend(t)

	doc := appleDoc()
	doc["id"] = "acme-1"
	st := putDoc(t, b, "Company", doc)
	assert.Equal(t, "acme-1", st.Identity)
}

func TestPutRejectsNonStringIdentity(t *testing.T) {
	b := companyBackend(t)

	doc := appleDoc()
	doc["id"] = 7
	_, err := b.Put(context.Background(), "Company", doc, nil)
	assert.Error(t, err)
}

func TestPutStoresOneRowPerNode(t *testing.T) {
	b := companyBackend(t)
	putDoc(t, b, "Company", appleDoc())

	assert.Equal(t, int64(1), countRows(t, b, "st_company"))
	assert.Equal(t, int64(2), countRows(t, b, "st_person"))
	assert.Equal(t, int64(1), countRows(t, b, "st_device"))
	assert.Equal(t, int64(2), countRows(t, b, "st_company__tags"))
}

func TestPutStripsChildrenFromOwnPayload(t *testing.T) {
	b := companyBackend(t)
	putDoc(t, b, "Company", appleDoc())

	var raw string
	require.NoError(t, b.db.QueryRow("SELECT json FROM st_company").Scan(&raw))
	assert.NotContains(t, raw, "members")

	require.NoError(t, b.db.QueryRow("SELECT json FROM st_person WHERE name = 'Steve Jobs'").Scan(&raw))
	assert.NotContains(t, raw, "devices")
	assert.Contains(t, raw, "Steve Jobs")
}

func TestPutMaterializesExternalColumns(t *testing.T) {
	b := companyBackend(t)
	putDoc(t, b, "Company", appleDoc())

	var addr string
	err := b.db.QueryRow("SELECT company_address FROM st_person WHERE name = 'Steve Wozniak'").Scan(&addr)
	require.NoError(t, err)
	assert.Equal(t, "California", addr)
}

func TestPutUpdateKeepsSiblingPartRows(t *testing.T) {
	b := companyBackend(t)
	ctx := context.Background()

	st := putDoc(t, b, "Company", appleDoc())

	before := make(map[string]int64)
	rows, err := b.db.Query("SELECT name, row_id FROM st_person")
	require.NoError(t, err)
	for rows.Next() {
		var name string
		var id int64
		require.NoError(t, rows.Scan(&name, &id))
		before[name] = id
	}
	require.NoError(t, rows.Err())
	rows.Close()
	require.Len(t, before, 2)

	doc := st.Doc
	doc["members"].([]any)[1].(map[string]any)["name"] = "Steve Wozniak II"
	_, err = b.Put(ctx, "Company", doc, nil)
	require.NoError(t, err)

	var jobsID, wozID int64
	require.NoError(t, b.db.QueryRow("SELECT row_id FROM st_person WHERE name = 'Steve Jobs'").Scan(&jobsID))
	require.NoError(t, b.db.QueryRow("SELECT row_id FROM st_person WHERE name = 'Steve Wozniak II'").Scan(&wozID))
	assert.Equal(t, before["Steve Jobs"], jobsID)
	assert.Equal(t, before["Steve Wozniak"], wozID)
	assert.Equal(t, int64(2), countRows(t, b, "st_person"))
}

func TestPutUpdateShrinksParts(t *testing.T) {
	b := companyBackend(t)
	ctx := context.Background()

	st := putDoc(t, b, "Company", appleDoc())
	require.Equal(t, int64(2), countRows(t, b, "st_person"))

	doc := st.Doc
	doc["members"] = []any{map[string]any{"name": "Steve Jobs"}}
	_, err := b.Put(ctx, "Company", doc, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, b, "st_person"))
	// Jobs lost the devices field, so his device rows go too.
	assert.Equal(t, int64(0), countRows(t, b, "st_device"))
}

func TestPutUpdateGrowsParts(t *testing.T) {
	b := companyBackend(t)
	ctx := context.Background()

	st := putDoc(t, b, "Company", appleDoc())
	doc := st.Doc
	doc["members"] = append(doc["members"].([]any), map[string]any{"name": "Ronald Wayne"})
	_, err := b.Put(ctx, "Company", doc, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(3), countRows(t, b, "st_person"))

	got, err := b.Get(ctx, "Company", st.Identity)
	require.NoError(t, err)
	members := got.Doc["members"].([]any)
	require.Len(t, members, 3)
	assert.Equal(t, "Ronald Wayne", members[2].(map[string]any)["name"])
}

func TestPutRefreshesSatellitesAndExternals(t *testing.T) {
	b := companyBackend(t)
	ctx := context.Background()

	st := putDoc(t, b, "Company", appleDoc())
	doc := st.Doc
	doc["tags"] = []any{"computers"}
	doc["address"] = "Cupertino"
	_, err := b.Put(ctx, "Company", doc, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, b, "st_company__tags"))
	var addr string
	require.NoError(t, b.db.QueryRow("SELECT company_address FROM st_person WHERE name = 'Steve Jobs'").Scan(&addr))
	assert.Equal(t, "Cupertino", addr)
}

func TestPutCascadeRollsBackWholeWrite(t *testing.T) {
	b := companyBackend(t)
	ctx := context.Background()

	first := appleDoc()
	putDoc(t, b, "Company", first)

	// Second company reuses a device serial, which violates the unique
	// index mid-cascade.
	second := types.Document{
		"name":    "NeXT",
		"address": "Redwood City",
		"members": []any{
			map[string]any{
				"name":    "Steve Jobs",
				"devices": []any{map[string]any{"serial": "SJ-1"}},
			},
		},
	}
	_, err := b.Put(ctx, "Company", second, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCascadeWrite)
	assert.NotErrorIs(t, err, types.ErrIdentityConflict)

	n, err := b.Count(ctx, "Company", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(2), countRows(t, b, "st_person"))
	assert.Equal(t, int64(1), countRows(t, b, "st_device"))
}

func TestPutRejectsMalformedParts(t *testing.T) {
	b := companyBackend(t)

	doc := types.Document{"name": "Bad", "members": "not-a-list"}
	_, err := b.Put(context.Background(), "Company", doc, nil)
	assert.Error(t, err)
	assert.Equal(t, int64(0), countRows(t, b, "st_company"))
}

func TestPutAcceptsStructs(t *testing.T) {
	b := companyBackend(t)

	type member struct {
		Name string `json:"name"`
	}
	type company struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Address string   `json:"address"`
		Members []member `json:"members"`
	}

	st, err := b.Put(context.Background(), "Company", company{
		ID:      "struct-1",
		Name:    "Struct Co",
		Address: "Nowhere",
		Members: []member{{Name: "Ada"}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "struct-1", st.Identity)

	got, err := b.Get(context.Background(), "Company", "struct-1")
	require.NoError(t, err)
	members := got.Doc["members"].([]any)
	require.Len(t, members, 1)
	assert.Equal(t, "Ada", members[0].(map[string]any)["name"])
}
