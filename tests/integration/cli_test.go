// CLI integration tests for strata: schema lifecycle, document round
// trips, search, deletion, versioning, and exit codes.
package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mesh-intelligence/strata/pkg/types"
)

// TestMain builds the strata binary once before running tests.
func TestMain(m *testing.M) {
	projectRoot, err := FindProjectRoot()
	if err != nil {
		buildErr = err
		os.Exit(1)
	}

	tmpDir, err := os.MkdirTemp("", "strata-test-*")
	if err != nil {
		buildErr = err
		os.Exit(1)
	}
	binPath := filepath.Join(tmpDir, "strata")
	strataBin = binPath

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/strata")
	cmd.Dir = projectRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		buildErr = &BuildError{Err: err, Output: string(output)}
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)

	os.Exit(code)
}

// companyModel declares a Company root owning Person parts, plus a
// versioned Ticket root.
const companyModel = `entities:
  - name: Company
    identity: id
    fields:
      - name: id
        kind: unique-index
      - name: name
        kind: scalar-index
      - name: address
        kind: full-text
      - name: tags
        kind: array-index
        paths: ["$.tags[*]"]
    parts:
      - field: members
        type: Person
        array: true
  - name: Person
    owner: Company
    fields:
      - name: name
        kind: scalar-index
  - name: Ticket
    identity: id
    versioned: true
    fields:
      - name: id
        kind: unique-index
      - name: status
        kind: scalar-index
`

const appleJSON = `{"name":"Apple","address":"California, USA","tags":["fruit","tech"],"members":[{"name":"Steve Jobs"},{"name":"Steve Wozniak"}]}`

const nextJSON = `{"name":"NeXT","address":"Redwood City","tags":["tech"],"members":[{"name":"Steve Jobs"}]}`

// applySchema installs the company model into the environment.
func applySchema(e *TestEnv) {
	e.t.Helper()
	model := e.WriteFile("model.yaml", companyModel)
	e.MustRunStrata("schema", "apply", "-f", model)
}

// putDoc stores a JSON document via the CLI and returns the envelope.
func putDoc(e *TestEnv, typeName, doc string) Stored {
	e.t.Helper()
	file := e.WriteFile("doc.json", doc)
	result := e.MustRunStrata("put", typeName, "-f", file, "--json")
	return ParseJSON[Stored](e.t, result.Stdout)
}

// Test1_Initialize verifies strata initialization.
func Test1_Initialize(t *testing.T) {
	env := NewTestEnv(t)

	result := env.MustRunStrata("init")

	if result.Stdout == "" {
		t.Error("expected init output message")
	}
	if _, err := os.Stat(env.DataDir); os.IsNotExist(err) {
		t.Error("data directory not created")
	}
	dbFile := filepath.Join(env.DataDir, "strata.db")
	if _, err := os.Stat(dbFile); os.IsNotExist(err) {
		t.Error("strata.db not created")
	}
}

// Test2_SchemaApply verifies model compilation, installation, and
// idempotence.
func Test2_SchemaApply(t *testing.T) {
	env := NewTestEnv(t)
	model := env.WriteFile("model.yaml", companyModel)

	result := env.MustRunStrata("schema", "apply", "-f", model)
	if !strings.Contains(result.Stdout, "Schema applied (3 types)") {
		t.Errorf("apply output = %q, want schema applied message", result.Stdout)
	}

	// The model is installed into the config directory for data commands.
	installed := filepath.Join(env.ConfigDir, "model.yaml")
	if _, err := os.Stat(installed); os.IsNotExist(err) {
		t.Error("model.yaml not installed into config dir")
	}

	// Applying an unchanged model again is a no-op.
	env.MustRunStrata("schema", "apply", "-f", model)
}

// Test3_SchemaPrint verifies --print writes DDL without executing.
func Test3_SchemaPrint(t *testing.T) {
	env := NewTestEnv(t)
	model := env.WriteFile("model.yaml", companyModel)

	result := env.MustRunStrata("schema", "apply", "-f", model, "--print")

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS st_company",
		"CREATE TABLE IF NOT EXISTS st_person",
		"CREATE TABLE IF NOT EXISTS st_company__tags",
		"USING fts5(address)",
		"GENERATED ALWAYS AS (json_extract(json, '$.status'))",
	} {
		if !strings.Contains(result.Stdout, want) {
			t.Errorf("printed DDL missing %q", want)
		}
	}

	// Printing must not install the model.
	installed := filepath.Join(env.ConfigDir, "model.yaml")
	if _, err := os.Stat(installed); err == nil {
		t.Error("--print should not install the model")
	}
}

// Test4_PutAndGet verifies the document round trip through the CLI.
func Test4_PutAndGet(t *testing.T) {
	env := NewTestEnv(t)
	applySchema(env)

	stored := putDoc(env, "Company", appleJSON)
	if !isUUIDv7(stored.Identity) {
		t.Errorf("identity %q should be a generated UUID v7", stored.Identity)
	}

	result := env.MustRunStrata("get", "Company", stored.Identity)
	doc := ParseJSON[types.Document](t, result.Stdout)

	if doc["name"] != "Apple" {
		t.Errorf("name = %v, want Apple", doc["name"])
	}
	members, ok := doc["members"].([]any)
	if !ok || len(members) != 2 {
		t.Fatalf("members = %v, want 2 reattached parts", doc["members"])
	}
	first, _ := members[0].(map[string]any)
	if first["name"] != "Steve Jobs" {
		t.Errorf("first member = %v, want Steve Jobs", first["name"])
	}
}

// Test5_FindScenario verifies search across full-text, part fields, and
// root-level pagination.
func Test5_FindScenario(t *testing.T) {
	env := NewTestEnv(t)
	applySchema(env)
	putDoc(env, "Company", appleJSON)
	putDoc(env, "Company", nextJSON)

	// Required full-text term matches only the Californian company.
	result := env.MustRunStrata("find", "Company", "--match", "address=+California")
	docs := ParseJSON[[]types.Document](t, result.Stdout)
	if len(docs) != 1 || docs[0]["name"] != "Apple" {
		t.Errorf("match +California = %v, want [Apple]", docs)
	}

	// Part-typed search hits every matching member row.
	result = env.MustRunStrata("find", "Person", "--like", "name=%Stev%")
	docs = ParseJSON[[]types.Document](t, result.Stdout)
	if len(docs) != 3 {
		t.Errorf("like %%Stev%% = %d people, want 3", len(docs))
	}

	// Array satellite equality.
	result = env.MustRunStrata("find", "Company", "--eq", "tags=fruit")
	docs = ParseJSON[[]types.Document](t, result.Stdout)
	if len(docs) != 1 || docs[0]["name"] != "Apple" {
		t.Errorf("tags=fruit = %v, want [Apple]", docs)
	}

	// Limit counts distinct companies even though the member join fans out.
	result = env.MustRunStrata("find", "Company",
		"--like", "members.name=%Steve%", "--order", "name", "--limit", "1")
	docs = ParseJSON[[]types.Document](t, result.Stdout)
	if len(docs) != 1 {
		t.Fatalf("limit 1 = %d companies, want 1 distinct root", len(docs))
	}
	if docs[0]["name"] != "Apple" {
		t.Errorf("first by name = %v, want Apple", docs[0]["name"])
	}
	members, _ := docs[0]["members"].([]any)
	if len(members) != 2 {
		t.Errorf("limited company keeps %d members, want 2", len(members))
	}
}

// Test6_Delete verifies criteria deletion and the empty-criteria guard.
func Test6_Delete(t *testing.T) {
	env := NewTestEnv(t)
	applySchema(env)
	stored := putDoc(env, "Company", appleJSON)

	// Refuses to run without criteria.
	result := env.RunStrata("delete", "Company")
	if result.ExitCode != 1 {
		t.Errorf("delete without criteria exit = %d, want 1", result.ExitCode)
	}

	del := env.MustRunStrata("delete", "Company", "--eq", "name=Apple")
	if !strings.Contains(del.Stdout, "Deleted 1 Company") {
		t.Errorf("delete output = %q", del.Stdout)
	}

	// The graph is gone.
	result = env.RunStrata("get", "Company", stored.Identity)
	if result.ExitCode != 1 {
		t.Errorf("get after delete exit = %d, want 1", result.ExitCode)
	}
	people := ParseJSON[[]types.Document](t,
		env.MustRunStrata("find", "Person").Stdout)
	if len(people) != 0 {
		t.Errorf("members after delete = %d, want 0", len(people))
	}
}

// Test7_VersionedLifecycle verifies version append, history, as-of reads,
// and the audit log through the CLI.
func Test7_VersionedLifecycle(t *testing.T) {
	env := NewTestEnv(t)
	applySchema(env)

	first := putDoc(env, "Ticket", `{"id":"T-1","status":"open"}`)
	if first.Version == 0 {
		t.Error("versioned put should report a version")
	}
	second := putDoc(env, "Ticket", `{"id":"T-1","status":"resolved"}`)
	if second.Version <= first.Version {
		t.Errorf("versions %d then %d should increase", first.Version, second.Version)
	}

	// History lists both versions, newest first.
	stamps := ParseJSON[[]types.VersionStamp](t,
		env.MustRunStrata("history", "Ticket", "T-1", "--json").Stdout)
	if len(stamps) != 2 {
		t.Fatalf("history = %d stamps, want 2", len(stamps))
	}
	if !stamps[0].Current || stamps[1].Current {
		t.Error("only the newest stamp should be current")
	}

	// The current read sees the update; the as-of read sees the original.
	doc := ParseJSON[types.Document](t,
		env.MustRunStrata("get", "Ticket", "T-1").Stdout)
	if doc["status"] != "resolved" {
		t.Errorf("current status = %v, want resolved", doc["status"])
	}
	asOf := ParseJSON[[]types.Document](t,
		env.MustRunStrata("find", "Ticket", "--eq", "id=T-1",
			"--as-of", "1").Stdout)
	if len(asOf) != 1 || asOf[0]["status"] != "open" {
		t.Errorf("as-of 1 = %v, want original open ticket", asOf)
	}

	// Deleting a versioned type refuses.
	result := env.RunStrata("delete", "Ticket", "--eq", "id=T-1")
	if result.ExitCode != 1 {
		t.Errorf("delete versioned exit = %d, want 1", result.ExitCode)
	}

	// The audit log records both writes.
	entries := ParseJSON[[]types.VersionInfo](t,
		env.MustRunStrata("log", "--json").Stdout)
	if len(entries) != 2 {
		t.Fatalf("log = %d entries, want 2", len(entries))
	}
	if entries[0].Version != second.Version {
		t.Errorf("log starts at version %d, want newest %d", entries[0].Version, second.Version)
	}
}

// Test8_PutAudit verifies audit flags reach the version log.
func Test8_PutAudit(t *testing.T) {
	env := NewTestEnv(t)
	applySchema(env)

	file := env.WriteFile("doc.json", appleJSON)
	env.MustRunStrata("put", "Company", "-f", file,
		"--who", "alice", "--why", "seed data", "--tag", "import")

	entries := ParseJSON[[]types.VersionInfo](t,
		env.MustRunStrata("log", "--limit", "1", "--json").Stdout)
	if len(entries) != 1 {
		t.Fatalf("log = %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Who != "alice" || e.Why != "seed data" || e.Tag != "import" {
		t.Errorf("audit entry = %+v, want alice/seed data/import", e)
	}
}

// Test9_Export verifies the JSONL dump.
func Test9_Export(t *testing.T) {
	env := NewTestEnv(t)
	applySchema(env)
	putDoc(env, "Company", appleJSON)
	putDoc(env, "Company", nextJSON)

	out := filepath.Join(env.TempDir, "companies.jsonl")
	result := env.MustRunStrata("export", "Company", "-o", out)
	if !strings.Contains(result.Stdout, "Exported 2 Company") {
		t.Errorf("export output = %q", result.Stdout)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("export = %d lines, want 2", len(lines))
	}
	for _, line := range lines {
		st := ParseJSON[Stored](t, line)
		if st.Identity == "" || st.Doc["name"] == nil {
			t.Errorf("export line %q missing identity or doc", line)
		}
	}

	// Exporting to stdout writes only the documents.
	result = env.MustRunStrata("export", "Company")
	stdout := strings.Split(strings.TrimSpace(result.Stdout), "\n")
	if len(stdout) != 2 {
		t.Errorf("stdout export = %d lines, want 2", len(stdout))
	}
}

// Test10_ExitCodes verifies the CLI error classification.
func Test10_ExitCodes(t *testing.T) {
	env := NewTestEnv(t)

	// Data commands need an installed model: config error.
	result := env.RunStrata("get", "Company", "x")
	if result.ExitCode != 2 {
		t.Errorf("get without model exit = %d, want 2", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "no model installed") {
		t.Errorf("stderr = %q, want model hint", result.Stderr)
	}

	applySchema(env)

	// Unknown type and owned-type targets are usage errors.
	if got := env.RunStrata("get", "Gadget", "x").ExitCode; got != 1 {
		t.Errorf("unknown type exit = %d, want 1", got)
	}
	if got := env.RunStrata("put", "Person", "-f", env.WriteFile("p.json", `{"name":"x"}`)).ExitCode; got != 1 {
		t.Errorf("put part type exit = %d, want 1", got)
	}

	// Malformed criteria are usage errors.
	if got := env.RunStrata("find", "Company", "--eq", "nonsense").ExitCode; got != 1 {
		t.Errorf("bad criterion exit = %d, want 1", got)
	}

	// Unknown flags are usage errors.
	if got := env.RunStrata("find", "Company", "--frobnicate").ExitCode; got != 1 {
		t.Errorf("unknown flag exit = %d, want 1", got)
	}

	// Version always succeeds, configured or not.
	version := env.MustRunStrata("version")
	if !strings.Contains(version.Stdout, "strata") {
		t.Errorf("version output = %q", version.Stdout)
	}
}
