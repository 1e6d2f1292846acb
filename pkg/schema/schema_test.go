package schema

import "testing"

func TestTableNameOf(t *testing.T) {
	tests := []struct {
		typeName string
		want     string
	}{
		{"Company", "st_company"},
		{"CompanyMember", "st_company_member"},
		{"person", "st_person"},
		{"HTTPLog", "st_h_t_t_p_log"},
	}
	for _, tt := range tests {
		if got := tableNameOf(tt.typeName); got != tt.want {
			t.Errorf("tableNameOf(%q) = %q, want %q", tt.typeName, got, tt.want)
		}
	}
}

func TestParseStep(t *testing.T) {
	tests := []struct {
		step    string
		want    []Segment
		wantErr bool
	}{
		{step: "$.address", want: []Segment{{Key: "address"}}},
		{step: "$.members[*]", want: []Segment{{Key: "members", Unwind: true}}},
		{step: "$.members[*].name", want: []Segment{{Key: "members", Unwind: true}, {Key: "name"}}},
		{step: "$.a.b.c", want: []Segment{{Key: "a"}, {Key: "b"}, {Key: "c"}}},
		{step: "address", wantErr: true},
		{step: "$.", wantErr: true},
		{step: "$.1bad", wantErr: true},
	}
	for _, tt := range tests {
		segs, err := ParseStep(tt.step)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStep(%q) should fail", tt.step)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStep(%q): %v", tt.step, err)
			continue
		}
		if len(segs) != len(tt.want) {
			t.Errorf("ParseStep(%q) = %v, want %v", tt.step, segs, tt.want)
			continue
		}
		for i := range segs {
			if segs[i] != tt.want[i] {
				t.Errorf("ParseStep(%q)[%d] = %v, want %v", tt.step, i, segs[i], tt.want[i])
			}
		}
	}
}

func TestFieldSpecPathHelpers(t *testing.T) {
	f := FieldSpec{Name: "company_address", Kind: KindExternal, Paths: []string{"..", "..", "$.address"}}
	if got := f.Climbs(); got != 2 {
		t.Errorf("Climbs = %d, want 2", got)
	}
	steps := f.JSONSteps()
	if len(steps) != 1 || steps[0] != "$.address" {
		t.Errorf("JSONSteps = %v, want [$.address]", steps)
	}

	def := FieldSpec{Name: "name", Kind: KindScalar}
	paths := def.EffectivePaths()
	if len(paths) != 1 || paths[0] != "$.name" {
		t.Errorf("EffectivePaths = %v, want [$.name]", paths)
	}
	if def.Climbs() != 0 {
		t.Errorf("default path should not climb")
	}
}

func TestStorageKindString(t *testing.T) {
	kinds := map[StorageKind]string{
		KindPayload:  "payload",
		KindScalar:   "scalar-index",
		KindUnique:   "unique-index",
		KindArray:    "array-index",
		KindFullText: "full-text",
		KindExternal: "external",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("StorageKind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
