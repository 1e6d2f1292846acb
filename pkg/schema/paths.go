package schema

import (
	"fmt"
	"strings"
)

// Segment is one parsed piece of a JSON-path step: an object key, with
// Unwind set when the declaration asks to fan out over an array at that
// key ("$.members[*]").
type Segment struct {
	Key    string
	Unwind bool
}

// ParseStep parses a single JSON-path step like "$.address" or
// "$.members[*].name" into its segments. Climb steps ("..") are not
// accepted here; strip them first (FieldSpec.JSONSteps does).
func ParseStep(step string) ([]Segment, error) {
	if !strings.HasPrefix(step, "$.") {
		return nil, fmt.Errorf("path step %q must start with \"$.\"", step)
	}
	raw := strings.Split(step[2:], ".")
	segs := make([]Segment, 0, len(raw))
	for _, part := range raw {
		seg := Segment{Key: part}
		if strings.HasSuffix(part, "[*]") {
			seg.Key = strings.TrimSuffix(part, "[*]")
			seg.Unwind = true
		}
		if !validKey(seg.Key) {
			return nil, fmt.Errorf("path step %q has invalid key %q", step, seg.Key)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// StepUnwinds reports whether a step fans out over an array.
func StepUnwinds(step string) bool {
	return strings.Contains(step, "[*]")
}

// ExtractPath returns the SQLite json_extract path for a step without
// unwinds (the step itself, already in "$.a.b" form).
func ExtractPath(step string) string { return step }

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// validateFieldPaths checks one field's path declaration against its kind.
// Returned errors carry the type and field name; the registry wraps them
// with ErrInvalidMetadata.
func validateFieldPaths(t *EntityType, f FieldSpec) error {
	paths := f.EffectivePaths()
	climbs := f.Climbs()
	for _, p := range paths[climbs:] {
		if p == climbStep {
			return fmt.Errorf("field %s.%s: climb steps must lead the path", t.Name, f.Name)
		}
		if _, err := ParseStep(p); err != nil {
			return fmt.Errorf("field %s.%s: %w", t.Name, f.Name, err)
		}
	}
	jsonSteps := len(paths) - climbs
	if jsonSteps == 0 {
		return fmt.Errorf("field %s.%s: path has no JSON step", t.Name, f.Name)
	}

	unwinds := false
	for _, p := range paths[climbs:] {
		if StepUnwinds(p) {
			unwinds = true
		}
	}

	switch f.Kind {
	case KindPayload:
		// Payload fields are never extracted; paths are ignored.
	case KindScalar, KindUnique, KindFullText:
		if climbs > 0 {
			return fmt.Errorf("field %s.%s: %s fields cannot climb to the owner", t.Name, f.Name, f.Kind)
		}
		if unwinds || jsonSteps != 1 {
			return fmt.Errorf("field %s.%s: %s fields need exactly one single-valued path", t.Name, f.Name, f.Kind)
		}
	case KindArray:
		if climbs > 0 {
			return fmt.Errorf("field %s.%s: array-index fields cannot climb to the owner", t.Name, f.Name)
		}
		if !unwinds {
			return fmt.Errorf("field %s.%s: array-index paths need a \"[*]\" segment", t.Name, f.Name)
		}
	case KindExternal:
		if climbs == 0 {
			return fmt.Errorf("field %s.%s: external fields must climb to an owner (\"..\")", t.Name, f.Name)
		}
		if climbs > t.Depth() {
			return fmt.Errorf("field %s.%s: path climbs past the root", t.Name, f.Name)
		}
		if unwinds || jsonSteps != 1 {
			return fmt.Errorf("field %s.%s: external fields need exactly one single-valued path", t.Name, f.Name)
		}
	default:
		return fmt.Errorf("field %s.%s: unknown storage kind", t.Name, f.Name)
	}
	return nil
}
