package schema

import (
	"fmt"
	"sort"
)

// reservedColumns are engine-internal column names entity fields may not
// use.
var reservedColumns = map[string]bool{
	"row_id":           true,
	"json":             true,
	"root_row_id":      true,
	"container_row_id": true,
	"item_order":       true,
	"valid_start":      true,
	"valid_end":        true,
}

// Registry holds entity type declarations and resolves them in two phases:
// Declare accepts skeleton types in any order (forward references between
// mutually referential types are legal), then Resolve binds owner
// back-pointers and validates every declaration. After Resolve the registry
// and its types are read-only and safe for concurrent use.
type Registry struct {
	types    map[string]*EntityType
	order    []string
	resolved bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*EntityType)}
}

// Declare adds a type skeleton. Cross-type references (Owner, part type
// names, external paths) are not checked until Resolve.
func (r *Registry) Declare(t *EntityType) error {
	if r.resolved {
		return fmt.Errorf("%w: registry already resolved", ErrInvalidMetadata)
	}
	if t == nil || t.Name == "" {
		return fmt.Errorf("%w: type name must not be empty", ErrInvalidMetadata)
	}
	if _, ok := r.types[t.Name]; ok {
		return fmt.Errorf("%w: type %s declared twice", ErrInvalidMetadata, t.Name)
	}
	r.types[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Resolve binds and validates all declared types. It is the second phase
// of registration; no declarations are accepted afterwards. All failures
// wrap ErrInvalidMetadata.
func (r *Registry) Resolve() error {
	if r.resolved {
		return nil
	}

	// Phase 2a: bind owner pointers and detect cycles.
	for _, name := range r.order {
		t := r.types[name]
		t.table = tableNameOf(t.Name)
		if t.Owner == "" {
			continue
		}
		owner, ok := r.types[t.Owner]
		if !ok {
			return fmt.Errorf("%w: type %s names unknown owner %s", ErrInvalidMetadata, t.Name, t.Owner)
		}
		t.owner = owner
	}
	for _, name := range r.order {
		if err := r.computeDepth(r.types[name]); err != nil {
			return err
		}
	}

	// Phase 2b: bind part fields; every part belongs to exactly one owner.
	claimed := make(map[string]string)
	for _, name := range r.order {
		t := r.types[name]
		t.partTypes = make(map[string]*EntityType, len(t.Parts))
		for _, p := range t.Parts {
			pt, ok := r.types[p.TypeName]
			if !ok {
				return fmt.Errorf("%w: type %s embeds unknown part type %s", ErrInvalidMetadata, t.Name, p.TypeName)
			}
			if pt.Owner != t.Name {
				return fmt.Errorf("%w: part type %s must declare owner %s", ErrInvalidMetadata, p.TypeName, t.Name)
			}
			if prev, dup := claimed[p.TypeName]; dup {
				return fmt.Errorf("%w: part type %s claimed by both %s and %s", ErrInvalidMetadata, p.TypeName, prev, t.Name)
			}
			claimed[p.TypeName] = t.Name
			if _, dup := t.partTypes[p.Field]; dup {
				return fmt.Errorf("%w: type %s declares owning field %s twice", ErrInvalidMetadata, t.Name, p.Field)
			}
			t.partTypes[p.Field] = pt
		}
	}
	for _, name := range r.order {
		t := r.types[name]
		if t.Owner != "" && claimed[t.Name] == "" {
			return fmt.Errorf("%w: type %s declares owner %s but is not embedded by it", ErrInvalidMetadata, t.Name, t.Owner)
		}
	}

	// Phase 2c: per-type field validation.
	for _, name := range r.order {
		if err := r.validateType(r.types[name]); err != nil {
			return err
		}
	}

	for _, name := range r.order {
		r.types[name].resolved = true
	}
	r.resolved = true
	return nil
}

// computeDepth walks the owner chain, rejecting cycles.
func (r *Registry) computeDepth(t *EntityType) error {
	seen := map[string]bool{t.Name: true}
	depth := 0
	for cur := t.owner; cur != nil; cur = cur.owner {
		if seen[cur.Name] {
			return fmt.Errorf("%w: ownership cycle through %s", ErrInvalidMetadata, cur.Name)
		}
		seen[cur.Name] = true
		depth++
	}
	t.depth = depth
	return nil
}

func (r *Registry) validateType(t *EntityType) error {
	t.fields = make(map[string]int, len(t.Fields))
	for i, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: type %s has a field with no name", ErrInvalidMetadata, t.Name)
		}
		if reservedColumns[f.Name] {
			return fmt.Errorf("%w: field %s.%s uses a reserved column name", ErrInvalidMetadata, t.Name, f.Name)
		}
		if _, dup := t.fields[f.Name]; dup {
			return fmt.Errorf("%w: type %s declares column %s twice", ErrInvalidMetadata, t.Name, f.Name)
		}
		t.fields[f.Name] = i
		if err := validateFieldPaths(t, f); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
	}

	for _, p := range t.Parts {
		if _, clash := t.fields[p.Field]; clash {
			return fmt.Errorf("%w: type %s owning field %s collides with a declared column", ErrInvalidMetadata, t.Name, p.Field)
		}
	}

	if t.Identity != "" {
		if t.Owner != "" {
			return fmt.Errorf("%w: part type %s cannot carry an identity", ErrInvalidMetadata, t.Name)
		}
		f, ok := t.Field(t.Identity)
		if !ok {
			return fmt.Errorf("%w: type %s identity field %s not declared", ErrInvalidMetadata, t.Name, t.Identity)
		}
		if f.Kind != KindUnique {
			return fmt.Errorf("%w: type %s identity field %s must be unique-index", ErrInvalidMetadata, t.Name, t.Identity)
		}
	} else if t.Owner == "" {
		return fmt.Errorf("%w: root type %s needs an identity field", ErrInvalidMetadata, t.Name)
	}

	if t.Versioned && t.Owner != "" {
		return fmt.Errorf("%w: part type %s cannot be versioned; version the root", ErrInvalidMetadata, t.Name)
	}
	return nil
}

// Type returns a declared type by name.
func (r *Registry) Type(name string) (*EntityType, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Types returns all types in declaration order.
func (r *Registry) Types() []*EntityType {
	out := make([]*EntityType, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.types[name])
	}
	return out
}

// Resolved reports whether Resolve has completed.
func (r *Registry) Resolved() bool { return r.resolved }

// CreationOrder returns the types sorted shallowest first (roots, then
// parts, then parts of parts), ties broken by declaration order. Table
// creation and graph writes follow this order.
func (r *Registry) CreationOrder() []*EntityType {
	out := r.Types()
	pos := make(map[string]int, len(r.order))
	for i, name := range r.order {
		pos[name] = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].depth != out[j].depth {
			return out[i].depth < out[j].depth
		}
		return pos[out[i].Name] < pos[out[j].Name]
	})
	return out
}
