package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// joinClause is one table the plan joins, with the predicate linking it to
// an earlier alias.
type joinClause struct {
	table string
	alias string
	cond  string
}

// fieldTerm is a criteria field path resolved to the table that holds it:
// the entity type, the SQL alias of its table in the plan, and the field
// spec (payload fields included).
type fieldTerm struct {
	et    *schema.EntityType
	alias string
	spec  schema.FieldSpec
}

// expr returns the SQL expression for comparing the field: the projected
// column for indexed kinds, a json_extract over the payload otherwise.
func (ft fieldTerm) expr() string {
	switch ft.spec.Kind {
	case schema.KindScalar, schema.KindUnique, schema.KindFullText, schema.KindExternal:
		return ft.alias + "." + ft.spec.Name
	default:
		return fmt.Sprintf("json_extract(%s.json, '%s')", ft.alias, ft.spec.JSONSteps()[0])
	}
}

// planBuilder accumulates the minimal join set for one query against a
// target type. The target table always has alias "t"; joins are added
// lazily as field paths require them and deduplicated by key, so two
// criteria terms on the same part share one join.
type planBuilder struct {
	target *schema.EntityType
	joins  []joinClause
	keys   map[string]string
}

func newPlanBuilder(target *schema.EntityType) *planBuilder {
	return &planBuilder{target: target, keys: make(map[string]string)}
}

// join returns the alias for key, adding the join clause on first use.
func (p *planBuilder) join(key, table string, cond func(alias string) string) string {
	if a, ok := p.keys[key]; ok {
		return a
	}
	alias := fmt.Sprintf("j%d", len(p.joins)+1)
	p.keys[key] = alias
	p.joins = append(p.joins, joinClause{table: table, alias: alias, cond: cond(alias)})
	return alias
}

// ancestorAlias joins the owner chain up the given number of levels and
// returns the alias of the last ancestor. Each link follows the part's
// container back-reference.
func (p *planBuilder) ancestorAlias(levels int) string {
	alias := "t"
	et := p.target
	for i := 1; i <= levels; i++ {
		parent := et.OwnerType()
		prev := alias
		alias = p.join(fmt.Sprintf("up:%d", i), parent.Table(), func(a string) string {
			return fmt.Sprintf("%s.container_row_id = %s.row_id", prev, a)
		})
		et = parent
	}
	return alias
}

// rootAlias returns the alias of the target's root table, joining it
// directly through the root back-reference when the target is a part.
// Version predicates anchor here.
func (p *planBuilder) rootAlias() string {
	if p.target.IsRoot() {
		return "t"
	}
	root := p.target.Root()
	return p.join("root", root.Table(), func(a string) string {
		return fmt.Sprintf("t.root_row_id = %s.row_id", a)
	})
}

// satelliteJoin joins the satellite table of an array-index field on its
// owning row and returns the satellite alias.
func (p *planBuilder) satelliteJoin(ft fieldTerm) string {
	key := "sat:" + ft.alias + ":" + ft.spec.Name
	return p.join(key, ft.et.SatelliteTable(ft.spec.Name), func(a string) string {
		return fmt.Sprintf("%s.owner_row_id = %s.row_id", a, ft.alias)
	})
}

// resolveField maps a criteria field path onto the ownership tree. A bare
// name resolves on the target first, then up the owner chain; a dotted
// path descends through owning fields into part types, transitively for
// parts of parts. Unmapped paths fail with ErrUnresolvableJoin before any
// SQL executes.
func (p *planBuilder) resolveField(path string) (fieldTerm, error) {
	segs := strings.Split(path, ".")

	if len(segs) == 1 {
		if f, ok := p.target.Field(path); ok {
			return fieldTerm{et: p.target, alias: "t", spec: f}, nil
		}
		level := 0
		for et := p.target.OwnerType(); et != nil; et = et.OwnerType() {
			level++
			if f, ok := et.Field(path); ok {
				return fieldTerm{et: et, alias: p.ancestorAlias(level), spec: f}, nil
			}
		}
		return fieldTerm{}, fmt.Errorf("field %s not found on %s or its owners: %w",
			path, p.target.Name, types.ErrUnresolvableJoin)
	}

	et := p.target
	alias := "t"
	prefix := ""
	for _, seg := range segs[:len(segs)-1] {
		pt, ok := et.PartType(seg)
		if !ok {
			return fieldTerm{}, fmt.Errorf("%s is not an owning field of %s: %w",
				seg, et.Name, types.ErrUnresolvableJoin)
		}
		prefix += seg + "."
		parent := alias
		alias = p.join("down:"+prefix, pt.Table(), func(a string) string {
			return fmt.Sprintf("%s.container_row_id = %s.row_id", a, parent)
		})
		et = pt
	}

	last := segs[len(segs)-1]
	f, ok := et.Field(last)
	if !ok {
		return fieldTerm{}, fmt.Errorf("field %s not found on %s: %w", last, et.Name, types.ErrUnresolvableJoin)
	}
	return fieldTerm{et: et, alias: alias, spec: f}, nil
}
