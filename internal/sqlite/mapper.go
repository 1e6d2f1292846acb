package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/strata/pkg/schema"
	"github.com/mesh-intelligence/strata/pkg/types"
)

// normalize converts any JSON-encodable value into a Document by a marshal
// round trip. Structs, maps, and raw documents all come out the same shape,
// so the rest of the engine only ever sees map[string]any.
func normalize(v any) (types.Document, error) {
	switch d := v.(type) {
	case types.Document:
		return d, nil
	case map[string]any:
		return types.Document(d), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var doc types.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	return doc, nil
}

// decodeDoc parses a stored JSON payload.
func decodeDoc(raw string) (types.Document, error) {
	var doc types.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decoding stored json: %w", err)
	}
	return doc, nil
}

// node is one entity instance in a decomposed document tree. doc is the
// full document including embedded parts; children holds the part nodes
// split out per owning field, in document order.
type node struct {
	et       *schema.EntityType
	doc      types.Document
	children map[string][]*node
}

// buildTree decomposes a document into its ownership tree. Each owning
// field's value is split into child nodes; a missing or null field yields
// no children. Values that do not match the declared shape fail.
func buildTree(et *schema.EntityType, doc types.Document) (*node, error) {
	n := &node{et: et, doc: doc, children: make(map[string][]*node)}
	for _, pf := range et.Parts {
		raw, ok := doc[pf.Field]
		if !ok || raw == nil {
			continue
		}
		pt, _ := et.PartType(pf.Field)
		if pf.Array {
			arr, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("field %s of %s: expected an array of documents", pf.Field, et.Name)
			}
			for i, el := range arr {
				m, ok := el.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("field %s[%d] of %s: expected a document", pf.Field, i, et.Name)
				}
				child, err := buildTree(pt, types.Document(m))
				if err != nil {
					return nil, err
				}
				n.children[pf.Field] = append(n.children[pf.Field], child)
			}
			continue
		}
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %s of %s: expected a document", pf.Field, et.Name)
		}
		child, err := buildTree(pt, types.Document(m))
		if err != nil {
			return nil, err
		}
		n.children[pf.Field] = []*node{child}
	}
	return n, nil
}

// ownJSON renders the node's payload with owned children stripped: each
// row stores only its own fields, and reads reassemble the tree from part
// rows.
func (n *node) ownJSON() (string, error) {
	own := make(map[string]any, len(n.doc))
	for k, v := range n.doc {
		own[k] = v
	}
	for _, pf := range n.et.Parts {
		delete(own, pf.Field)
	}
	raw, err := json.Marshal(own)
	if err != nil {
		return "", fmt.Errorf("encoding %s payload: %w", n.et.Name, err)
	}
	return string(raw), nil
}

// lookupPath follows a single-valued JSON-path step through a document.
func lookupPath(doc types.Document, step string) (any, bool) {
	segs, err := schema.ParseStep(step)
	if err != nil {
		return nil, false
	}
	var cur any = map[string]any(doc)
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// arrayValues extracts the scalar values an array-index field contributes
// to its satellite table. Each path walks the full document, fanning out
// at every unwind segment; nulls are dropped, remaining values must be
// scalars.
func arrayValues(n *node, f schema.FieldSpec) ([]any, error) {
	var out []any
	for _, step := range f.JSONSteps() {
		segs, err := schema.ParseStep(step)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", n.et.Name, f.Name, err)
		}
		vals := []any{map[string]any(n.doc)}
		for _, seg := range segs {
			var next []any
			for _, v := range vals {
				m, ok := v.(map[string]any)
				if !ok {
					continue
				}
				child, ok := m[seg.Key]
				if !ok || child == nil {
					continue
				}
				if seg.Unwind {
					arr, ok := child.([]any)
					if !ok {
						return nil, fmt.Errorf("field %s.%s: %q is not an array", n.et.Name, f.Name, seg.Key)
					}
					next = append(next, arr...)
				} else {
					next = append(next, child)
				}
			}
			vals = next
		}
		for _, v := range vals {
			switch v.(type) {
			case nil:
			case string, float64, bool:
				out = append(out, v)
			default:
				return nil, fmt.Errorf("field %s.%s: path yields a non-scalar value", n.et.Name, f.Name)
			}
		}
	}
	return out, nil
}

// externalValue resolves an external field against the node's ancestor
// chain. chain runs root first and ends with the node itself; the field's
// climb count picks the source document, its JSON step picks the value.
func externalValue(chain []*node, f schema.FieldSpec) (any, error) {
	c := f.Climbs()
	idx := len(chain) - 1 - c
	if idx < 0 {
		return nil, fmt.Errorf("field %s: path climbs past the root", f.Name)
	}
	v, _ := lookupPath(chain[idx].doc, f.JSONSteps()[0])
	return v, nil
}

// ftsText renders a full-text field value for the FTS5 table. Missing and
// null values index as empty.
func ftsText(doc types.Document, f schema.FieldSpec) string {
	v, ok := lookupPath(doc, f.JSONSteps()[0])
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// subtreeOf lists the types owned under top, directly or transitively, in
// creation order. top itself is excluded. Works from any type, not just
// roots, so part-targeted reads assemble their own subtrees.
func subtreeOf(reg *schema.Registry, top *schema.EntityType) []*schema.EntityType {
	var out []*schema.EntityType
	for _, t := range reg.CreationOrder() {
		if t == top {
			continue
		}
		for cur := t.OwnerType(); cur != nil; cur = cur.OwnerType() {
			if cur == top {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// owningField returns the owner's field under which the part type embeds.
func owningField(owner, part *schema.EntityType) (schema.PartField, bool) {
	for _, pf := range owner.Parts {
		if pf.TypeName == part.Name {
			return pf, true
		}
	}
	return schema.PartField{}, false
}

// assembleParts loads every part row under the given target rows and
// grafts the part documents back into their containers, restoring array
// order from the stored item order. One query per descendant table,
// whatever the number of targets: each level fetches by the container row
// ids collected at the level above.
func assembleParts(ctx context.Context, db *sql.DB, reg *schema.Registry, target *schema.EntityType, stored []*types.Stored) error {
	if len(stored) == 0 {
		return nil
	}
	parts := subtreeOf(reg, target)
	if len(parts) == 0 {
		return nil
	}

	docsOf := map[string]map[int64]types.Document{target.Name: make(map[int64]types.Document, len(stored))}
	for _, s := range stored {
		docsOf[target.Name][s.RowID] = s.Doc
	}

	for _, pt := range parts {
		owner := pt.OwnerType()
		pf, ok := owningField(owner, pt)
		if !ok {
			return fmt.Errorf("no owning field for %s on %s", pt.Name, owner.Name)
		}
		docsOf[pt.Name] = make(map[int64]types.Document)

		containers := docsOf[owner.Name]
		if len(containers) == 0 {
			continue
		}
		ids := make([]any, 0, len(containers))
		for id := range containers {
			ids = append(ids, id)
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

		q := fmt.Sprintf(
			"SELECT row_id, container_row_id, json FROM %s WHERE container_row_id IN (%s) ORDER BY container_row_id, item_order",
			pt.Table(), marks)
		rows, err := db.QueryContext(ctx, q, ids...)
		if err != nil {
			return fmt.Errorf("loading %s parts: %w", pt.Name, err)
		}
		for rows.Next() {
			var rowID, containerID int64
			var raw string
			if err := rows.Scan(&rowID, &containerID, &raw); err != nil {
				rows.Close()
				return fmt.Errorf("scanning %s part: %w", pt.Name, err)
			}
			doc, err := decodeDoc(raw)
			if err != nil {
				rows.Close()
				return err
			}
			docsOf[pt.Name][rowID] = doc

			parent := containers[containerID]
			if parent == nil {
				continue
			}
			if pf.Array {
				prev, _ := parent[pf.Field].([]any)
				parent[pf.Field] = append(prev, map[string]any(doc))
			} else {
				parent[pf.Field] = map[string]any(doc)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("loading %s parts: %w", pt.Name, err)
		}
		rows.Close()
	}
	return nil
}
