package schema

import (
	"fmt"
	"io"

	yaml "gopkg.in/yaml.v2"
)

// Model is the YAML declaration-file form of a registry: a list of entity
// types with their fields and owning fields. Field kinds use the
// StorageKind names ("payload", "scalar-index", "unique-index",
// "array-index", "full-text", "external").
type Model struct {
	Entities []ModelEntity `yaml:"entities"`
}

// ModelEntity is one entity declaration in a model file.
type ModelEntity struct {
	Name      string       `yaml:"name"`
	Identity  string       `yaml:"identity,omitempty"`
	Owner     string       `yaml:"owner,omitempty"`
	Versioned bool         `yaml:"versioned,omitempty"`
	Fields    []ModelField `yaml:"fields"`
	Parts     []ModelPart  `yaml:"parts,omitempty"`
}

// ModelField is one field declaration in a model file.
type ModelField struct {
	Name  string   `yaml:"name"`
	Kind  string   `yaml:"kind,omitempty"`
	Type  string   `yaml:"type,omitempty"`
	Paths []string `yaml:"paths,omitempty"`
}

// ModelPart is one owning-field declaration in a model file.
type ModelPart struct {
	Field string `yaml:"field"`
	Type  string `yaml:"type"`
	Array bool   `yaml:"array,omitempty"`
}

// kindNames maps model-file kind strings to storage kinds. The empty
// string means payload.
var kindNames = map[string]StorageKind{
	"":             KindPayload,
	"payload":      KindPayload,
	"scalar-index": KindScalar,
	"unique-index": KindUnique,
	"array-index":  KindArray,
	"full-text":    KindFullText,
	"external":     KindExternal,
}

// typeNames maps model-file type strings to column types. The empty
// string means TEXT.
var typeNames = map[string]ValueType{
	"":        TypeText,
	"TEXT":    TypeText,
	"INTEGER": TypeInteger,
	"REAL":    TypeReal,
	"text":    TypeText,
	"integer": TypeInteger,
	"real":    TypeReal,
}

// LoadModel reads a YAML model file and returns a resolved registry.
func LoadModel(r io.Reader) (*Registry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	return ParseModel(raw)
}

// ParseModel parses YAML model bytes and returns a resolved registry.
func ParseModel(raw []byte) (*Registry, error) {
	var m Model
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing model: %w: %v", ErrInvalidMetadata, err)
	}
	if len(m.Entities) == 0 {
		return nil, fmt.Errorf("model declares no entities: %w", ErrInvalidMetadata)
	}

	reg := NewRegistry()
	for _, e := range m.Entities {
		et, err := e.entityType()
		if err != nil {
			return nil, err
		}
		if err := reg.Declare(et); err != nil {
			return nil, err
		}
	}
	if err := reg.Resolve(); err != nil {
		return nil, err
	}
	return reg, nil
}

// entityType converts one model declaration into an EntityType.
func (e ModelEntity) entityType() (*EntityType, error) {
	et := &EntityType{
		Name:      e.Name,
		Identity:  e.Identity,
		Owner:     e.Owner,
		Versioned: e.Versioned,
	}
	for _, f := range e.Fields {
		kind, ok := kindNames[f.Kind]
		if !ok {
			return nil, fmt.Errorf("entity %s field %s: unknown kind %q: %w",
				e.Name, f.Name, f.Kind, ErrInvalidMetadata)
		}
		vt, ok := typeNames[f.Type]
		if !ok {
			return nil, fmt.Errorf("entity %s field %s: unknown type %q: %w",
				e.Name, f.Name, f.Type, ErrInvalidMetadata)
		}
		et.Fields = append(et.Fields, FieldSpec{Name: f.Name, Kind: kind, Type: vt, Paths: f.Paths})
	}
	for _, p := range e.Parts {
		et.Parts = append(et.Parts, PartField{Field: p.Field, TypeName: p.Type, Array: p.Array})
	}
	return et, nil
}
