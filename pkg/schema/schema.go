// Package schema holds the declared entity metadata: which backend an
// entity lives on and optionally its declared fields. Entities are
// declared as data and loaded once; the registry is read-only during
// request processing.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Field declares one entity field.
type Field struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

// Entity declares one entity's storage placement and shape.
type Entity struct {
	Name string `yaml:"-"`

	// Backend names the driver this entity is stored on.
	Backend string `yaml:"backend"`

	// Fields optionally declares the entity's fields. When non-empty,
	// writes carrying undeclared keys are rejected.
	Fields []Field `yaml:"fields,omitempty"`
}

// HasField reports whether the field is declared on the entity. Entities
// without declared fields accept any field.
func (e *Entity) HasField(name string) bool {
	if len(e.Fields) == 0 {
		return true
	}
	if name == "id" {
		return true
	}
	for _, f := range e.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Schema is the read-only entity registry.
type Schema struct {
	entities map[string]*Entity
}

// New builds a schema from declared entities.
func New(entities []*Entity) *Schema {
	s := &Schema{entities: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		s.entities[e.Name] = e
	}
	return s
}

// Entity looks up an entity declaration by name.
func (s *Schema) Entity(name string) (*Entity, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// EntityNames returns the declared entity names, in no particular order.
func (s *Schema) EntityNames() []string {
	names := make([]string, 0, len(s.entities))
	for name := range s.entities {
		names = append(names, name)
	}
	return names
}

type schemaDoc struct {
	Entities map[string]*Entity `yaml:"entities"`
}

// Parse builds a schema from a YAML document.
func Parse(data []byte) (*Schema, error) {
	var doc schemaDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema document: %w", err)
	}
	entities := make([]*Entity, 0, len(doc.Entities))
	for name, e := range doc.Entities {
		if e == nil {
			e = &Entity{}
		}
		e.Name = name
		entities = append(entities, e)
	}
	return New(entities), nil
}

// LoadFile parses a schema from a YAML file on disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}
