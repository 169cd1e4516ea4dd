package policy

import (
	"github.com/strata-dev/strata/pkg/query"
)

// Action is an operation a statement can grant on an entity.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// ActionWildcard grants every action.
	ActionWildcard Action = "*"
)

// EntityWildcard matches every entity name in a permission map.
const EntityWildcard = "*"

// FieldWildcard inside a statement's field list lifts the field
// restriction entirely.
const FieldWildcard = "*"

// Statement grants a set of actions on one entity, optionally narrowed
// by row filters and a field allow-list.
//
// Fields semantics: a nil slice (the key absent in the source document)
// means no field restriction; a slice containing FieldWildcard likewise;
// an empty non-nil slice means no fields are allowed. The three states
// are distinct and must survive merging.
type Statement struct {
	Actions        []Action
	Filters        []query.Expression
	Fields         []string
	ReadonlyFields []string
}

// HasAction reports whether the statement grants the action, directly or
// through the wildcard.
func (s Statement) HasAction(a Action) bool {
	for _, action := range s.Actions {
		if action == a || action == ActionWildcard {
			return true
		}
	}
	return false
}

// Unrestricted reports whether the statement places no field
// restriction on reads.
func (s Statement) Unrestricted() bool {
	if s.Fields == nil {
		return true
	}
	for _, f := range s.Fields {
		if f == FieldWildcard {
			return true
		}
	}
	return false
}

// Policy is a named, reusable bundle of per-entity statements. Created
// at configuration load, immutable thereafter.
type Policy struct {
	Name        string
	Permissions map[string]Statement
}

// Role groups policies, inline statements and optional parent roles.
// Created at configuration load, immutable thereafter; read-only during
// request processing.
type Role struct {
	Name        string
	Inherits    []string
	Policies    []string
	Permissions map[string]Statement
}

// StatementsFor returns the policy's statements applying to the entity:
// the exact entry first, then the wildcard entry.
func (p *Policy) StatementsFor(entity string) []Statement {
	return statementsFor(p.Permissions, entity)
}

// StatementsFor returns the role's inline statements applying to the
// entity: the exact entry first, then the wildcard entry.
func (r *Role) StatementsFor(entity string) []Statement {
	return statementsFor(r.Permissions, entity)
}

func statementsFor(perms map[string]Statement, entity string) []Statement {
	var out []Statement
	if s, ok := perms[entity]; ok {
		out = append(out, s)
	}
	if s, ok := perms[EntityWildcard]; ok && entity != EntityWildcard {
		out = append(out, s)
	}
	return out
}
