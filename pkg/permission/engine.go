package permission

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/policy"
	"github.com/strata-dev/strata/pkg/query"
)

const defaultCacheSize = 1024

// Resolution is the outcome of resolving one (caller, entity, action)
// triple. It is derived per request and never persisted.
type Resolution struct {
	// Allowed reports whether the requested action may proceed.
	Allowed bool

	// Actions is the union of actions granted across all collected
	// statements.
	Actions map[policy.Action]bool

	// FilterGroups holds one alternative per contributing statement;
	// the record is visible when any alternative holds. Empty means no
	// row restriction.
	FilterGroups [][]query.Expression

	// Fields is the effective readable field set. nil means
	// unrestricted; an empty non-nil set means no fields are allowed.
	Fields []string

	// ReadonlyFields are fields visible but never writable.
	ReadonlyFields []string
}

// Filter collapses the alternatives into a single expression: nil when
// unrestricted, the lone group when only one statement contributed, or
// an or-combined group across alternatives.
func (r *Resolution) Filter() query.Expression {
	switch len(r.FilterGroups) {
	case 0:
		return nil
	case 1:
		return query.Group(r.FilterGroups[0])
	}
	combined := make(query.Group, 0, len(r.FilterGroups)+1)
	combined = append(combined, query.TokenOr)
	for _, group := range r.FilterGroups {
		combined = append(combined, query.Group(group))
	}
	return combined
}

// FieldAllowed reports whether the field may be read.
func (r *Resolution) FieldAllowed(name string) bool {
	if r.Fields == nil {
		return true
	}
	if name == api.IDField {
		return true
	}
	for _, f := range r.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// FieldWritable reports whether the field may be written.
func (r *Resolution) FieldWritable(name string) bool {
	for _, f := range r.ReadonlyFields {
		if f == name {
			return false
		}
	}
	return r.FieldAllowed(name)
}

// Engine resolves caller permissions against the current policy
// registry snapshot. Safe for concurrent use.
type Engine struct {
	store     *policy.Store
	cache     *lru.Cache[string, *mergedGrants]
	log       *logrus.Logger
	cacheSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for misconfiguration diagnostics.
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithCacheSize sets the resolution cache capacity. Zero disables the
// cache.
func WithCacheSize(n int) Option {
	return func(e *Engine) { e.cacheSize = n }
}

// NewEngine creates a permission engine over the given registry store.
func NewEngine(store *policy.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		log:       logrus.New(),
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cacheSize > 0 {
		cache, err := lru.New[string, *mergedGrants](e.cacheSize)
		if err == nil {
			e.cache = cache
		}
	}
	return e
}

// Resolve computes the permission decision for a caller acting on an
// entity. A system-bypass context is always allowed with no filter and
// no field restriction; that check runs first and is never inferred
// from role contents. An empty role set is always denied.
func (e *Engine) Resolve(caller *api.CallerContext, entity string, action policy.Action) *Resolution {
	if caller != nil && caller.IsSystemBypass {
		return &Resolution{
			Allowed: true,
			Actions: map[policy.Action]bool{policy.ActionWildcard: true},
		}
	}
	if caller == nil || len(caller.Roles) == 0 {
		return &Resolution{}
	}

	reg := e.store.Load()
	merged := e.mergedFor(reg, caller.Roles, entity)
	if len(merged.actions) == 0 {
		return &Resolution{}
	}

	res := &Resolution{
		Allowed:        merged.actions[action] || merged.actions[policy.ActionWildcard],
		Actions:        merged.actions,
		Fields:         merged.fields,
		ReadonlyFields: merged.readonly,
	}
	if !merged.filterUnrestricted {
		// Substitution runs after merging so every OR alternative sees
		// the same caller context.
		res.FilterGroups = substituteGroups(merged.filterGroups, caller, e.log)
	}
	return res
}

// mergedGrants is the cacheable, caller-independent part of a
// resolution: everything before variable substitution.
type mergedGrants struct {
	actions            map[policy.Action]bool
	filterGroups       [][]query.Expression
	filterUnrestricted bool
	fields             []string
	readonly           []string
}

func (e *Engine) mergedFor(reg *policy.Registry, roles []string, entity string) *mergedGrants {
	var key string
	if e.cache != nil {
		sorted := append([]string(nil), roles...)
		sort.Strings(sorted)
		key = fmt.Sprintf("%d|%s|%s", reg.Generation(), strings.Join(sorted, ","), entity)
		if cached, ok := e.cache.Get(key); ok {
			return cached
		}
	}

	visited := make(map[string]bool, len(roles))
	var stmts []policy.Statement
	for _, role := range roles {
		stmts = append(stmts, collectStatements(reg, role, entity, visited, e.log)...)
	}
	merged := mergeStatements(stmts)

	if e.cache != nil {
		e.cache.Add(key, merged)
	}
	return merged
}

// collectStatements walks one role's inheritance chain depth-first:
// inherited roles first, then referenced policies, then the role's own
// inline statements. The visited set is threaded explicitly so repeated
// or cyclic inherits references are each processed at most once.
// References to unregistered roles or policies are a logged no-op, not
// an error; a misconfigured name grants nothing.
func collectStatements(reg *policy.Registry, roleName, entity string, visited map[string]bool, log *logrus.Logger) []policy.Statement {
	if visited[roleName] {
		return nil
	}
	visited[roleName] = true

	role, ok := reg.Role(roleName)
	if !ok {
		log.WithField("role", roleName).Warn("skipping reference to unregistered role")
		return nil
	}

	var stmts []policy.Statement
	for _, parent := range role.Inherits {
		stmts = append(stmts, collectStatements(reg, parent, entity, visited, log)...)
	}
	for _, policyName := range role.Policies {
		pol, ok := reg.Policy(policyName)
		if !ok {
			log.WithFields(logrus.Fields{
				"role":   roleName,
				"policy": policyName,
			}).Warn("skipping reference to unregistered policy")
			continue
		}
		stmts = append(stmts, pol.StatementsFor(entity)...)
	}
	stmts = append(stmts, role.StatementsFor(entity)...)
	return stmts
}

func mergeStatements(stmts []policy.Statement) *mergedGrants {
	merged := &mergedGrants{actions: make(map[policy.Action]bool)}
	if len(stmts) == 0 {
		return merged
	}

	fieldsUnrestricted := false
	fieldSet := make(map[string]bool)
	readonlySet := make(map[string]bool)

	for _, stmt := range stmts {
		for _, a := range stmt.Actions {
			merged.actions[a] = true
		}
		for _, f := range stmt.ReadonlyFields {
			if !readonlySet[f] {
				readonlySet[f] = true
				merged.readonly = append(merged.readonly, f)
			}
		}

		// A statement without a field restriction lifts the restriction
		// for the whole merge: permissive grants win over narrow ones.
		if stmt.Unrestricted() {
			fieldsUnrestricted = true
		} else {
			for _, f := range stmt.Fields {
				if !fieldSet[f] {
					fieldSet[f] = true
					merged.fields = append(merged.fields, f)
				}
			}
		}

		// Each statement's filter list is one OR alternative. A
		// statement with no filters matches every record, which makes
		// the whole disjunction unrestricted.
		if len(stmt.Filters) == 0 {
			merged.filterUnrestricted = true
		} else {
			merged.filterGroups = append(merged.filterGroups, stmt.Filters)
		}
	}

	if fieldsUnrestricted {
		merged.fields = nil
	} else if merged.fields == nil {
		// Every statement carried an explicit empty field list: no
		// fields are allowed. Distinct from unrestricted.
		merged.fields = []string{}
	}
	if merged.filterUnrestricted {
		merged.filterGroups = nil
	}
	return merged
}
