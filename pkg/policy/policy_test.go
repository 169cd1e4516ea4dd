package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-dev/strata/pkg/query"
)

const sampleDoc = `
policies:
  own_documents:
    permissions:
      documents:
        actions: [read, update]
        filters:
          - [owner_id, "=", "$user.id"]
        fields: [id, title, body]
        readonly_fields: [owner_id]

roles:
  viewer:
    permissions:
      documents:
        actions: [read]
  editor:
    inherits: [viewer]
    policies: [own_documents]
  admin:
    permissions:
      "*":
        actions: ["*"]
`

func TestParse(t *testing.T) {
	reg, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	editor, ok := reg.Role("editor")
	require.True(t, ok)
	assert.Equal(t, []string{"viewer"}, editor.Inherits)
	assert.Equal(t, []string{"own_documents"}, editor.Policies)

	pol, ok := reg.Policy("own_documents")
	require.True(t, ok)
	stmts := pol.StatementsFor("documents")
	require.Len(t, stmts, 1)
	assert.Equal(t, []Action{ActionRead, ActionUpdate}, stmts[0].Actions)
	assert.Equal(t, []string{"id", "title", "body"}, stmts[0].Fields)
	assert.Equal(t, []string{"owner_id"}, stmts[0].ReadonlyFields)

	// Filters are decoded into typed expressions at load time.
	require.Len(t, stmts[0].Filters, 1)
	crit, ok := stmts[0].Filters[0].(query.Criterion)
	require.True(t, ok)
	assert.Equal(t, "owner_id", crit.Field)
	assert.Equal(t, query.OpEqual, crit.Operator)
	assert.Equal(t, "$user.id", crit.Value)

	assert.ElementsMatch(t, []string{"viewer", "editor", "admin"}, reg.RoleNames())
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("roles: [broken"))
	assert.Error(t, err)
}

func TestParseInvalidFilter(t *testing.T) {
	_, err := Parse([]byte(`
roles:
  broken:
    permissions:
      documents:
        actions: [read]
        filters: [42]
`))
	assert.Error(t, err)
}

func TestStatementHasAction(t *testing.T) {
	s := Statement{Actions: []Action{ActionRead, ActionUpdate}}
	assert.True(t, s.HasAction(ActionRead))
	assert.False(t, s.HasAction(ActionDelete))

	wild := Statement{Actions: []Action{ActionWildcard}}
	assert.True(t, wild.HasAction(ActionDelete))
}

func TestStatementUnrestricted(t *testing.T) {
	assert.True(t, Statement{}.Unrestricted())
	assert.True(t, Statement{Fields: []string{"id", FieldWildcard}}.Unrestricted())
	assert.False(t, Statement{Fields: []string{"id"}}.Unrestricted())

	// An empty non-nil list restricts to no fields at all.
	assert.False(t, Statement{Fields: []string{}}.Unrestricted())
}

func TestStatementsForWildcardEntity(t *testing.T) {
	reg, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	admin, ok := reg.Role("admin")
	require.True(t, ok)
	stmts := admin.StatementsFor("anything")
	require.Len(t, stmts, 1)
	assert.True(t, stmts[0].HasAction(ActionDelete))

	// Exact entries come before the wildcard entry.
	role := &Role{Name: "mixed", Permissions: map[string]Statement{
		"documents":    {Actions: []Action{ActionRead}},
		EntityWildcard: {Actions: []Action{ActionWildcard}},
	}}
	stmts = role.StatementsFor("documents")
	require.Len(t, stmts, 2)
	assert.Equal(t, []Action{ActionRead}, stmts[0].Actions)
}

func TestRegistryGeneration(t *testing.T) {
	a := NewRegistry(nil, nil)
	b := NewRegistry(nil, nil)
	assert.NotEqual(t, a.Generation(), b.Generation())
}

func TestStoreSwap(t *testing.T) {
	first := NewRegistry([]*Role{{Name: "viewer"}}, nil)
	store := NewStore(first)
	assert.Same(t, first, store.Load())

	second := NewRegistry([]*Role{{Name: "editor"}}, nil)
	store.Swap(second)
	assert.Same(t, second, store.Load())

	// A nil swap keeps the current snapshot.
	store.Swap(nil)
	assert.Same(t, second, store.Load())
}

func TestNewStoreNil(t *testing.T) {
	store := NewStore(nil)
	require.NotNil(t, store.Load())
	assert.Empty(t, store.Load().RoleNames())
}
