package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/strata-dev/strata/pkg/query"
)

// statementDoc is the YAML shape of a statement. Filters arrive in the
// plain wire shape and are decoded into typed expressions at load time,
// so request processing never inspects raw documents.
type statementDoc struct {
	Actions        []string `yaml:"actions"`
	Filters        []any    `yaml:"filters"`
	Fields         []string `yaml:"fields"`
	ReadonlyFields []string `yaml:"readonly_fields"`
}

type roleDoc struct {
	Inherits    []string                `yaml:"inherits"`
	Policies    []string                `yaml:"policies"`
	Permissions map[string]statementDoc `yaml:"permissions"`
}

type policyDoc struct {
	Permissions map[string]statementDoc `yaml:"permissions"`
}

type registryDoc struct {
	Roles    map[string]roleDoc   `yaml:"roles"`
	Policies map[string]policyDoc `yaml:"policies"`
}

// Parse builds a registry from a YAML document declaring roles and
// policies.
func Parse(data []byte) (*Registry, error) {
	var doc registryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}

	roles := make([]*Role, 0, len(doc.Roles))
	for name, rd := range doc.Roles {
		perms, err := parsePermissions(rd.Permissions)
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", name, err)
		}
		roles = append(roles, &Role{
			Name:        name,
			Inherits:    rd.Inherits,
			Policies:    rd.Policies,
			Permissions: perms,
		})
	}

	policies := make([]*Policy, 0, len(doc.Policies))
	for name, pd := range doc.Policies {
		perms, err := parsePermissions(pd.Permissions)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
		policies = append(policies, &Policy{Name: name, Permissions: perms})
	}

	return NewRegistry(roles, policies), nil
}

// LoadFile parses a registry from a YAML file on disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(data)
}

func parsePermissions(docs map[string]statementDoc) (map[string]Statement, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	perms := make(map[string]Statement, len(docs))
	for entity, sd := range docs {
		stmt, err := parseStatement(sd)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", entity, err)
		}
		perms[entity] = stmt
	}
	return perms, nil
}

func parseStatement(sd statementDoc) (Statement, error) {
	filters, err := query.DecodeList(sd.Filters)
	if err != nil {
		return Statement{}, fmt.Errorf("invalid filters: %w", err)
	}
	actions := make([]Action, 0, len(sd.Actions))
	for _, a := range sd.Actions {
		actions = append(actions, Action(a))
	}
	return Statement{
		Actions:        actions,
		Filters:        filters,
		Fields:         sd.Fields,
		ReadonlyFields: sd.ReadonlyFields,
	}, nil
}
