// Package authz implements the static role policy backing the
// authorization seam. The core never authenticates; it only asks
// whether an already authenticated actor holds a permission.
package authz

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sellside/coedit/model"
)

type policyFile struct {
	// Roles maps a role name to the permissions it grants.
	Roles map[string][]string `yaml:"roles"`
	// Actors maps an actor ID to their roles.
	Actors map[string][]string `yaml:"actors"`
}

// StaticPolicy resolves permissions from a static YAML file mapping
// actors to roles and roles to permission strings. It implements
// model.Authorizer.
type StaticPolicy struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicy creates a policy that loads from path.
func NewStaticPolicy(path string) (*StaticPolicy, error) {
	p := &StaticPolicy{path: path}
	if err := p.Sync(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewStaticPolicyFromMap builds a policy directly from role and actor
// maps, for tests and the memory storage mode.
func NewStaticPolicyFromMap(roles map[string][]string, actors map[string][]string) *StaticPolicy {
	return &StaticPolicy{policy: policyFile{Roles: roles, Actors: actors}}
}

// Allowed reports whether the actor holds the permission through any of
// their roles. The record argument is accepted for interface symmetry;
// role grants are not record-scoped.
func (p *StaticPolicy) Allowed(_ context.Context, actorID, permission string, _ *model.Record) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, role := range p.policy.Actors[actorID] {
		for _, perm := range p.policy.Roles[role] {
			if perm == permission {
				return true, nil
			}
		}
	}
	return false, nil
}

// Sync reloads the policy file from disk.
func (p *StaticPolicy) Sync() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("authz: reading policy file %s: %w", p.path, err)
	}

	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("authz: parsing policy file %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.policy = pf
	p.mu.Unlock()

	return nil
}

// AllowAll is an authorizer that permits everything. It is the default
// when no policy file is configured, for development and tests.
type AllowAll struct{}

// Allowed always reports true.
func (AllowAll) Allowed(context.Context, string, string, *model.Record) (bool, error) {
	return true, nil
}
