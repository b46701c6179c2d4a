// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/timoguin/lakekeeper-sub000/internal/schema"
)

//go:embed model.conf
var anonymousModel string

//go:embed policy.csv
var anonymousPolicy string

const anonymousSubject = "anonymous"

// AnonymousConfig selects which relations unauthenticated callers may check.
type AnonymousConfig struct {
	// PolicyPath is a casbin policy file. Empty uses the embedded policy,
	// which permits nothing.
	PolicyPath string

	// Rules are extra "<type|*>:<relation pattern>" entries, e.g.
	// "warehouse:can_get_metadata" or "*:can_include_in_list".
	Rules []string
}

// AnonymousPolicy decides whether an anonymous request may be evaluated at
// all. A permitted check still runs against the graph as user:*.
type AnonymousPolicy struct {
	enforcer *casbin.SyncedEnforcer
}

// NewAnonymousPolicy builds the policy from the embedded model.
func NewAnonymousPolicy(cfg AnonymousConfig) (*AnonymousPolicy, error) {
	m, err := model.NewModelFromString(anonymousModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load anonymous model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if _, statErr := os.Stat(cfg.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("anonymous policy file: %w", statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicyLines(enforcer, anonymousPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymous enforcer: %w", err)
	}

	for _, rule := range cfg.Rules {
		typ, rel, ok := strings.Cut(rule, ":")
		if !ok || typ == "" || rel == "" {
			return nil, fmt.Errorf("anonymous rule %q: want <type>:<relation>", rule)
		}
		if _, err := enforcer.AddPolicy(anonymousSubject, typ, rel); err != nil {
			return nil, fmt.Errorf("failed to add anonymous rule %q: %w", rule, err)
		}
	}
	return &AnonymousPolicy{enforcer: enforcer}, nil
}

// loadPolicyLines reads "p, sub, obj, act" lines, skipping comments.
func loadPolicyLines(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] != "p" || len(parts) < 4 {
			continue
		}
		if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
		}
	}
	return nil
}

// Permits reports whether anonymous callers may check relation on objects
// of type t. A nil policy permits nothing.
func (p *AnonymousPolicy) Permits(t schema.TypeName, relation string) bool {
	if p == nil {
		return false
	}
	ok, err := p.enforcer.Enforce(anonymousSubject, string(t), relation)
	if err != nil {
		return false
	}
	return ok
}

// Rules returns the loaded (type, relation) rules.
func (p *AnonymousPolicy) Rules() [][]string {
	if p == nil {
		return nil
	}
	//nolint:errcheck // GetPolicy only fails on a nil model
	rules, _ := p.enforcer.GetPolicy()
	out := make([][]string, 0, len(rules))
	for _, r := range rules {
		if len(r) >= 3 {
			out = append(out, []string{r[1], r[2]})
		}
	}
	return out
}
