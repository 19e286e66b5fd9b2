package permissions

import (
	"fmt"
	"sort"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/sirupsen/logrus"

	"doclife/internal/domain"
)

// Actions besides transition names.
const (
	ActionCreate = "create"
	ActionDelete = "delete"
)

const policyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

// Policy answers "may a role perform action on kind" for transitions,
// creation and deletion. Rules are loaded once at startup.
type Policy struct {
	enforcer *casbin.Enforcer
	rules    [][3]string
	logger   *logrus.Entry
}

func NewPolicy(logger *logrus.Entry) (*Policy, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("policy: parse model: %w", err)
	}
	enf, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("policy: init enforcer: %w", err)
	}
	if logger == nil {
		logger = logrus.WithField("component", "policy")
	}
	return &Policy{enforcer: enf, logger: logger}, nil
}

// Allow grants role the action on kind.
func (p *Policy) Allow(role string, kind domain.Kind, action string) error {
	added, err := p.enforcer.AddPolicy(role, string(kind), action)
	if err != nil {
		return fmt.Errorf("policy: add %s/%s/%s: %w", role, kind, action, err)
	}
	if added {
		p.rules = append(p.rules, [3]string{role, string(kind), action})
	}
	return nil
}

// Allowed reports whether any of roles may perform action on kind.
func (p *Policy) Allowed(roles []string, kind domain.Kind, action string) (bool, error) {
	for _, role := range roles {
		ok, err := p.enforcer.Enforce(role, string(kind), action)
		if err != nil {
			return false, fmt.Errorf("policy: enforce: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	p.logger.WithFields(logrus.Fields{
		"roles":  roles,
		"kind":   kind,
		"action": action,
	}).Debug("policy deny")
	return false, nil
}

// RolesFor lists the roles granted action on kind, sorted.
func (p *Policy) RolesFor(kind domain.Kind, action string) []string {
	var out []string
	for _, r := range p.rules {
		if r[1] == string(kind) && (r[2] == action || r[2] == "*") {
			out = append(out, r[0])
		}
	}
	sort.Strings(out)
	return out
}
