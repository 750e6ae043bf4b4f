// Package authz decides which role may perform which action on which resource.
// Policies are casbin rules over (role, resource, action).
package authz

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Resources and actions referenced by routes.
const (
	ResourceReport  = "report"
	ResourceComment = "comment"
	ResourceMessage = "message"
	ResourceUser    = "user"
	ResourceAudit   = "audit"

	ActionCreate       = "create"
	ActionRead         = "read"
	ActionWrite        = "write"
	ActionReview       = "review"
	ActionAssign       = "assign"
	ActionUpdateStatus = "update_status"
	ActionReadAssigned = "read_assigned"
	ActionExport       = "export"
	ActionManage       = "manage"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Enforcer wraps a synced casbin enforcer loaded with the embedded model and policy.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds the enforcer from the embedded model and policy.
func NewEnforcer() (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadPolicy(e, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: e}, nil
}

func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch parts[0] {
		case "p":
			if len(parts) != 4 {
				return fmt.Errorf("malformed policy line %q", line)
			}
			if _, err := e.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add policy %q: %w", line, err)
			}
		case "g":
			if len(parts) != 3 {
				return fmt.Errorf("malformed grouping line %q", line)
			}
			if _, err := e.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add grouping %q: %w", line, err)
			}
		default:
			return fmt.Errorf("unknown policy type in %q", line)
		}
	}
	return nil
}

// Allow reports whether role may perform action on resource.
func (e *Enforcer) Allow(role, resource, action string) (bool, error) {
	if role == "" {
		return false, nil
	}
	return e.enforcer.Enforce(role, resource, action)
}
