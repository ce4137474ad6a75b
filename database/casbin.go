package database

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// Subjects are the relation of the acting user to a message, not user ids.
const (
	RoleSender      = "sender"
	RoleReceiver    = "receiver"
	RoleParticipant = "participant"
	RoleOutsider    = "outsider"

	ObjectMessage = "message"
)

// Actions checked against ObjectMessage.
const (
	ActionRead           = "read"
	ActionReact          = "react"
	ActionPin            = "pin"
	ActionDeleteSelf     = "delete_self"
	ActionEdit           = "edit"
	ActionDeleteEveryone = "delete_everyone"
)

const messagePolicyModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

var defaultPolicies = [][]string{
	{RoleParticipant, ObjectMessage, ActionRead},
	{RoleParticipant, ObjectMessage, ActionReact},
	{RoleParticipant, ObjectMessage, ActionPin},
	{RoleParticipant, ObjectMessage, ActionDeleteSelf},
	{RoleSender, ObjectMessage, ActionEdit},
	{RoleSender, ObjectMessage, ActionDeleteEveryone},
}

var defaultGroups = [][]string{
	{RoleSender, RoleParticipant},
	{RoleReceiver, RoleParticipant},
}

// Casbin builds the message permission enforcer. Policies live in the
// casbin_rule table so operators can tighten them without a deploy; the
// defaults are only added when missing.
func Casbin(db *gorm.DB) (*casbin.Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize casbin adapter: %w", err)
	}

	m, err := casbinmodel.NewModelFromString(messagePolicyModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	for _, p := range defaultPolicies {
		if has, _ := e.HasPolicy(p[0], p[1], p[2]); !has {
			if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
				return nil, fmt.Errorf("failed to add policy %v: %w", p, err)
			}
		}
	}
	for _, g := range defaultGroups {
		if has, _ := e.HasGroupingPolicy(g[0], g[1]); !has {
			if _, err := e.AddGroupingPolicy(g[0], g[1]); err != nil {
				return nil, fmt.Errorf("failed to add role %v: %w", g, err)
			}
		}
	}

	return e, nil
}
