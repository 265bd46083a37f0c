package core

import (
	"context"
	"strings"
)

// RoleAuthorizer grants a call when the identity holds at least one of the
// required roles. An empty requirement is unchecked.
type RoleAuthorizer struct {
	// SuperRoles bypass method permissions entirely.
	SuperRoles []string
}

func NewRoleAuthorizer(superRoles ...string) *RoleAuthorizer {
	return &RoleAuthorizer{SuperRoles: normalizeRoles(superRoles)}
}

func (a *RoleAuthorizer) IsAuthorized(_ context.Context, identity SecurityIdentity, roles []string) (bool, error) {
	if len(roles) == 0 {
		return true, nil
	}
	held := map[string]struct{}{}
	for _, role := range identity.Roles {
		role = strings.TrimSpace(role)
		if role != "" {
			held[role] = struct{}{}
		}
	}
	if a != nil {
		for _, role := range a.SuperRoles {
			if _, ok := held[role]; ok {
				return true, nil
			}
		}
	}
	for _, role := range roles {
		if _, ok := held[strings.TrimSpace(role)]; ok {
			return true, nil
		}
	}
	return false, nil
}

// AuthorizeMethod applies method permissions: excluded methods deny
// everyone, empty role lists allow everyone, anything else is delegated.
func AuthorizeMethod(
	ctx context.Context,
	authorizer Authorizer,
	component ComponentMetadata,
	method Method,
	identity SecurityIdentity,
) (bool, error) {
	roles, excluded := component.AuthorizedRoles(method)
	if excluded {
		return false, nil
	}
	if len(roles) == 0 {
		return true, nil
	}
	if authorizer == nil {
		return false, nil
	}
	return authorizer.IsAuthorized(ctx, identity, roles)
}
