package privacy

import (
	"context"
	"fmt"
	"slices"
)

// Viewer represents the authenticated user making a request.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant, or "" if not applicable.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present
// in the context. It is typically the first rule of a policy:
//
//	privacy.MutationPolicy{
//	    privacy.DenyIfNoViewer(),
//	    privacy.HasRole("admin"),
//	    privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("relgraph/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the role,
// and skips otherwise.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the
// roles, and skips otherwise.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a mutation rule that allows the mutation if the named
// attribute it sets holds the viewer's ID.
func IsOwner(attr string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		value, ok := m.Field(attr)
		if !ok {
			return Skip
		}
		if fmt.Sprint(value) == viewer.GetID() {
			return Allow
		}
		return Skip
	})
}

// TenantRule returns a mutation rule that allows the mutation if the named
// attribute matches the viewer's tenant and denies it on a mismatch.
func TenantRule(attr string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		value, ok := m.Field(attr)
		if !ok {
			return Skip
		}
		if fmt.Sprint(value) == viewer.GetTenantID() {
			return Allow
		}
		return Denyf("relgraph/privacy: tenant mismatch")
	})
}

// TenantQueryRule returns a query rule that denies reads without a viewer
// or tenant.
func TenantQueryRule() QueryRule {
	return QueryRuleFunc(func(ctx context.Context, _ Query) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("relgraph/privacy: viewer required for tenant-filtered query")
		}
		if viewer.GetTenantID() == "" {
			return Denyf("relgraph/privacy: tenant required")
		}
		return Skip
	})
}

// AllowMutationOperationRule returns a rule allowing specified mutation operation.
func AllowMutationOperationRule(op Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// DenyMemberRule returns a rule denying edge changes on the named relation
// members of an entity type, e.g. DenyMemberRule("Car", "driver").
func DenyMemberRule(typ string, members ...string) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m Mutation) error {
		if m.Type() == typ && slices.Contains(members, m.Member()) {
			return Denyf("relgraph/privacy: %s.%s is read-only", typ, m.Member())
		}
		return Skip
	})
	return OnMutationOperation(rule, OpLink|OpUnlink)
}
