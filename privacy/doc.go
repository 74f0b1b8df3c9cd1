// Package privacy provides the rules evaluated by the DAO before it applies
// a mutation or serves a read.
//
// Rules return Allow, Deny or Skip decisions. A policy evaluates its rules in
// order until one returns Allow or Deny; when every rule skips, the
// operation is allowed.
//
//	policy := privacy.Policy{
//	    Mutation: privacy.MutationPolicy{
//	        privacy.DenyIfNoViewer(),
//	        privacy.DenyMemberRule("Car", "driver"),
//	        privacy.HasRole("admin"),
//	        privacy.OnTypes(privacy.IsOwner("owner"), "Car"),
//	        privacy.AlwaysDenyRule(),
//	    },
//	}
//	client := dao.NewClient(s, st, dao.WithPolicy(policy))
//
// The viewer travels in the context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "u1", Roles: []string{"user"}})
//
// Mutations rejected by a policy fail with a *relgraph.PrivacyError.
package privacy
