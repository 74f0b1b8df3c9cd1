package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Policy decision sentinel errors.
//
// Rules return one of these (possibly wrapped) to steer the evaluation:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow terminates the evaluation with an allow decision.
	Allow = errors.New("relgraph/privacy: allow rule")

	// Deny terminates the evaluation with a deny decision.
	Deny = errors.New("relgraph/privacy: deny rule")

	// Skip continues the evaluation with the next rule.
	Skip = errors.New("relgraph/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Op is a bitmask of mutation operations.
type Op uint

// Mutation operations.
const (
	OpCreate Op = 1 << iota // Instance creation, including nested payload nodes.
	OpUpdate                // Attribute update.
	OpDelete                // Instance deletion, including cascaded instances.
	OpLink                  // Relation edges added or set.
	OpUnlink                // Relation edges removed or unset.
)

// Is reports whether o matches any operation in the given mask.
func (o Op) Is(mask Op) bool { return o&mask != 0 }

var opNames = []string{"OpCreate", "OpUpdate", "OpDelete", "OpLink", "OpUnlink"}

// String returns the names of the operations in o joined by "|".
func (o Op) String() string {
	var names []string
	for i, name := range opNames {
		if o&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Op(%d)", uint(o))
	}
	return strings.Join(names, "|")
}

// Mutation describes a single write about to be applied.
type Mutation interface {
	// Op returns the operation.
	Op() Op
	// Type returns the concrete entity type name of the mutated instance.
	Type() string
	// ID returns the identifier of the mutated instance.
	ID() string
	// Member returns the relation member for OpLink and OpUnlink.
	Member() string
	// Fields returns the names of the attributes set by the mutation.
	Fields() []string
	// Field returns the value of an attribute set by the mutation.
	Field(name string) (any, bool)
}

// Query describes a read.
type Query interface {
	// Type returns the entity type name being read.
	Type() string
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context evaluation function.
// Returning nil from eval is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

type (
	// QueryRule decides whether a query is allowed.
	QueryRule interface {
		EvalQuery(context.Context, Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule decides whether a mutation is allowed.
	MutationRule interface {
		EvalMutation(context.Context, Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}

	// Evaluator is implemented by Policy and Policies.
	Evaluator interface {
		EvalQuery(context.Context, Query) error
		EvalMutation(context.Context, Mutation) error
	}
)

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m Mutation) error {
	return f(ctx, m)
}

// QueryRuleFunc type is an adapter which allows the use of
// ordinary functions as query rules.
type QueryRuleFunc func(context.Context, Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q Query) error {
	return f(ctx, q)
}

// OnMutationOperation evaluates the given rule only on a given mutation operation.
func OnMutationOperation(rule MutationRule, op Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		if m.Op().Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// OnTypes evaluates the given rule only on mutations of the named entity types.
func OnTypes(rule MutationRule, types ...string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m Mutation) error {
		if slices.Contains(types, m.Type()) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying specified mutation operation.
func DenyMutationOperationRule(op Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m Mutation) error {
		return Denyf("relgraph/privacy: operation %s is not allowed", m.Op())
	})
	return OnMutationOperation(rule, op)
}

// Policy groups query and mutation policies.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery forwards evaluation to the query policy.
func (p Policy) EvalQuery(ctx context.Context, q Query) error {
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation forwards evaluation to the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, m Mutation) error {
	return p.Mutation.EvalMutation(ctx, m)
}

// Policies combines multiple policies into a single policy.
type Policies []Evaluator

// EvalQuery evaluates the query policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalQuery(ctx context.Context, q Query) error {
	return policies.eval(ctx, func(policy Evaluator) error {
		return policy.EvalQuery(ctx, q)
	})
}

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalMutation(ctx context.Context, m Mutation) error {
	return policies.eval(ctx, func(policy Evaluator) error {
		return policy.EvalMutation(ctx, m)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(Evaluator) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates a query against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q Query) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// Denied reports whether a policy decision rejects the operation.
func Denied(decision error) bool {
	return decision != nil && !errors.Is(decision, Allow) && !errors.Is(decision, Skip)
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ Mutation) error {
	return c.eval(ctx)
}

var (
	_ Evaluator = Policy{}
	_ Evaluator = Policies(nil)
)
