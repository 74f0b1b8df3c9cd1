package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/relgraph/privacy"
)

// mockMutation implements privacy.Mutation for testing.
type mockMutation struct {
	op     privacy.Op
	typ    string
	id     string
	member string
	fields map[string]any
}

func (m *mockMutation) Op() privacy.Op { return m.op }
func (m *mockMutation) Type() string   { return m.typ }
func (m *mockMutation) ID() string     { return m.id }
func (m *mockMutation) Member() string { return m.member }
func (m *mockMutation) Fields() []string {
	var names []string
	for k := range m.fields {
		names = append(names, k)
	}
	return names
}
func (m *mockMutation) Field(name string) (any, bool) {
	v, ok := m.fields[name]
	return v, ok
}

type mockQuery struct{ typ string }

func (q mockQuery) Type() string { return q.typ }

func TestDecisionErrors(t *testing.T) {
	tests := []struct {
		name      string
		decision  error
		wantAllow bool
		wantDeny  bool
		wantSkip  bool
	}{
		{name: "allow_decision", decision: privacy.Allow, wantAllow: true},
		{name: "deny_decision", decision: privacy.Deny, wantDeny: true},
		{name: "skip_decision", decision: privacy.Skip, wantSkip: true},
		{name: "allowf_formatted", decision: privacy.Allowf("user %s allowed", "admin"), wantAllow: true},
		{name: "denyf_formatted", decision: privacy.Denyf("user %s denied", "guest"), wantDeny: true},
		{name: "skipf_formatted", decision: privacy.Skipf("rule %d skipped", 1), wantSkip: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAllow, errors.Is(tt.decision, privacy.Allow))
			assert.Equal(t, tt.wantDeny, errors.Is(tt.decision, privacy.Deny))
			assert.Equal(t, tt.wantSkip, errors.Is(tt.decision, privacy.Skip))
			assert.Equal(t, tt.wantDeny, privacy.Denied(tt.decision))
		})
	}
	assert.False(t, privacy.Denied(nil))
	assert.True(t, privacy.Denied(errors.New("rule failed")))
}

func TestOp(t *testing.T) {
	assert.True(t, privacy.OpLink.Is(privacy.OpLink|privacy.OpUnlink))
	assert.False(t, privacy.OpCreate.Is(privacy.OpDelete))
	assert.Equal(t, "OpCreate", privacy.OpCreate.String())
	assert.Equal(t, "OpUpdate|OpUnlink", (privacy.OpUpdate | privacy.OpUnlink).String())
	assert.Equal(t, "Op(0)", privacy.Op(0).String())
}

func TestAlwaysRules(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, privacy.AlwaysAllowRule().EvalQuery(ctx, mockQuery{}), privacy.Allow)
	assert.ErrorIs(t, privacy.AlwaysAllowRule().EvalMutation(ctx, &mockMutation{}), privacy.Allow)
	assert.ErrorIs(t, privacy.AlwaysDenyRule().EvalQuery(ctx, mockQuery{}), privacy.Deny)
	assert.ErrorIs(t, privacy.AlwaysDenyRule().EvalMutation(ctx, &mockMutation{}), privacy.Deny)
}

func TestContextQueryMutationRule(t *testing.T) {
	type key struct{}
	rule := privacy.ContextQueryMutationRule(func(ctx context.Context) error {
		if ctx.Value(key{}) == "admin" {
			return privacy.Allow
		}
		return privacy.Skip
	})
	ctx := context.WithValue(context.Background(), key{}, "admin")
	assert.ErrorIs(t, rule.EvalMutation(ctx, &mockMutation{}), privacy.Allow)
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), mockQuery{}), privacy.Skip)
}

func TestOnMutationOperation(t *testing.T) {
	ctx := context.Background()
	rule := privacy.OnMutationOperation(privacy.AlwaysDenyRule(), privacy.OpDelete|privacy.OpUnlink)
	assert.ErrorIs(t, rule.EvalMutation(ctx, &mockMutation{op: privacy.OpDelete}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(ctx, &mockMutation{op: privacy.OpUnlink}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(ctx, &mockMutation{op: privacy.OpCreate}), privacy.Skip)

	deny := privacy.DenyMutationOperationRule(privacy.OpDelete)
	err := deny.EvalMutation(ctx, &mockMutation{op: privacy.OpDelete})
	assert.ErrorIs(t, err, privacy.Deny)
	assert.Contains(t, err.Error(), "operation OpDelete is not allowed")
}

func TestOnTypes(t *testing.T) {
	ctx := context.Background()
	rule := privacy.OnTypes(privacy.AlwaysDenyRule(), "Car", "Truck")
	assert.ErrorIs(t, rule.EvalMutation(ctx, &mockMutation{typ: "Truck"}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(ctx, &mockMutation{typ: "Wheel"}), privacy.Skip)
}

func TestDecisionContext(t *testing.T) {
	ctx := context.Background()
	_, ok := privacy.DecisionFromContext(ctx)
	assert.False(t, ok)
	assert.Equal(t, ctx, privacy.DecisionContext(ctx, privacy.Skip))

	allowed := privacy.DecisionContext(ctx, privacy.Allow)
	decision, ok := privacy.DecisionFromContext(allowed)
	assert.True(t, ok)
	assert.NoError(t, decision)

	policies := privacy.Policies{privacy.Policy{Mutation: privacy.MutationPolicy{privacy.AlwaysDenyRule()}}}
	assert.NoError(t, policies.EvalMutation(allowed, &mockMutation{}), "context decision wins")
	denied := privacy.DecisionContext(ctx, privacy.Deny)
	assert.ErrorIs(t, privacy.Policies{}.EvalMutation(denied, &mockMutation{}), privacy.Deny)
}

func TestMutationPolicy(t *testing.T) {
	ctx := context.Background()
	var calls int
	count := privacy.MutationRuleFunc(func(context.Context, privacy.Mutation) error {
		calls++
		return nil
	})
	policy := privacy.MutationPolicy{count, privacy.AlwaysDenyRule(), count}
	assert.ErrorIs(t, policy.EvalMutation(ctx, &mockMutation{}), privacy.Deny)
	assert.Equal(t, 1, calls, "evaluation stops at the first decision")

	assert.NoError(t, privacy.MutationPolicy{count, count}.EvalMutation(ctx, &mockMutation{}))
	assert.NoError(t, privacy.QueryPolicy{}.EvalQuery(ctx, mockQuery{}))
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	allowAll := privacy.Policy{
		Query:    privacy.QueryPolicy{privacy.AlwaysAllowRule()},
		Mutation: privacy.MutationPolicy{privacy.AlwaysAllowRule()},
	}
	denyAll := privacy.Policy{
		Query:    privacy.QueryPolicy{privacy.AlwaysDenyRule()},
		Mutation: privacy.MutationPolicy{privacy.AlwaysDenyRule()},
	}
	assert.NoError(t, privacy.Policies{allowAll, denyAll}.EvalMutation(ctx, &mockMutation{}))
	assert.ErrorIs(t, privacy.Policies{denyAll, allowAll}.EvalMutation(ctx, &mockMutation{}), privacy.Deny)
	assert.NoError(t, privacy.Policies{allowAll, denyAll}.EvalQuery(ctx, mockQuery{}))
	assert.ErrorIs(t, privacy.Policies{privacy.Policy{}, denyAll}.EvalQuery(ctx, mockQuery{}), privacy.Deny)
}
