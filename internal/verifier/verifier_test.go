package verifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzardx/davinci/internal/graph"
	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/internal/registry"
	"github.com/wizzardx/davinci/pkg/schema"
)

// --- Helpers ---

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	g   *graph.Graph
	x   *machine.Extraction
	reg *registry.Registry
}

func newFixture(t *testing.T, components ...schema.ComponentDecl) *fixture {
	t.Helper()
	g, err := graph.Parse(&schema.Document{Components: components})
	require.NoError(t, err)
	return &fixture{g: g, x: machine.ExtractAll(g, machine.ExtractOptions{}), reg: registry.New()}
}

func (f *fixture) add(t *testing.T, scope, id string, m schema.Method, spec string) {
	t.Helper()
	require.NoError(t, f.reg.Register(scope, schema.Property{
		ID: id, Method: m, Specification: spec, Severity: schema.SeverityCritical,
	}))
}

func (f *fixture) verify(t *testing.T, cfg Config) []schema.VerificationResult {
	t.Helper()
	return f.verifyCtx(context.Background(), cfg)
}

func (f *fixture) verifyCtx(ctx context.Context, cfg Config) []schema.VerificationResult {
	f.reg.Seal()
	return New(cfg, quietLogger()).Verify(ctx, f.g, f.x, f.reg)
}

func approval(withReject bool) schema.ComponentDecl {
	transitions := []schema.TransitionDecl{
		{ID: "submit", From: "draft", To: "pending-review", Trigger: "submit", Roles: []string{"trader"}},
		{ID: "approve", From: "pending-review", To: "approved", Trigger: "approve", Roles: []string{"reviewer"}},
	}
	if withReject {
		transitions = append(transitions, schema.TransitionDecl{
			ID: "reject", From: "pending-review", To: "rejected", Trigger: "reject", Roles: []string{"reviewer"},
		})
	}
	return schema.ComponentDecl{
		ID: "approval",
		State: &schema.StateDecl{
			Initial: "draft",
			States: []schema.StateNodeDecl{
				{ID: "draft", Triggers: []string{"submit"}},
				{ID: "pending-review", Triggers: []string{"approve", "reject"}},
				{ID: "approved", Terminal: true},
				{ID: "rejected", Terminal: true},
			},
			Transitions: transitions,
		},
	}
}

// spinner has no terminal state and branches on every step, so a path search
// never completes on its own.
func spinner() schema.ComponentDecl {
	return schema.ComponentDecl{
		ID: "spinner",
		State: &schema.StateDecl{
			States: []schema.StateNodeDecl{{ID: "a"}, {ID: "b"}},
			Transitions: []schema.TransitionDecl{
				{From: "a", To: "b", Trigger: "x"},
				{From: "a", To: "a", Trigger: "y"},
				{From: "b", To: "a", Trigger: "x"},
				{From: "b", To: "b", Trigger: "y"},
			},
		},
	}
}

// --- Scenario ---

func TestVerify_ApprovalScenario(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval", "terminals-reachable", schema.MethodReachability, "")
	f.add(t, "approval", "process-completeness", schema.MethodCompleteness, "")

	results := f.verify(t, Config{})
	require.Len(t, results, 2)
	assert.Equal(t, schema.StatusProven, results[0].Status, results[0].Message)
	assert.Contains(t, results[0].Message, "approved via draft -[submit]-> pending-review -[approve]-> approved")
	assert.Equal(t, schema.StatusProven, results[1].Status, results[1].Message)
}

func TestVerify_ApprovalScenarioWithoutReject(t *testing.T) {
	f := newFixture(t, approval(false))
	f.add(t, "approval", "terminals-reachable", schema.MethodReachability, "")
	f.add(t, "approval", "process-completeness", schema.MethodCompleteness, "")

	results := f.verify(t, Config{})
	require.Len(t, results, 2)

	reach := results[0]
	assert.Equal(t, schema.StatusViolated, reach.Status)
	assert.Equal(t, "rejected", reach.Location)
	assert.Equal(t, "approval", reach.Component)

	comp := results[1]
	assert.Equal(t, schema.StatusViolated, comp.Status)
	assert.Equal(t, "pending-review", comp.Location)
	assert.Contains(t, comp.Message, "handles 1 of 2 expected triggers")
	assert.Contains(t, comp.Message, "reject")
	require.Len(t, comp.Counterexample, 1)
	assert.Equal(t, "submit", comp.Counterexample[0].ID)
}

// --- Completeness ---

func TestCompleteness_DeadEnd(t *testing.T) {
	f := newFixture(t, schema.ComponentDecl{
		ID: "flow",
		State: &schema.StateDecl{
			States: []schema.StateNodeDecl{{ID: "start"}, {ID: "stuck"}, {ID: "done", Terminal: true}},
			Transitions: []schema.TransitionDecl{
				{From: "start", To: "stuck", Trigger: "go"},
				{From: "start", To: "done", Trigger: "finish"},
			},
		},
	})
	f.add(t, "flow", "no-dead-ends", schema.MethodCompleteness, "")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusViolated, r.Status)
	assert.Equal(t, "stuck", r.Location)
	assert.Contains(t, r.Message, "no outgoing transition")
}

func TestCompleteness_Nondeterministic(t *testing.T) {
	f := newFixture(t, schema.ComponentDecl{
		ID: "flow",
		State: &schema.StateDecl{
			States: []schema.StateNodeDecl{{ID: "s"}, {ID: "a", Terminal: true}, {ID: "b", Terminal: true}},
			Transitions: []schema.TransitionDecl{
				{ID: "t1", From: "s", To: "a", Trigger: "go", Guards: []string{"x > 1"}},
				{ID: "t2", From: "s", To: "b", Trigger: "go", Guards: []string{"x > 1"}},
			},
		},
	})
	f.add(t, "flow", "deterministic", schema.MethodCompleteness, "")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusViolated, r.Status)
	require.Len(t, r.Counterexample, 2)
	assert.Equal(t, "t1", r.Counterexample[0].ID)
	assert.Equal(t, "t2", r.Counterexample[1].ID)
}

func TestCompleteness_AmbiguousTriggerDespiteGuards(t *testing.T) {
	f := newFixture(t, schema.ComponentDecl{
		ID: "payment",
		State: &schema.StateDecl{
			States: []schema.StateNodeDecl{
				{ID: "pending", Triggers: []string{"approve"}},
				{ID: "paid", Terminal: true},
				{ID: "escalated", Terminal: true},
			},
			Transitions: []schema.TransitionDecl{
				{ID: "auto", From: "pending", To: "paid", Trigger: "approve"},
				{ID: "large", From: "pending", To: "escalated", Trigger: "approve", Guards: []string{"amount > 100"}},
			},
		},
	})
	f.add(t, "payment", "deterministic", schema.MethodCompleteness, "")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusViolated, r.Status, r.Message)
	assert.Equal(t, "pending", r.Location)
	assert.Contains(t, r.Message, `ambiguous trigger "approve"`)
	require.Len(t, r.Counterexample, 2)
	assert.Equal(t, "auto", r.Counterexample[0].ID)
	assert.Equal(t, "large", r.Counterexample[1].ID)
}

func TestCompleteness_DistinctTriggersProven(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval", "deterministic", schema.MethodCompleteness, "")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusProven, r.Status, r.Message)
	assert.Contains(t, r.Message, "exactly one transition")
}

// --- Role-based access ---

func segregationWorkflow(approver string) schema.ComponentDecl {
	return schema.ComponentDecl{
		ID: "trade",
		State: &schema.StateDecl{
			States: []schema.StateNodeDecl{{ID: "new"}, {ID: "submitted"}, {ID: "booked", Terminal: true}},
			Transitions: []schema.TransitionDecl{
				{ID: "submit", From: "new", To: "submitted", Trigger: "submit", Roles: []string{"trader"}},
				{ID: "approve", From: "submitted", To: "booked", Trigger: "approve", Roles: []string{approver}},
			},
		},
	}
}

func TestRoleSegregation_TraderReviewer(t *testing.T) {
	f := newFixture(t, segregationWorkflow("trader"))
	f.add(t, "trade", "four-eyes", schema.MethodRoleBasedAccess, "")
	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusViolated, r.Status)
	assert.Equal(t, "role:trader", r.Location)
	require.Len(t, r.Counterexample, 2)
	assert.Equal(t, "submit", r.Counterexample[0].ID)
	assert.Equal(t, "approve", r.Counterexample[1].ID)

	f = newFixture(t, segregationWorkflow("reviewer"))
	f.add(t, "trade", "four-eyes", schema.MethodRoleBasedAccess, "")
	r = f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusProven, r.Status, r.Message)
}

func TestRoleSegregation_Permissions(t *testing.T) {
	decl := segregationWorkflow("reviewer")
	decl.Permissions = map[string][]string{
		"admin":  {"Create", "Approve"},
		"viewer": {"read"},
	}
	f := newFixture(t, decl)
	f.add(t, "trade", "four-eyes", schema.MethodRoleBasedAccess, "")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusViolated, r.Status)
	assert.Equal(t, "role:admin", r.Location)
	assert.Empty(t, r.Counterexample)
}

// --- Audit trail ---

func TestAuditTrail(t *testing.T) {
	decl := func(audit []string) schema.ComponentDecl {
		return schema.ComponentDecl{
			ID: "session",
			State: &schema.StateDecl{
				States: []schema.StateNodeDecl{{ID: "anon"}, {ID: "in"}, {ID: "out", Terminal: true}},
				Transitions: []schema.TransitionDecl{
					{ID: "browse", From: "anon", To: "anon", Trigger: "browse"},
					{ID: "login", From: "anon", To: "in", Trigger: "submit", Guards: []string{"user.mfa_verified"}, Audit: audit},
					{ID: "logout", From: "in", To: "out", Trigger: "leave", Audit: []string{"session-closed"}},
				},
			},
		}
	}

	f := newFixture(t, decl(nil))
	f.add(t, "session", "audited", schema.MethodAuditTrail, "")
	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusViolated, r.Status)
	assert.Equal(t, "login", r.Location)
	assert.Contains(t, r.Message, `"mfa"`)

	f = newFixture(t, decl([]string{"login-succeeded"}))
	f.add(t, "session", "audited", schema.MethodAuditTrail, "")
	r = f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusProven, r.Status, r.Message)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"security-check", "security", "check", "user", "mfa_ok", "mfa", "ok"},
		tokenize("security-check && user.MFA_ok"))
}

// --- Timing ---

func TestTiming(t *testing.T) {
	decl := func(escalation string, timeoutEdge bool) schema.ComponentDecl {
		ts := []schema.TransitionDecl{{From: "waiting", To: "done", Trigger: "reply"}}
		if timeoutEdge {
			ts = append(ts, schema.TransitionDecl{From: "waiting", To: "done", Trigger: "timeout"})
		}
		return schema.ComponentDecl{
			ID: "ticket",
			State: &schema.StateDecl{
				States: []schema.StateNodeDecl{
					{ID: "waiting", Timeout: "24h", Escalation: escalation},
					{ID: "done", Terminal: true},
				},
				Transitions: ts,
			},
		}
	}

	tests := []struct {
		name       string
		escalation string
		edge       bool
		want       schema.Status
	}{
		{"no escalation", "", false, schema.StatusViolated},
		{"escalation action", "page-oncall", false, schema.StatusProven},
		{"timeout transition", "", true, schema.StatusProven},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, decl(tt.escalation, tt.edge))
			f.add(t, "ticket", "escalates", schema.MethodTiming, "")
			r := f.verify(t, Config{})[0]
			assert.Equal(t, tt.want, r.Status, r.Message)
			if tt.want == schema.StatusViolated {
				assert.Equal(t, "waiting", r.Location)
			}
		})
	}
}

// --- Custom predicates ---

func TestCustomPredicate_ForAllCounterexample(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval", "always-approved", schema.MethodCustomPredicate, "forall paths: endsIn('approved')")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusViolated, r.Status)
	assert.Equal(t, "rejected", r.Location)
	require.Len(t, r.Counterexample, 2)
	assert.Equal(t, "submit", r.Counterexample[0].ID)
	assert.Equal(t, "reject", r.Counterexample[1].ID)
}

func TestCustomPredicate_ForAllProven(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval", "review-first", schema.MethodCustomPredicate,
		"forall paths: before('pending-review', final) && 'reviewer' in roles")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusProven, r.Status, r.Message)
}

func TestCustomPredicate_Exists(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval", "can-reject", schema.MethodCustomPredicate, "exists path: fired('reject')")
	f.add(t, "approval", "can-skip-review", schema.MethodCustomPredicate, "exists path: !visited('pending-review')")

	results := f.verify(t, Config{})
	assert.Equal(t, schema.StatusProven, results[0].Status)
	assert.Contains(t, results[0].Message, "-[reject]-> rejected")
	assert.Equal(t, schema.StatusViolated, results[1].Status)
	assert.Empty(t, results[1].Counterexample)
}

func TestCustomPredicate_TransitionScope(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval#reject", "reject-ends-rejected", schema.MethodCustomPredicate, "forall: endsIn('rejected')")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusProven, r.Status, r.Message)
	assert.Equal(t, "approval#reject", r.Scope)
}

func TestCustomPredicate_Unparseable(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval", "broken", schema.MethodCustomPredicate, "forall paths: visited(")
	f.add(t, "approval", "not-bool", schema.MethodCustomPredicate, "forall paths: length")
	f.add(t, "approval", "fine", schema.MethodReachability, "")

	results := f.verify(t, Config{})
	require.Len(t, results, 3)
	assert.Equal(t, schema.StatusInconclusive, results[0].Status)
	assert.Equal(t, schema.ReasonUnparseableSpecification, results[0].Reason)
	assert.Equal(t, schema.ReasonUnparseableSpecification, results[1].Reason)
	assert.Equal(t, schema.StatusProven, results[2].Status)
}

func TestCustomPredicate_DepthBound(t *testing.T) {
	f := newFixture(t, schema.ComponentDecl{
		ID: "retry",
		State: &schema.StateDecl{
			States: []schema.StateNodeDecl{{ID: "try"}, {ID: "done", Terminal: true}},
			Transitions: []schema.TransitionDecl{
				{From: "try", To: "try", Trigger: "again"},
				{From: "try", To: "done", Trigger: "ok"},
			},
		},
	})
	f.add(t, "retry", "terminates", schema.MethodCustomPredicate, "forall paths: terminal")
	f.add(t, "retry", "gives-up", schema.MethodCustomPredicate, "exists paths: length > 5")
	f.add(t, "retry", "retries", schema.MethodCustomPredicate, "exists paths: length == 3 && !terminal")

	results := f.verify(t, Config{DepthBound: 3})
	require.Len(t, results, 3)

	// The only failing path is the one still looping at the bound.
	assert.Equal(t, schema.StatusInconclusive, results[0].Status, results[0].Message)
	assert.Equal(t, schema.ReasonDepthBoundExceeded, results[0].Reason)
	assert.Contains(t, results[0].Message, "cut off at depth bound 3")

	assert.Equal(t, schema.StatusInconclusive, results[1].Status, results[1].Message)
	assert.Equal(t, schema.ReasonDepthBoundExceeded, results[1].Reason)

	// A path cut off at the bound is still a witness.
	assert.Equal(t, schema.StatusProven, results[2].Status, results[2].Message)
}

// rework loops review back to draft, so no path search ever runs out of
// transitions on its own.
func rework() schema.ComponentDecl {
	return schema.ComponentDecl{
		ID: "doc",
		State: &schema.StateDecl{
			Initial: "draft",
			States:  []schema.StateNodeDecl{{ID: "draft"}, {ID: "review"}, {ID: "done", Terminal: true}},
			Transitions: []schema.TransitionDecl{
				{ID: "submit", From: "draft", To: "review", Trigger: "submit"},
				{ID: "rework", From: "review", To: "draft", Trigger: "rework"},
				{ID: "accept", From: "review", To: "done", Trigger: "accept"},
			},
		},
	}
}

func TestCustomPredicate_ProvenWithinBoundOnCycle(t *testing.T) {
	f := newFixture(t, rework())
	f.add(t, "doc", "starts-in-draft", schema.MethodCustomPredicate, "forall paths: start == 'draft'")

	r := f.verify(t, Config{DepthBound: 5})[0]
	assert.Equal(t, schema.StatusProven, r.Status, r.Message)
	assert.Empty(t, r.Reason)
	assert.Contains(t, r.Message, "within depth bound 5")
}

func TestCustomPredicate_ViolatedOnCompletePathDespiteCycle(t *testing.T) {
	f := newFixture(t, rework())
	f.add(t, "doc", "never-accepted", schema.MethodCustomPredicate, "forall paths: !terminal")

	r := f.verify(t, Config{DepthBound: 5})[0]
	assert.Equal(t, schema.StatusViolated, r.Status, r.Message)
	assert.Equal(t, "done", r.Location)
	// Depth-first in declaration order: one rework lap, then accept.
	ids := make([]string, len(r.Counterexample))
	for i, ref := range r.Counterexample {
		ids[i] = ref.ID
	}
	assert.Equal(t, []string{"submit", "rework", "submit", "accept"}, ids)
}

func TestCustomPredicate_StepBudget(t *testing.T) {
	f := newFixture(t, spinner())
	f.add(t, "spinner", "p", schema.MethodCustomPredicate, "forall paths: true")

	r := f.verify(t, Config{DepthBound: 40, StepBudget: 50})[0]
	assert.Equal(t, schema.StatusInconclusive, r.Status)
	assert.Equal(t, schema.ReasonStepBudgetExhausted, r.Reason)
}

func TestCustomPredicate_Timeout(t *testing.T) {
	f := newFixture(t, spinner())
	f.add(t, "spinner", "p", schema.MethodCustomPredicate, "forall paths: true")

	r := f.verify(t, Config{DepthBound: 60, StepBudget: 1 << 40, Timeout: 20 * time.Millisecond})[0]
	assert.Equal(t, schema.StatusInconclusive, r.Status)
	assert.Equal(t, schema.ReasonTimeout, r.Reason)
}

func TestCustomPredicate_CancelledMidSearch(t *testing.T) {
	f := newFixture(t, spinner())
	f.add(t, "spinner", "p", schema.MethodCustomPredicate, "forall paths: true")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	r := f.verifyCtx(ctx, Config{DepthBound: 60, StepBudget: 1 << 40, Timeout: time.Minute})[0]
	assert.Equal(t, schema.StatusInconclusive, r.Status)
	assert.Equal(t, schema.ReasonCancelled, r.Reason)
	assert.Empty(t, r.Counterexample)
}

// --- Scopes ---

func TestVerify_ScopeResolution(t *testing.T) {
	f := newFixture(t,
		approval(true),
		schema.ComponentDecl{ID: "broken", Behavior: &schema.BehaviorDecl{Steps: []schema.BehaviorStep{
			{ID: "a", Kind: schema.StepKindValidation, OnFailure: "missing"},
		}}},
		schema.ComponentDecl{ID: "folder"},
	)
	f.add(t, "nowhere", "p1", schema.MethodReachability, "")
	f.add(t, "approval#nope", "p2", schema.MethodReachability, "")
	f.add(t, "approval#approve", "p3", schema.MethodReachability, "")
	f.add(t, "broken", "p4", schema.MethodReachability, "")
	f.add(t, "folder", "p5", schema.MethodReachability, "")

	results := f.verify(t, Config{})
	require.Len(t, results, 5)
	assert.Equal(t, schema.ReasonUnknownScope, results[0].Reason)
	assert.Equal(t, schema.ReasonUnknownScope, results[1].Reason)
	assert.Equal(t, schema.StatusProven, results[2].Status)
	assert.Equal(t, schema.ReasonExtractionFailed, results[3].Reason)
	assert.Equal(t, schema.ReasonNoMachines, results[4].Reason)
}

func TestVerify_GlobalAggregation(t *testing.T) {
	good := approval(true)
	bad := approval(false)
	bad.ID = "lossy"

	f := newFixture(t, good, bad)
	f.add(t, schema.ScopeGlobal, "reach", schema.MethodReachability, "")
	f.add(t, schema.ScopeGlobal, "complete", schema.MethodTiming, "")

	results := f.verify(t, Config{})
	assert.Equal(t, schema.StatusViolated, results[0].Status)
	assert.Equal(t, "lossy", results[0].Component)
	assert.Equal(t, schema.StatusProven, results[1].Status)
	assert.Contains(t, results[1].Message, "2 component(s)")
	assert.Empty(t, results[1].Component)
}

func TestVerify_GlobalInconclusive(t *testing.T) {
	f := newFixture(t,
		approval(true),
		schema.ComponentDecl{ID: "broken", Behavior: &schema.BehaviorDecl{Steps: []schema.BehaviorStep{
			{ID: "a", Kind: schema.StepKindValidation, Next: "b", OnSuccess: "c"},
		}}},
	)
	f.add(t, schema.ScopeGlobal, "reach", schema.MethodReachability, "")

	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.StatusInconclusive, r.Status)
	assert.Equal(t, schema.ReasonExtractionFailed, r.Reason)
	assert.Equal(t, "broken", r.Component)
}

func TestVerify_GlobalNoMachines(t *testing.T) {
	f := newFixture(t, schema.ComponentDecl{ID: "folder"})
	f.add(t, schema.ScopeGlobal, "reach", schema.MethodReachability, "")
	r := f.verify(t, Config{})[0]
	assert.Equal(t, schema.ReasonNoMachines, r.Reason)
}

// --- Ordering and determinism ---

func TestVerify_RegistryOrderAndDeterminism(t *testing.T) {
	build := func() *fixture {
		f := newFixture(t, approval(false), segregationWorkflow("trader"), spinner())
		f.add(t, "trade", "four-eyes", schema.MethodRoleBasedAccess, "")
		f.add(t, schema.ScopeGlobal, "complete", schema.MethodCompleteness, "")
		f.add(t, "approval", "paths", schema.MethodCustomPredicate, "forall paths: length <= 2")
		f.add(t, schema.ScopeGlobal, "reach", schema.MethodReachability, "")
		f.add(t, "spinner", "bounded", schema.MethodCustomPredicate, "forall paths: length < 3")
		f.add(t, "approval", "audit", schema.MethodAuditTrail, "")
		return f
	}

	first := build().verify(t, Config{Workers: 4, DepthBound: 4})
	second := build().verify(t, Config{Workers: 1, DepthBound: 4})

	ids := make([]string, len(first))
	for i, r := range first {
		ids[i] = r.PropertyID
	}
	assert.Equal(t, []string{"four-eyes", "complete", "paths", "reach", "bounded", "audit"}, ids)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestVerify_AlreadyCancelled(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval", "reach", schema.MethodReachability, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := f.verifyCtx(ctx, Config{})[0]
	assert.Equal(t, schema.StatusInconclusive, r.Status)
	assert.Equal(t, schema.ReasonCancelled, r.Reason)
	assert.Equal(t, "reach", r.PropertyID)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.DepthBound)
	assert.Equal(t, 100_000, cfg.StepBudget)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Positive(t, cfg.Workers)
	assert.Contains(t, cfg.SecurityVocabulary, "mfa")
}

func TestVerify_PanicIsolation(t *testing.T) {
	f := newFixture(t, approval(true))
	f.add(t, "approval", "explodes", schema.MethodCustomPredicate, "forall paths: terminal")
	f.add(t, "approval", "reach", schema.MethodReachability, "")
	f.reg.Seal()

	// A verifier without a predicate compiler panics on custom predicates.
	v := &Verifier{cfg: DefaultConfig(), logger: quietLogger()}
	results := v.Verify(context.Background(), f.g, f.x, f.reg)

	require.Len(t, results, 2)
	assert.Equal(t, schema.StatusInconclusive, results[0].Status)
	assert.Equal(t, schema.ReasonInternalError, results[0].Reason)
	assert.Equal(t, "explodes", results[0].PropertyID)
	assert.Equal(t, schema.StatusProven, results[1].Status)
}
