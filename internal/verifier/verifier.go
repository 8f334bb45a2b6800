package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/wizzardx/davinci/internal/graph"
	"github.com/wizzardx/davinci/internal/logging"
	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/internal/predicate"
	"github.com/wizzardx/davinci/internal/registry"
	"github.com/wizzardx/davinci/pkg/schema"
)

// Verifier checks registered properties against extracted state machines.
// Violations and inconclusive outcomes are results, never errors.
type Verifier struct {
	cfg      Config
	logger   *slog.Logger
	compiler *predicate.Compiler
}

// New creates a Verifier. Zero-valued config fields take their defaults.
func New(cfg Config, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	cfg = cfg.withDefaults()
	// CacheSize is positive after withDefaults, which is the only failure case.
	compiler, _ := predicate.NewCompiler(cfg.CacheSize)
	return &Verifier{cfg: cfg, logger: logger, compiler: compiler}
}

// Config returns the effective configuration.
func (v *Verifier) Config() Config {
	return v.cfg
}

// Verify evaluates every registered property in registry insertion order.
// Checks run concurrently, but each result lands in the slot of its registry
// entry, so the returned order never depends on scheduling. A check that
// panics yields an inconclusive result and does not affect the others.
func (v *Verifier) Verify(ctx context.Context, g *graph.Graph, x *machine.Extraction, reg *registry.Registry) []schema.VerificationResult {
	entries := reg.All()
	results := make([]schema.VerificationResult, len(entries))

	pool := NewWorkerPool(v.cfg.Workers)
	defer pool.Shutdown()

	for i, e := range entries {
		err := pool.Submit(ctx,
			func(ctx context.Context) {
				results[i] = v.check(ctx, g, x, e)
			},
			func(r any) {
				v.logger.ErrorContext(ctx, "property check panicked",
					slog.String(logging.AttrProperty, e.Property.ID), slog.Any("panic", r))
				results[i] = stamp(e, "", inconclusive(schema.ReasonInternalError, "check panicked: %v", r))
			},
		)
		if err != nil {
			results[i] = stamp(e, "", inconclusive(schema.ReasonCancelled, "not started: %v", err))
		}
	}
	pool.Wait()

	v.logger.DebugContext(ctx, "verification complete",
		slog.Int("properties", len(results)),
		slog.Int64("panics", pool.Metrics().Panics))
	return results
}

// check resolves one entry's scope and runs its method.
func (v *Verifier) check(ctx context.Context, g *graph.Graph, x *machine.Extraction, e registry.Entry) schema.VerificationResult {
	ctx = logging.WithProperty(ctx, e.Property.ID)
	if err := ctx.Err(); err != nil {
		return stamp(e, "", inconclusive(schema.ReasonCancelled, "verification cancelled before the check started"))
	}

	var (
		component string
		o         outcome
	)
	if e.Scope == schema.ScopeGlobal {
		component, o = v.checkGlobal(ctx, g, x, e.Property)
	} else {
		path, tid := splitScope(e.Scope)
		c, ok := g.Resolve(path)
		if !ok {
			o = inconclusive(schema.ReasonUnknownScope, "scope %q names no component", e.Scope)
		} else {
			component = c.Path
			o = v.checkComponent(logging.WithComponent(ctx, c.Path), x, c, tid, e.Property)
		}
	}

	v.logger.DebugContext(ctx, "property checked",
		slog.String("method", string(e.Property.Method)),
		slog.String("status", string(o.status)),
		slog.String("reason", o.reason))
	return stamp(e, component, o)
}

// checkGlobal runs the property on every component with a machine, in DFS
// order. The first violation wins; otherwise any inconclusive component makes
// the whole result inconclusive.
func (v *Verifier) checkGlobal(ctx context.Context, g *graph.Graph, x *machine.Extraction, p schema.Property) (string, outcome) {
	var (
		checked    int
		firstIncon *outcome
		inconAt    string
	)
	for c := range g.DFS() {
		if x.Machines[c.Path] == nil && x.Failed[c.Path] == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return c.Path, inconclusive(schema.ReasonCancelled, "verification cancelled at component %q", c.Path)
		}
		checked++
		o := v.checkComponent(logging.WithComponent(ctx, c.Path), x, c, "", p)
		switch o.status {
		case schema.StatusViolated:
			return c.Path, o
		case schema.StatusInconclusive:
			if firstIncon == nil {
				firstIncon, inconAt = &o, c.Path
			}
		}
	}

	switch {
	case checked == 0:
		return "", inconclusive(schema.ReasonNoMachines, "no component has a state machine to check")
	case firstIncon != nil:
		o := *firstIncon
		o.message = fmt.Sprintf("component %q: %s", inconAt, o.message)
		return inconAt, o
	}
	return "", proven("holds on all %d component(s)", checked)
}

func (v *Verifier) checkComponent(ctx context.Context, x *machine.Extraction, c *graph.Component, tid string, p schema.Property) outcome {
	m := x.Machines[c.Path]
	if m == nil {
		if err := x.Failed[c.Path]; err != nil {
			return inconclusive(schema.ReasonExtractionFailed, "state machine extraction failed: %v", err)
		}
		return inconclusive(schema.ReasonNoMachines, "component %q declares no behavior", c.Path)
	}

	t := target{m: m, permissions: c.Permissions}
	if tid != "" {
		tr, ok := m.Transition(tid)
		if !ok {
			return inconclusive(schema.ReasonUnknownScope, "component %q has no transition %q", c.Path, tid)
		}
		t.transition = &tr
	}

	switch p.Method {
	case schema.MethodCompleteness:
		return checkCompleteness(t)
	case schema.MethodReachability:
		return checkReachability(t)
	case schema.MethodRoleBasedAccess:
		return checkRoleSegregation(t, v.cfg.CreateActions, v.cfg.ApproveActions)
	case schema.MethodAuditTrail:
		return checkAuditTrail(t, v.cfg.SecurityVocabulary)
	case schema.MethodTiming:
		return checkTiming(t)
	case schema.MethodCustomPredicate:
		pred, err := v.compiler.Compile(p.Specification)
		if err != nil {
			return inconclusive(schema.ReasonUnparseableSpecification, "%v", err)
		}
		cctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
		return checkCustomPredicate(cctx, t, pred, v.cfg)
	}
	return inconclusive(schema.ReasonUnsupportedScope, "method %q is not supported", p.Method)
}

// splitScope separates "path#transition" into its parts.
func splitScope(scope string) (path, transition string) {
	if i := strings.LastIndex(scope, schema.ScopeTransitionSep); i >= 0 {
		return scope[:i], scope[i+1:]
	}
	return scope, ""
}

func stamp(e registry.Entry, component string, o outcome) schema.VerificationResult {
	return schema.VerificationResult{
		PropertyID:     e.Property.ID,
		Scope:          e.Scope,
		Method:         e.Property.Method,
		Severity:       e.Property.Severity,
		Status:         o.status,
		Component:      component,
		Location:       o.location,
		Counterexample: o.counterexample,
		Reason:         o.reason,
		Message:        o.message,
	}
}
