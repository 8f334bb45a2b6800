package predicate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wizzardx/davinci/pkg/schema"
)

// Quantifier says whether a predicate must hold on every path or on some path.
type Quantifier string

const (
	ForAll Quantifier = "forall"
	Exists Quantifier = "exists"
)

// headerRe matches the optional quantifier header, e.g. "forall paths:".
var headerRe = regexp.MustCompile(`(?is)^\s*(forall|exists)\s*(?:paths?)?\s*:(.*)$`)

// PathEnv is the environment a predicate body is evaluated against: one
// finite path through a state machine.
type PathEnv struct {
	States   []string `expr:"states"`
	Triggers []string `expr:"triggers"`
	Actions  []string `expr:"actions"`
	Roles    []string `expr:"roles"`
	Audit    []string `expr:"audit"`
	Length   int      `expr:"length"`
	Start    string   `expr:"start"`
	Final    string   `expr:"final"`
	Initial  string   `expr:"initial"`
	Terminal bool     `expr:"terminal"`

	Visited func(state string) bool   `expr:"visited"`
	Fired   func(trigger string) bool `expr:"fired"`
	Before  func(a, b string) bool    `expr:"before"`
	Visits  func(state string) int    `expr:"visits"`
	EndsIn  func(state string) bool   `expr:"endsIn"`
}

// NewPathEnv fills the helper functions of env from its path data.
func NewPathEnv(env PathEnv) PathEnv {
	states, triggers := env.States, env.Triggers
	index := func(s string) int {
		for i, v := range states {
			if v == s {
				return i
			}
		}
		return -1
	}
	env.Visited = func(s string) bool { return index(s) >= 0 }
	env.Fired = func(t string) bool {
		for _, v := range triggers {
			if v == t {
				return true
			}
		}
		return false
	}
	env.Before = func(a, b string) bool {
		ia, ib := index(a), index(b)
		return ia >= 0 && ib >= 0 && ia < ib
	}
	env.Visits = func(s string) int {
		n := 0
		for _, v := range states {
			if v == s {
				n++
			}
		}
		return n
	}
	env.EndsIn = func(s string) bool { return env.Final == s }
	if len(states) > 0 {
		env.Start = states[0]
		env.Final = states[len(states)-1]
	}
	env.Length = len(triggers)
	return env
}

// Predicate is a compiled custom-predicate specification.
type Predicate struct {
	Quantifier Quantifier
	Body       string
	program    *vm.Program
}

// Holds evaluates the predicate body against one path.
func (p *Predicate) Holds(env PathEnv) (bool, error) {
	out, err := expr.Run(p.program, env)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeInvalidPredicate,
			"predicate evaluation failed for %q: %s", p.Body, err.Error()).WithCause(err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeInvalidPredicate,
			"predicate %q produced %T, not bool", p.Body, out)
	}
	return b, nil
}

// Compiler parses and compiles specifications, caching compiled programs.
// Thread-safe: the LRU cache is internally synchronised.
type Compiler struct {
	cache *lru.Cache[string, *Predicate]
}

// NewCompiler creates a Compiler whose cache holds up to size programs.
func NewCompiler(size int) (*Compiler, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, *Predicate](size)
	if err != nil {
		return nil, fmt.Errorf("create predicate cache: %w", err)
	}
	return &Compiler{cache: cache}, nil
}

// Compile parses the quantifier header and compiles the body with expr. The
// body must produce a bool and may only reference path variables.
func (c *Compiler) Compile(spec string) (*Predicate, error) {
	if p, ok := c.cache.Get(spec); ok {
		return p, nil
	}

	quant, body := ForAll, spec
	if m := headerRe.FindStringSubmatch(spec); m != nil {
		quant = Quantifier(strings.ToLower(m[1]))
		body = m[2]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, schema.NewError(schema.ErrCodeInvalidPredicate, "empty predicate specification")
	}

	prg, err := expr.Compile(body,
		expr.Env(PathEnv{}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidPredicate,
			"predicate compile error in %q: %s", body, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"specification": spec})
	}

	p := &Predicate{Quantifier: quant, Body: body, program: prg}
	c.cache.Add(spec, p)
	return p, nil
}
