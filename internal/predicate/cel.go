package predicate

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/wizzardx/davinci/pkg/schema"
)

// SyntaxChecker validates guard, validation and refinement expressions as CEL.
// Conditions are treated symbolically: they are parsed but never type-checked
// or evaluated, so free variables are allowed.
// Thread-safe: parse outcomes are cached and reused across goroutines.
type SyntaxChecker struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]error
}

// NewSyntaxChecker creates a CEL syntax checker with an empty environment.
func NewSyntaxChecker() (*SyntaxChecker, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &SyntaxChecker{
		env:   env,
		cache: make(map[string]error),
	}, nil
}

// Check returns nil if expression is syntactically valid CEL.
func (c *SyntaxChecker) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeInvalidPredicate, "empty expression")
	}

	c.mu.RLock()
	if err, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return err
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if err, ok := c.cache[expression]; ok {
		return err
	}

	var result error
	if _, issues := c.env.Parse(expression); issues != nil && issues.Err() != nil {
		result = schema.NewErrorf(schema.ErrCodeInvalidPredicate,
			"CEL syntax error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	c.cache[expression] = result
	return result
}

var defaultChecker = sync.OnceValues(NewSyntaxChecker)

// CheckSyntax validates expression with the package-level SyntaxChecker.
func CheckSyntax(expression string) error {
	c, err := defaultChecker()
	if err != nil {
		return err
	}
	return c.Check(expression)
}
