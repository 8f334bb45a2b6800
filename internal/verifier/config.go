package verifier

import (
	"runtime"
	"time"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultDepthBound = 10
	DefaultStepBudget = 100_000
	DefaultTimeout    = 5 * time.Second
	DefaultCacheSize  = 256
)

// DefaultSecurityVocabulary lists the tokens that mark a transition as
// security-relevant for audit-trail verification.
var DefaultSecurityVocabulary = []string{
	"authenticate", "authorize", "auth", "login", "logout", "mfa",
	"permission", "privilege", "security-check", "credential", "token",
}

// Capability classes for segregation-of-duties analysis.
var (
	DefaultCreateActions  = []string{"create", "submit"}
	DefaultApproveActions = []string{"approve", "reject"}
)

// Config bounds and parameterises verification.
type Config struct {
	DepthBound         int           // max transitions per custom-predicate path
	StepBudget         int           // max path expansions per custom-predicate check
	Timeout            time.Duration // wall-clock limit per custom-predicate check
	Workers            int           // concurrent property checks
	CacheSize          int           // compiled predicate cache entries
	SecurityVocabulary []string
	CreateActions      []string
	ApproveActions     []string
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.DepthBound <= 0 {
		c.DepthBound = DefaultDepthBound
	}
	if c.StepBudget <= 0 {
		c.StepBudget = DefaultStepBudget
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if len(c.SecurityVocabulary) == 0 {
		c.SecurityVocabulary = DefaultSecurityVocabulary
	}
	if len(c.CreateActions) == 0 {
		c.CreateActions = DefaultCreateActions
	}
	if len(c.ApproveActions) == 0 {
		c.ApproveActions = DefaultApproveActions
	}
	return c
}
