package store

import (
	"time"

	"github.com/wizzardx/davinci/pkg/schema"
)

// Origins of a run.
const (
	OriginCLI      = "cli"
	OriginWatch    = "watch"
	OriginSchedule = "schedule"
	OriginMCP      = "mcp"
)

// Run is one persisted verification run.
type Run struct {
	ID             string                      `json:"id"`
	Source         string                      `json:"source"` // files or tool that supplied the document
	Origin         string                      `json:"origin"`
	DocumentDigest string                      `json:"document_digest"`
	Total          int                         `json:"total"`
	Proven         int                         `json:"proven"`
	Violated       int                         `json:"violated"`
	Inconclusive   int                         `json:"inconclusive"`
	Failed         bool                        `json:"failed"`
	StructuralErr  string                      `json:"structural_error,omitempty"`
	Results        []schema.VerificationResult `json:"results,omitempty"`
	StartedAt      time.Time                   `json:"started_at"`
	FinishedAt     time.Time                   `json:"finished_at"`
}

// PropertyOutcome is one property's status within a past run.
type PropertyOutcome struct {
	RunID      string          `json:"run_id"`
	PropertyID string          `json:"property_id"`
	Scope      string          `json:"scope"`
	Method     schema.Method   `json:"method"`
	Severity   schema.Severity `json:"severity"`
	Status     schema.Status   `json:"status"`
	Component  string          `json:"component,omitempty"`
	Location   string          `json:"location,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
}

// ScheduledJob is a cron-triggered verification of the documents under Root.
type ScheduledJob struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	Root           string     `json:"root"`
	Patterns       []string   `json:"patterns,omitempty"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	LastRunID      string     `json:"last_run_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// --- Filter and update types ---

// RunFilter specifies criteria for listing runs. Runs come back newest first.
type RunFilter struct {
	Since      *time.Time `json:"since,omitempty"`
	Digest     string     `json:"digest,omitempty"`
	FailedOnly bool       `json:"failed_only,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	// WithResults loads the full result list; otherwise only counts are set.
	WithResults bool `json:"with_results,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
	LastRunID     string     `json:"last_run_id,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled *bool `json:"enabled,omitempty"`
	Limit   int   `json:"limit,omitempty"`
}
