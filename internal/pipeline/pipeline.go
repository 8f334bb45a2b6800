// Package pipeline runs documents through parse, extract, verify, format
// and persist. The CLI, MCP server, watcher and scheduler all go through it.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wizzardx/davinci/internal/graph"
	"github.com/wizzardx/davinci/internal/loader"
	"github.com/wizzardx/davinci/internal/logging"
	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/internal/registry"
	"github.com/wizzardx/davinci/internal/report"
	"github.com/wizzardx/davinci/internal/store"
	"github.com/wizzardx/davinci/internal/verifier"
	"github.com/wizzardx/davinci/pkg/schema"
)

// Options configures a Runner.
type Options struct {
	Verifier    verifier.Config
	CheckGuards bool
	Title       string
	// Diagrams embeds Mermaid diagrams of violated machines in the report.
	Diagrams bool
}

// Source describes where a document came from.
type Source struct {
	Name   string // file list, tool name, ...
	Origin string // one of the store.Origin* values
}

// Outcome is everything a run produced.
type Outcome struct {
	RunID      string
	Digest     string
	Graph      *graph.Graph
	Extraction *machine.Extraction
	Results    []schema.VerificationResult
	Report     report.RenderedReport
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether any critical property was violated or any
// component failed extraction.
func (o *Outcome) Failed() bool { return o.Report.Summary.Failed }

// Runner executes verification runs. The store is optional.
type Runner struct {
	opts     Options
	verifier *verifier.Verifier
	store    store.Store
	logger   *slog.Logger
}

// NewRunner creates a Runner. A nil store disables run history.
func NewRunner(opts Options, st store.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Runner{
		opts:     opts,
		verifier: verifier.New(opts.Verifier, logger),
		store:    st,
		logger:   logger,
	}
}

// Run verifies one document supplied on the command line.
func (r *Runner) Run(ctx context.Context, doc *schema.Document) (*Outcome, error) {
	return r.RunSource(ctx, doc, Source{Origin: store.OriginCLI})
}

// RunSource verifies doc. Structural and registration errors abort the run
// and are returned; they are still recorded in the store. Extraction
// failures are per component: they are listed in the report, fail it, and
// turn properties scoped to the component inconclusive.
func (r *Runner) RunSource(ctx context.Context, doc *schema.Document, src Source) (*Outcome, error) {
	out := &Outcome{
		RunID:     uuid.NewString(),
		Digest:    Digest(doc),
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.WithRunID(ctx, out.RunID)
	log := logging.LogWith(ctx, r.logger)
	log.Info("verification run started",
		slog.String("source", src.Name),
		slog.String("origin", src.Origin),
		slog.Int("components", len(doc.Components)),
		slog.Int("properties", len(doc.Properties)),
	)

	g, err := graph.Parse(doc)
	if err != nil {
		log.Warn("document has structural errors", slog.String("error", err.Error()))
		r.persist(ctx, out, src, err)
		return out, err
	}
	out.Graph = g

	out.Extraction = machine.ExtractAll(g, machine.ExtractOptions{CheckGuards: r.opts.CheckGuards})
	for _, xerr := range out.Extraction.Errors {
		log.Warn("state machine extraction failed", slog.String("error", xerr.Error()))
	}

	reg := registry.New(registry.WithScopeResolver(g.CanonicalScope))
	if err := reg.RegisterDecls(doc.Properties); err != nil {
		log.Warn("property registration failed", slog.String("error", err.Error()))
		r.persist(ctx, out, src, err)
		return out, err
	}
	reg.Seal()

	out.Results = r.verifier.Verify(ctx, g, out.Extraction, reg)

	opts := []report.Option{
		report.WithTitle(r.opts.Title),
		report.WithExtractionErrors(out.Extraction.Errors),
	}
	if r.opts.Diagrams {
		opts = append(opts, report.WithDiagrams(out.Extraction.Machines))
	}
	out.Report = report.Format(out.Results, opts...)
	out.FinishedAt = time.Now().UTC()

	s := out.Report.Summary
	log.Info("verification run finished",
		slog.Int("proven", s.ByStatus[schema.StatusProven]),
		slog.Int("violated", s.ByStatus[schema.StatusViolated]),
		slog.Int("inconclusive", s.ByStatus[schema.StatusInconclusive]),
		slog.Int("extraction_errors", s.Errors),
		slog.Bool("failed", s.Failed),
		slog.Duration("elapsed", out.FinishedAt.Sub(out.StartedAt)),
	)

	r.persist(ctx, out, src, nil)
	return out, nil
}

// RunFiles loads and merges the files, then verifies the result.
func (r *Runner) RunFiles(ctx context.Context, paths []string, origin string) (*Outcome, error) {
	doc, err := loader.LoadFiles(paths)
	if err != nil {
		return nil, err
	}
	return r.RunSource(ctx, doc, Source{Name: strings.Join(paths, ","), Origin: origin})
}

// RunJob discovers the job's documents and verifies them. It satisfies
// scheduler.JobRunner.
func (r *Runner) RunJob(ctx context.Context, job *store.ScheduledJob) (string, bool, error) {
	paths, err := loader.Discover(job.Root, job.Patterns)
	if err != nil {
		return "", false, err
	}
	if len(paths) == 0 {
		return "", false, schema.NewErrorf(schema.ErrCodeNotFound, "no documents under %s", job.Root)
	}
	out, err := r.RunFiles(ctx, paths, store.OriginSchedule)
	if out == nil {
		return "", false, err
	}
	return out.RunID, out.Failed(), err
}

// persist records the run when a store is configured. Store failures are
// logged, never returned: history is secondary to the verdict.
func (r *Runner) persist(ctx context.Context, out *Outcome, src Source, runErr error) {
	if r.store == nil {
		return
	}
	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now().UTC()
	}
	run := &store.Run{
		ID:             out.RunID,
		Source:         src.Name,
		Origin:         src.Origin,
		DocumentDigest: out.Digest,
		Results:        out.Results,
		StartedAt:      out.StartedAt,
		FinishedAt:     out.FinishedAt,
	}
	if run.Origin == "" {
		run.Origin = store.OriginCLI
	}
	if runErr != nil {
		run.StructuralErr = runErr.Error()
		run.Failed = true
	} else {
		s := out.Report.Summary
		run.Total = s.Total
		run.Proven = s.ByStatus[schema.StatusProven]
		run.Violated = s.ByStatus[schema.StatusViolated]
		run.Inconclusive = s.ByStatus[schema.StatusInconclusive]
		run.Failed = s.Failed
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		logging.LogWith(ctx, r.logger).Error("failed to save run", slog.String("error", err.Error()))
	}
}

// Digest returns a stable content hash of the document.
func Digest(doc *schema.Document) string {
	data, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// IsStructural reports whether err aborted a run before verification.
func IsStructural(err error) bool {
	var de *schema.DavinciError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == schema.ErrCodeStructural || de.Code == schema.ErrCodeValidation ||
		de.Code == schema.ErrCodeDuplicatePropertyID
}
