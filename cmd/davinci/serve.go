package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"

	"github.com/wizzardx/davinci/internal/pipeline"
	"github.com/wizzardx/davinci/internal/scheduler"
	"github.com/wizzardx/davinci/internal/store"
	davincimcp "github.com/wizzardx/davinci/pkg/mcp"
)

func runServe(ctx context.Context, args []string, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		return fail(stderr, err)
	}
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg)
	diagrams := fs.Bool("diagrams", true, "embed Mermaid diagrams of violated machines")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	opts, err := cfg.pipelineOptions()
	if err != nil {
		return fail(stderr, err)
	}
	opts.Diagrams = *diagrams

	logger := newLogger(cfg)
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	runner := pipeline.NewRunner(opts, st, logger)

	if st != nil {
		defer st.Close()
		sched := scheduler.NewScheduler(st, runner, logger, 0)
		if err := registerSchedule(ctx, st, sched, cfg.Schedule); err != nil {
			return fail(stderr, err)
		}
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("missed job recovery failed", slog.String("error", err.Error()))
		}
		if err := sched.Start(ctx); err != nil {
			return fail(stderr, err)
		}
		defer sched.Stop()
	} else if len(cfg.Schedule) > 0 {
		logger.Warn("schedule ignored: run history is disabled")
	}

	srv := davincimcp.NewDavinciServer(davincimcp.DavinciServerDeps{
		Runner:  runner,
		Store:   st,
		Version: version,
		Logger:  logger,
	})
	logger.Info("mcp server listening on stdio", slog.String("version", version))
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail(stderr, err)
	}
	return exitOK
}

// registerSchedule adds configured jobs that the store does not know yet,
// matched by name.
func registerSchedule(ctx context.Context, st store.Store, sched *scheduler.Scheduler, entries []ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	existing, err := st.ListScheduledJobs(ctx, store.ScheduledJobFilter{})
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, job := range existing {
		known[job.Name] = true
	}
	for _, e := range entries {
		if known[e.Name] {
			continue
		}
		if _, err := sched.AddJob(ctx, e.Name, e.Cron, e.Root, e.Patterns); err != nil {
			return err
		}
		known[e.Name] = true
	}
	return nil
}
