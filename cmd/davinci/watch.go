package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/wizzardx/davinci/internal/loader"
	"github.com/wizzardx/davinci/internal/pipeline"
	"github.com/wizzardx/davinci/internal/store"
	"github.com/wizzardx/davinci/internal/watch"
)

func runWatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		return fail(stderr, err)
	}
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg)
	format := fs.String("format", "text", "report format: text, markdown, json")
	debounce := fs.Duration("debounce", watch.DefaultDebounce, "quiet period before re-verifying")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}

	opts, err := cfg.pipelineOptions()
	if err != nil {
		return fail(stderr, err)
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	if st != nil {
		defer st.Close()
	}
	logger := newLogger(cfg)
	runner := pipeline.NewRunner(opts, st, logger)

	verifyTree := func(ctx context.Context, _ []string) {
		paths, err := loader.Discover(root, cfg.WatchPatterns)
		if err != nil {
			logger.Error("document discovery failed", slog.String("error", err.Error()))
			return
		}
		if len(paths) == 0 {
			fmt.Fprintf(stdout, "no documents under %s\n", root)
			return
		}
		out, err := runner.RunFiles(ctx, paths, store.OriginWatch)
		fmt.Fprintf(stdout, "--- %s ---\n", time.Now().Format(time.TimeOnly))
		if err != nil {
			fmt.Fprintf(stdout, "Error: %v\n", err)
			return
		}
		if err := writeReport(stdout, out.Report, *format); err != nil {
			logger.Error("failed to write report", slog.String("error", err.Error()))
		}
	}

	w, err := watch.New(watch.Config{Root: root, Patterns: cfg.WatchPatterns, Debounce: *debounce}, verifyTree, logger)
	if err != nil {
		return fail(stderr, err)
	}
	verifyTree(ctx, nil)
	if err := w.Run(ctx); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}
