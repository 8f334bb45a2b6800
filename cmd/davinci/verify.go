package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/wizzardx/davinci/internal/loader"
	"github.com/wizzardx/davinci/internal/pipeline"
	"github.com/wizzardx/davinci/internal/report"
	"github.com/wizzardx/davinci/internal/store"
)

func runVerify(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		return fail(stderr, err)
	}
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg)
	format := fs.String("format", "text", "report format: text, markdown, json")
	filter := fs.String("filter", "", "jq filter applied to the JSON report")
	title := fs.String("title", "", "report title")
	diagrams := fs.Bool("diagrams", false, "embed Mermaid diagrams of violated machines")
	checkGuards := fs.Bool("check-guards", false, "syntax-check transition guards")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	switch *format {
	case "text", "markdown", "json":
	default:
		fmt.Fprintf(stderr, "Error: unknown format %q\n", *format)
		return exitUsage
	}

	paths, err := collectPaths(fs.Args(), cfg.WatchPatterns)
	if err != nil {
		return fail(stderr, err)
	}

	opts, err := cfg.pipelineOptions()
	if err != nil {
		return fail(stderr, err)
	}
	opts.Title = *title
	opts.Diagrams = *diagrams
	opts.CheckGuards = *checkGuards

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	if st != nil {
		defer st.Close()
	}

	runner := pipeline.NewRunner(opts, st, newLogger(cfg))
	out, err := runner.RunFiles(ctx, paths, store.OriginCLI)
	if err != nil {
		return fail(stderr, err)
	}

	if *filter != "" {
		values, err := report.Query(ctx, out.Report, *filter)
		if err != nil {
			return fail(stderr, err)
		}
		enc := json.NewEncoder(stdout)
		for _, v := range values {
			if err := enc.Encode(v); err != nil {
				return fail(stderr, err)
			}
		}
	} else if err := writeReport(stdout, out.Report, *format); err != nil {
		return fail(stderr, err)
	}

	if out.Failed() {
		return exitFailed
	}
	return exitOK
}

func writeReport(w io.Writer, r report.RenderedReport, format string) error {
	var text string
	switch format {
	case "markdown":
		text = report.RenderMarkdown(r)
	case "json":
		s, err := report.RenderJSON(r)
		if err != nil {
			return err
		}
		text = s
	default:
		text = report.RenderText(r)
	}
	_, err := io.WriteString(w, text)
	return err
}

// collectPaths expands directory arguments into the documents beneath them.
// No arguments means the current directory.
func collectPaths(args, patterns []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := loader.Discover(arg, patterns)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no documents found under %v", args)
	}
	return paths, nil
}
