package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/wizzardx/davinci/internal/diagram"
	"github.com/wizzardx/davinci/internal/graph"
	"github.com/wizzardx/davinci/internal/loader"
	"github.com/wizzardx/davinci/internal/machine"
)

func runExtract(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		return fail(stderr, err)
	}
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg)
	component := fs.String("component", "", "component id or path (default: every component)")
	format := fs.String("format", "json", "output format: json, mermaid, png, svg")
	output := fs.String("o", "", "output file (required for png and svg)")
	checkGuards := fs.Bool("check-guards", false, "syntax-check transition guards")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var imageFormat diagram.ImageFormat
	switch *format {
	case "json", "mermaid":
	case "png", "svg":
		imageFormat = diagram.ImageFormat(*format)
		if *output == "" || *component == "" {
			fmt.Fprintln(stderr, "Error: image output needs -component and -o")
			return exitUsage
		}
	default:
		fmt.Fprintf(stderr, "Error: unknown format %q\n", *format)
		return exitUsage
	}

	paths, err := collectPaths(fs.Args(), cfg.WatchPatterns)
	if err != nil {
		return fail(stderr, err)
	}
	doc, err := loader.LoadFiles(paths)
	if err != nil {
		return fail(stderr, err)
	}
	g, err := graph.Parse(doc)
	if err != nil {
		return fail(stderr, err)
	}
	opts := machine.ExtractOptions{CheckGuards: *checkGuards}

	machines, err := extractMachines(g, *component, opts, stderr)
	if err != nil {
		return fail(stderr, err)
	}

	if imageFormat != "" {
		img, err := diagram.RenderImage(ctx, diagram.Build(machines[0], nil), imageFormat)
		if err != nil {
			return fail(stderr, err)
		}
		if err := os.WriteFile(*output, img, 0o644); err != nil {
			return fail(stderr, err)
		}
		return exitOK
	}

	w := stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fail(stderr, err)
		}
		defer f.Close()
		w = f
	}

	if *format == "mermaid" {
		for _, m := range machines {
			fmt.Fprintln(w, diagram.RenderMermaid(diagram.Build(m, nil)))
		}
		return exitOK
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(machines); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

// extractMachines returns the machine of one component, or of every
// component in traversal order when component is empty. Extraction failures
// of individual components are reported on stderr.
func extractMachines(g *graph.Graph, component string, opts machine.ExtractOptions, stderr io.Writer) ([]*machine.StateMachine, error) {
	if component != "" {
		c, ok := g.Resolve(component)
		if !ok {
			return nil, fmt.Errorf("component %q not found", component)
		}
		m, err := machine.ExtractWith(c, opts)
		if err != nil {
			partial, ok := machine.PartialMachine(err)
			if !ok {
				return nil, err
			}
			fmt.Fprintf(stderr, "Warning: %v\n", err)
			m = partial
		}
		return []*machine.StateMachine{m}, nil
	}

	x := machine.ExtractAll(g, opts)
	for _, err := range x.Errors {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}
	machines := make([]*machine.StateMachine, 0, len(x.Order))
	for _, path := range x.Order {
		machines = append(machines, x.Machines[path])
	}
	if len(machines) == 0 {
		return nil, errors.New("no component has behavior to extract")
	}
	return machines, nil
}
