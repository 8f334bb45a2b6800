package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/wizzardx/davinci/internal/store"
)

func runHistory(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		return fail(stderr, err)
	}
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindFlags(fs, &cfg)
	limit := fs.Int("limit", 20, "maximum entries")
	property := fs.String("property", "", "show this property's outcomes instead of runs")
	failedOnly := fs.Bool("failed", false, "only failed runs")
	since := fs.Duration("since", 0, "only runs started within this duration")
	prune := fs.Duration("prune", 0, "delete runs older than this duration, then vacuum")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	if st == nil {
		return fail(stderr, errors.New("run history is disabled (db_path is empty)"))
	}
	defer st.Close()

	if *prune > 0 {
		n, err := st.PruneRuns(ctx, time.Now().UTC().Add(-*prune))
		if err != nil {
			return fail(stderr, err)
		}
		if err := st.Vacuum(ctx); err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "pruned %d runs\n", n)
		return exitOK
	}

	if *property != "" {
		outcomes, err := st.PropertyHistory(ctx, *property, *limit)
		if err != nil {
			return fail(stderr, err)
		}
		if *asJSON {
			return printJSON(stdout, stderr, outcomes)
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tLOCATION\tREASON")
		for _, o := range outcomes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				o.RunID, o.StartedAt.Format(time.RFC3339), o.Status, o.Location, o.Reason)
		}
		_ = tw.Flush()
		return exitOK
	}

	filter := store.RunFilter{FailedOnly: *failedOnly, Limit: *limit}
	if *since > 0 {
		t := time.Now().UTC().Add(-*since)
		filter.Since = &t
	}
	runs, err := st.ListRuns(ctx, filter)
	if err != nil {
		return fail(stderr, err)
	}
	if *asJSON {
		return printJSON(stdout, stderr, runs)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tORIGIN\tPROVEN\tVIOLATED\tINCONCLUSIVE\tVERDICT")
	for _, r := range runs {
		verdict := "pass"
		switch {
		case r.StructuralErr != "":
			verdict = "error"
		case r.Failed:
			verdict = "fail"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Origin, r.Proven, r.Violated, r.Inconclusive, verdict)
	}
	_ = tw.Flush()
	return exitOK
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}
