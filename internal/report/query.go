package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/wizzardx/davinci/pkg/schema"
)

// Query runs a jq filter over the JSON form of the report and returns every
// output it produces, e.g. `.groups[].scopes[].entries[] | select(.status == "violated")`.
func Query(ctx context.Context, r RenderedReport, filter string) ([]any, error) {
	if filter == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq filter")
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", filter, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": filter})
	}
	code, err := gojq.Compile(query,
		// Sandbox: no access to the process environment.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", filter, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": filter})
	}

	// gojq works on plain JSON values, so round-trip the typed report.
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}

	var out []any
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"jq evaluation failed for %q: %s", filter, err.Error()).WithCause(err)
		}
		out = append(out, v)
	}
	return out, nil
}
