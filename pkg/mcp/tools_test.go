package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizzardx/davinci/internal/pipeline"
	"github.com/wizzardx/davinci/internal/store"
	"github.com/wizzardx/davinci/pkg/schema"
)

// --- Mock Store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	runs     []*store.Run
	outcomes []*store.PropertyOutcome
	filters  []store.RunFilter
}

func (m *mockStore) SaveRun(_ context.Context, run *store.Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockStore) ListRuns(_ context.Context, filter store.RunFilter) ([]*store.Run, error) {
	m.filters = append(m.filters, filter)
	result := make([]*store.Run, 0)
	for _, r := range m.runs {
		if filter.FailedOnly && !r.Failed {
			continue
		}
		result = append(result, r)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (m *mockStore) PropertyHistory(_ context.Context, propertyID string, limit int) ([]*store.PropertyOutcome, error) {
	result := make([]*store.PropertyOutcome, 0)
	for _, o := range m.outcomes {
		if o.PropertyID == propertyID {
			result = append(result, o)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func newTestServer(st store.Store) *DavinciServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDavinciServer(DavinciServerDeps{
		Runner: pipeline.NewRunner(pipeline.Options{Title: "mcp"}, st, logger),
		Store:  st,
		Logger: logger,
	})
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

const approvalYAML = `
components:
  - id: approval
    state:
      initial: draft
      states:
        - id: draft
          triggers: [submit]
        - id: pending-review
          triggers: [approve, reject]
        - id: approved
          terminal: true
        - id: rejected
          terminal: true
      transitions:
        - {from: draft, to: pending-review, trigger: submit}
        - {from: pending-review, to: approved, trigger: approve}
properties:
  - id: complete
    scope: approval
    method: completeness
    severity: critical
`

func approvalObject() map[string]any {
	return map[string]any{
		"components": []any{
			map[string]any{
				"id": "approval",
				"state": map[string]any{
					"initial": "draft",
					"states": []any{
						map[string]any{"id": "draft"},
						map[string]any{"id": "done", "terminal": true},
					},
					"transitions": []any{
						map[string]any{"from": "draft", "to": "done", "trigger": "finish"},
					},
				},
			},
		},
		"properties": []any{
			map[string]any{"id": "reach", "scope": "approval", "method": "reachability", "severity": "high"},
		},
	}
}

// --- verify ---

func TestVerifyTool_DocumentObject(t *testing.T) {
	ms := &mockStore{}
	s := newTestServer(ms)

	result, err := s.handleVerify(context.Background(), buildRequest("davinci.verify", map[string]any{
		"document": approvalObject(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var payload struct {
		RunID  string `json:"run_id"`
		Failed bool   `json:"failed"`
		Report struct {
			Title   string `json:"title"`
			Summary struct {
				Total int `json:"total"`
			} `json:"summary"`
		} `json:"report"`
	}
	unmarshalResult(t, result, &payload)
	assert.NotEmpty(t, payload.RunID)
	assert.False(t, payload.Failed)
	assert.Equal(t, "mcp", payload.Report.Title)
	assert.Equal(t, 1, payload.Report.Summary.Total)

	require.Len(t, ms.runs, 1)
	assert.Equal(t, store.OriginMCP, ms.runs[0].Origin)
	assert.Equal(t, "davinci.verify", ms.runs[0].Source)
}

func TestVerifyTool_SourceText(t *testing.T) {
	s := newTestServer(nil)

	result, err := s.handleVerify(context.Background(), buildRequest("davinci.verify", map[string]any{
		"source": approvalYAML,
		"format": "text",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := extractText(t, result)
	assert.Contains(t, text, "[FAIL] complete")
	assert.Contains(t, text, "FAIL: 1 properties")
}

func TestVerifyTool_ReportsExtractionErrors(t *testing.T) {
	s := newTestServer(nil)

	result, err := s.handleVerify(context.Background(), buildRequest("davinci.verify", map[string]any{
		"source": approvalYAML,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var payload struct {
		Failed bool `json:"failed"`
		Report struct {
			Errors []struct {
				Component string `json:"component"`
				Kind      string `json:"kind"`
				Message   string `json:"message"`
			} `json:"errors"`
		} `json:"report"`
	}
	unmarshalResult(t, result, &payload)
	assert.True(t, payload.Failed)
	require.Len(t, payload.Report.Errors, 1)
	assert.Equal(t, "approval", payload.Report.Errors[0].Component)
	assert.Equal(t, schema.ErrCodeUnreachableTerminal, payload.Report.Errors[0].Kind)
	assert.Contains(t, payload.Report.Errors[0].Message, `"rejected"`)
}

func TestVerifyTool_Markdown(t *testing.T) {
	s := newTestServer(nil)

	result, err := s.handleVerify(context.Background(), buildRequest("davinci.verify", map[string]any{
		"source": approvalYAML,
		"format": "markdown",
	}))
	require.NoError(t, err)
	assert.Contains(t, extractText(t, result), "## CRITICAL")
}

func TestVerifyTool_Filter(t *testing.T) {
	s := newTestServer(nil)

	result, err := s.handleVerify(context.Background(), buildRequest("davinci.verify", map[string]any{
		"source": approvalYAML,
		"filter": "[.groups[].scopes[].entries[] | select(.status == \"violated\") | .property_id]",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var values [][]string
	unmarshalResult(t, result, &values)
	assert.Equal(t, [][]string{{"complete"}}, values)
}

func TestVerifyTool_Errors(t *testing.T) {
	s := newTestServer(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"no document", map[string]any{}, "one of document or source is required"},
		{"bad format", map[string]any{"source": approvalYAML, "format": "html"}, "format must be"},
		{"schema violation", map[string]any{"document": map[string]any{"components": "nope"}}, ""},
		{"structural", map[string]any{"source": "components: [{id: a}, {id: a}]"}, "verification aborted"},
		{"bad filter", map[string]any{"source": approvalYAML, "filter": ".["}, "filter failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleVerify(ctx, buildRequest("davinci.verify", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			if tc.want != "" {
				assert.Contains(t, extractText(t, result), tc.want)
			}
		})
	}
}

// --- extract ---

func TestExtractTool_JSON(t *testing.T) {
	s := newTestServer(nil)

	result, err := s.handleExtract(context.Background(), buildRequest("davinci.extract", map[string]any{
		"source":    approvalYAML,
		"component": "approval",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var payload struct {
		Machine struct {
			Component   string           `json:"component"`
			Initial     string           `json:"initial"`
			States      []map[string]any `json:"states"`
			Transitions []map[string]any `json:"transitions"`
		} `json:"machine"`
		Warning string `json:"warning"`
	}
	unmarshalResult(t, result, &payload)
	assert.Equal(t, "approval", payload.Machine.Component)
	assert.Equal(t, "draft", payload.Machine.Initial)
	assert.Len(t, payload.Machine.States, 4)
	assert.Len(t, payload.Machine.Transitions, 2)
	// rejected is declared terminal but nothing leads to it.
	assert.Contains(t, payload.Warning, "rejected")
}

func TestExtractTool_Mermaid(t *testing.T) {
	s := newTestServer(nil)

	result, err := s.handleExtract(context.Background(), buildRequest("davinci.extract", map[string]any{
		"document":  approvalObject(),
		"component": "approval",
		"format":    "mermaid",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, extractText(t, result), "stateDiagram-v2")
}

func TestExtractTool_Errors(t *testing.T) {
	s := newTestServer(nil)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing component", map[string]any{"source": approvalYAML}, "component is required"},
		{"unknown component", map[string]any{"source": approvalYAML, "component": "billing"}, "not found"},
		{"bad format", map[string]any{"source": approvalYAML, "component": "approval", "format": "png"}, "format must be"},
		{"no behavior", map[string]any{"source": "components: [{id: plain}]", "component": "plain"}, "extraction failed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleExtract(ctx, buildRequest("davinci.extract", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), tc.want)
		})
	}
}

// --- history ---

func TestHistoryTool_Runs(t *testing.T) {
	ms := &mockStore{runs: []*store.Run{
		{ID: "r1", Failed: true},
		{ID: "r2"},
	}}
	s := newTestServer(ms)

	result, err := s.handleHistory(context.Background(), buildRequest("davinci.history", map[string]any{
		"failed_only": true,
		"since":       "2026-01-01T00:00:00Z",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload struct {
		Runs []store.Run `json:"runs"`
	}
	unmarshalResult(t, result, &payload)
	require.Len(t, payload.Runs, 1)
	assert.Equal(t, "r1", payload.Runs[0].ID)

	require.Len(t, ms.filters, 1)
	assert.Equal(t, defaultHistoryLimit, ms.filters[0].Limit)
	require.NotNil(t, ms.filters[0].Since)
	assert.True(t, ms.filters[0].Since.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestHistoryTool_Property(t *testing.T) {
	ms := &mockStore{outcomes: []*store.PropertyOutcome{
		{RunID: "r1", PropertyID: "complete", Status: schema.StatusViolated},
		{RunID: "r1", PropertyID: "reach", Status: schema.StatusProven},
		{RunID: "r0", PropertyID: "complete", Status: schema.StatusProven},
	}}
	s := newTestServer(ms)

	result, err := s.handleHistory(context.Background(), buildRequest("davinci.history", map[string]any{
		"property_id": "complete",
		"limit":       1,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload struct {
		PropertyID string                   `json:"property_id"`
		Outcomes   []*store.PropertyOutcome `json:"outcomes"`
	}
	unmarshalResult(t, result, &payload)
	assert.Equal(t, "complete", payload.PropertyID)
	require.Len(t, payload.Outcomes, 1)
	assert.Equal(t, schema.StatusViolated, payload.Outcomes[0].Status)
}

func TestHistoryTool_Errors(t *testing.T) {
	result, err := newTestServer(nil).handleHistory(context.Background(), buildRequest("davinci.history", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "not configured")

	result, err = newTestServer(&mockStore{}).handleHistory(context.Background(), buildRequest("davinci.history", map[string]any{
		"since": "yesterday",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractText(t, result), "RFC 3339")
}
