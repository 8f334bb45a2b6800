package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wizzardx/davinci/internal/diagram"
	"github.com/wizzardx/davinci/internal/graph"
	"github.com/wizzardx/davinci/internal/loader"
	"github.com/wizzardx/davinci/internal/machine"
	"github.com/wizzardx/davinci/internal/pipeline"
	"github.com/wizzardx/davinci/internal/report"
	"github.com/wizzardx/davinci/internal/store"
	"github.com/wizzardx/davinci/pkg/schema"
)

const defaultHistoryLimit = 20

// handleVerify runs a document through the verification pipeline.
func (s *DavinciServer) handleVerify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := documentArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format := req.GetString("format", "json")
	if format != "json" && format != "text" && format != "markdown" {
		return mcp.NewToolResultError("format must be json, text, or markdown"), nil
	}

	out, runErr := s.runner.RunSource(ctx, doc, pipeline.Source{Name: "davinci.verify", Origin: store.OriginMCP})
	if runErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("verification aborted: %v", runErr)), nil
	}

	if filter := req.GetString("filter", ""); filter != "" {
		values, qErr := report.Query(ctx, out.Report, filter)
		if qErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("filter failed: %v", qErr)), nil
		}
		return marshalResult(values)
	}

	switch format {
	case "text":
		return mcp.NewToolResultText(report.RenderText(out.Report)), nil
	case "markdown":
		return mcp.NewToolResultText(report.RenderMarkdown(out.Report)), nil
	default:
		return marshalResult(map[string]any{
			"run_id": out.RunID,
			"digest": out.Digest,
			"failed": out.Failed(),
			"report": out.Report,
		})
	}
}

// handleExtract returns the state machine derived from one component.
func (s *DavinciServer) handleExtract(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	component, err := req.RequireString("component")
	if err != nil {
		return mcp.NewToolResultError("component is required"), nil
	}
	format := req.GetString("format", "json")
	if format != "json" && format != "mermaid" {
		return mcp.NewToolResultError("format must be json or mermaid"), nil
	}
	doc, err := documentArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	g, err := graph.Parse(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("document rejected: %v", err)), nil
	}
	c, ok := g.Resolve(component)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("component %q not found", component)), nil
	}

	m, xErr := machine.ExtractWith(c, s.extract)
	if xErr != nil {
		// A machine with unreachable terminals is still worth showing.
		partial, ok := machine.PartialMachine(xErr)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", xErr)), nil
		}
		m = partial
	}

	if format == "mermaid" {
		return mcp.NewToolResultText(diagram.RenderMermaid(diagram.Build(m, nil))), nil
	}
	payload := map[string]any{"machine": m}
	if xErr != nil {
		payload["warning"] = xErr.Error()
	}
	return marshalResult(payload)
}

// handleHistory lists stored runs or one property's outcomes.
func (s *DavinciServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run history is not configured"), nil
	}
	limit := req.GetInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	if propertyID := req.GetString("property_id", ""); propertyID != "" {
		outcomes, err := s.store.PropertyHistory(ctx, propertyID, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"property_id": propertyID, "outcomes": outcomes})
	}

	filter := store.RunFilter{
		FailedOnly: req.GetBool("failed_only", false),
		Limit:      limit,
	}
	if since := req.GetString("since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return mcp.NewToolResultError("since must be an RFC 3339 timestamp"), nil
		}
		filter.Since = &t
	}

	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

// documentArg decodes the document argument, preferring the structured
// object over source text.
func documentArg(req mcp.CallToolRequest) (*schema.Document, error) {
	args := req.GetArguments()
	if tree, ok := args["document"].(map[string]any); ok {
		return loader.DecodeValue(tree)
	}
	if source := req.GetString("source", ""); source != "" {
		return loader.Decode([]byte(source), loader.FormatAuto)
	}
	return nil, schema.NewError(schema.ErrCodeValidation, "one of document or source is required")
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
