package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/prowler/internal/history"
	"github.com/kalambet/prowler/internal/lookup"
	"github.com/kalambet/prowler/internal/postcode"
)

const stateResourceURI = "prowler://state"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Orchestrator Orchestrator
	Version      string
}

// NewMCPServer creates an MCP server exposing postcode lookups and history.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"prowler",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prowler looks up UK postcodes, enriches them with district boundaries and remembers recent lookups."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("lookup_postcode",
			mcp.WithDescription("Look up a UK postcode. Returns status, geography, administrative areas and, when available, the district boundary as GeoJSON."),
			mcp.WithString("postcode", mcp.Description("UK postcode, e.g. SW1A 1AA"), mcp.Required()),
			mcp.WithBoolean("include_boundary", mcp.Description("Include the boundary GeoJSON in the response (default false)")),
		),
		mcpLookupPostcode(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("List recently looked-up postcodes, most recent first."),
			mcp.WithString("prefix", mcp.Description("Only return postcodes starting with this prefix")),
		),
		mcpListHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("select_history",
			mcp.WithDescription("Show a remembered lookup without contacting any remote service."),
			mcp.WithString("postcode", mcp.Description("Postcode of the history entry"), mcp.Required()),
		),
		mcpSelectHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			stateResourceURI,
			"Lookup State",
			mcp.WithResourceDescription("Current search phase, result and error"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceState(deps),
	)

	return s
}

func mcpLookupPostcode(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("postcode")
		if err != nil {
			return mcpError("postcode is required"), nil
		}
		pc := postcode.Normalize(raw)
		if !postcode.Valid(pc) {
			return mcpError(fmt.Sprintf("invalid postcode %q", raw)), nil
		}

		st, err := deps.Orchestrator.Search(ctx, pc)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup for %s: %v", pc, err)), nil
		}
		if st.Phase == lookup.PhaseError {
			return mcpError(st.Error), nil
		}
		if st.Result == nil {
			return mcpError(lookup.GenericMessage), nil
		}
		return mcpJSON(resultView(*st.Result, req.GetBool("include_boundary", false)))
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entries := history.Suggest(req.GetString("prefix", ""), deps.Orchestrator.State().History)

		type historyItem struct {
			Postcode  string `json:"postcode"`
			Timestamp int64  `json:"timestamp"`
			Status    string `json:"status"`
			District  string `json:"district,omitempty"`
		}

		items := make([]historyItem, len(entries))
		for i, e := range entries {
			items[i] = historyItem{
				Postcode:  e.Postcode,
				Timestamp: e.Timestamp,
				Status:    e.Data.StatusLabel(),
				District:  e.Data.District(),
			}
		}
		return mcpJSON(items)
	}
}

func mcpSelectHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pc, err := req.RequireString("postcode")
		if err != nil {
			return mcpError("postcode is required"), nil
		}
		entry, ok := history.Find(postcode.Normalize(pc), deps.Orchestrator.State().History)
		if !ok {
			return mcpError(fmt.Sprintf("no history entry for %q", pc)), nil
		}
		st := deps.Orchestrator.SelectHistoryEntry(entry)
		return mcpJSON(resultView(*st.Result, false))
	}
}

func mcpResourceState(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		st := deps.Orchestrator.State()
		st.History = nil

		b, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal state: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

type resultSummary struct {
	Status         string                `json:"status"`
	Result         postcode.LookupResult `json:"result"`
	BoundaryPoints int                   `json:"boundary_points,omitempty"`
}

// resultView trims a result for tool output. Boundary rings can run to
// thousands of points, so they are summarized unless asked for.
func resultView(r postcode.LookupResult, includeBoundary bool) resultSummary {
	v := resultSummary{Status: r.StatusLabel()}
	if r.APIData != nil && r.APIData.DistrictBoundary != nil {
		v.BoundaryPoints = r.APIData.DistrictBoundary.PointCount()
		if !includeBoundary {
			r = r.WithBoundary(nil)
		}
	}
	v.Result = r
	return v
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
