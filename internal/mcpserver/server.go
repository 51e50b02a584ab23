// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Keyshift tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/keyshift/internal/chartservice"
)

const formatURI = "keyshift://chart-format"

// Server wraps the MCP server with Keyshift tools.
type Server struct {
	mcp *server.MCPServer
	svc *chartservice.Service
}

// New creates a new MCP server with all Keyshift tools registered.
func New(svc *chartservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Keyshift",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_charts",
		mcp.WithDescription("Full-text search through chart titles, artists and versions."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCharts)

	s.mcp.AddTool(mcp.NewTool("read_chart",
		mcp.WithDescription("Read the full document of a chart."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the chart (e.g. pack/song.yaml)")),
	), s.readChart)

	s.mcp.AddTool(mcp.NewTool("create_chart",
		mcp.WithDescription("Create a new chart at the specified path. "+
			"Content MUST follow the chart format (YAML with keys and notes). Read the format first via "+
			"the get_chart_format tool or the "+formatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new chart (.yaml, .yml or .json)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Chart document following the Keyshift chart format")),
	), s.createChart)

	s.mcp.AddTool(mcp.NewTool("list_charts",
		mcp.WithDescription("List indexed charts, optionally only one key mode."),
		mcp.WithNumber("keys", mcp.Description("Only list charts with this column count (0 for all)")),
		mcp.WithString("sort", mcp.Description("Sort field: path, title, keys, notes or updated_at")),
	), s.listCharts)

	s.mcp.AddTool(mcp.NewTool("convert_chart",
		mcp.WithDescription("Convert a chart and save the result to the library. "+
			"Returns the conversion record including the seed used."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Converter: keys, doubleplay or longnote")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Path of the chart to convert")),
		mcp.WithString("target", mcp.Description("Output path (derived from source when empty)")),
		mcp.WithString("options", mcp.Description(`Converter options as a JSON object, e.g. {"target_keys": 7, "seed": 42}`)),
		mcp.WithBoolean("overwrite", mcp.Description("Replace the target if it already exists")),
	), s.convertChart)

	s.mcp.AddTool(mcp.NewTool("import_chart",
		mcp.WithDescription("Import a chart document from an http(s) URL or a base64 data URI into the library."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:application/x-yaml;base64,... URI")),
		mcp.WithString("filename", mcp.Description("File name to save as (derived from the URL when empty)")),
		mcp.WithString("dir", mcp.Description("Library sub-directory to save into")),
	), s.importChart)

	s.mcp.AddTool(mcp.NewTool("get_chart_format",
		mcp.WithDescription("Returns the Keyshift chart format and the converter options. "+
			"Call this before creating charts or running conversions."),
	), s.getChartFormat)

	// Resource: chart format.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Chart Format",
			mcp.WithResourceDescription("Chart document format and converter reference."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readChartFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchCharts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no charts found"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readChart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetChart(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(d.Content), nil
}

func (s *Server) createChart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.CreateChart(ctx, path, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%dK, %d notes)", d.Path, d.Keys, d.Notes)), nil
}

func (s *Server) listCharts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys := req.GetInt("keys", 0)
	sort := req.GetString("sort", "")

	items, _, err := s.svc.ListCharts(ctx, 500, 0, keys, sort)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s\t%dK\t%d notes\t%s", it.Path, it.Keys, it.Notes, it.Title))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) convertChart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	creq := chartservice.Request{
		Kind:      chartservice.Kind(kind),
		Source:    source,
		Target:    req.GetString("target", ""),
		Overwrite: req.GetBool("overwrite", false),
	}
	if opts := strings.TrimSpace(req.GetString("options", "")); opts != "" {
		if !json.Valid([]byte(opts)) {
			return mcp.NewToolResultError("options must be a JSON object"), nil
		}
		creq.Options = json.RawMessage(opts)
	}

	res, err := s.svc.Convert(ctx, creq)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("convert %s: %v", source, err)), nil
	}
	return jsonResult(res.Conversion), nil
}

func (s *Server) getChartFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ChartFormatContract), nil
}

func (s *Server) readChartFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ChartFormatContract,
		},
	}, nil
}
