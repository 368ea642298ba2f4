package docparse

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/edulingo/edulingo/kit"
)

// MCP tool surface: the document pipeline exposed to agent clients. Content
// travels base64-encoded; results are the same JSON shapes the HTTP API
// returns.

type mcpProcessArgs struct {
	Filename        string `json:"filename"`
	FileType        string `json:"file_type,omitempty"`
	ContentBase64   string `json:"content_base64"`
	ExtractTopics   *bool  `json:"extract_topics,omitempty"`
	GenerateSummary *bool  `json:"generate_summary,omitempty"`
}

type mcpProcessRequest struct {
	Filename string
	FileType string
	Content  []byte
	Options  ProcessOptions
}

// RegisterMCPTools wires the processor's operations onto an MCP server.
func RegisterMCPTools(srv *mcp.Server, p *Processor) {
	kit.RegisterMCPTool(srv,
		&mcp.Tool{
			Name:        "process_document",
			Description: "Parse an uploaded document (base64 content) and return extracted text, structure, key topics and a summary.",
		},
		func(ctx context.Context, req any) (any, error) {
			r := req.(*mcpProcessRequest)
			return p.ProcessFile(ctx, r.Content, r.Filename, r.FileType, r.Options)
		},
		decodeProcessArgs,
	)

	kit.RegisterMCPTool(srv,
		&mcp.Tool{
			Name:        "document_processing_stats",
			Description: "Report available parsers, supported MIME types and size limits.",
		},
		func(ctx context.Context, req any) (any, error) {
			return p.Stats(), nil
		},
		decodeEmptyArgs,
	)

	kit.RegisterMCPTool(srv,
		&mcp.Tool{
			Name:        "parser_metrics",
			Description: "Report per-parser cumulative metrics (documents processed, success rate, timing).",
		},
		func(ctx context.Context, req any) (any, error) {
			return p.ParserMetrics(), nil
		},
		decodeEmptyArgs,
	)

	kit.RegisterMCPTool(srv,
		&mcp.Tool{
			Name:        "parsing_health",
			Description: "Report parsing service health: healthy, disabled (advanced engine absent) or unhealthy.",
		},
		func(ctx context.Context, req any) (any, error) {
			return p.Service().Health(), nil
		},
		decodeEmptyArgs,
	)
}

func decodeProcessArgs(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var args mcpProcessArgs
	if err := unmarshalArgs(req, &args); err != nil {
		return nil, err
	}
	if args.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	content, err := base64.StdEncoding.DecodeString(args.ContentBase64)
	if err != nil {
		return nil, fmt.Errorf("content_base64: %w", err)
	}

	opts := DefaultProcessOptions()
	if args.ExtractTopics != nil {
		opts.ExtractTopics = *args.ExtractTopics
	}
	if args.GenerateSummary != nil {
		opts.GenerateSummary = *args.GenerateSummary
	}

	return &kit.MCPDecodeResult{
		Request: &mcpProcessRequest{
			Filename: args.Filename,
			FileType: args.FileType,
			Content:  content,
			Options:  opts,
		},
	}, nil
}

func decodeEmptyArgs(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{Request: struct{}{}}, nil
}

func unmarshalArgs(req *mcp.CallToolRequest, v any) error {
	raw := req.Params.Arguments
	if len(raw) == 0 {
		return fmt.Errorf("missing arguments")
	}
	return json.Unmarshal(raw, v)
}
