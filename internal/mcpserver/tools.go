package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentflux/fluxdiff/fluxdiff"
	"github.com/agentflux/fluxdiff/internal/codec"
	"github.com/agentflux/fluxdiff/internal/diffreport"
	"github.com/agentflux/fluxdiff/model"
)

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// DecodeTool splits a marked bundle into files.
type DecodeTool struct {
	app *fluxdiff.App
}

func (t *DecodeTool) Definition() mcp.Tool {
	return mcp.NewTool("decode_bundle",
		mcp.WithDescription("Split a marked multi-file string (%%%%name: ... $$$$ body $$$$ ...) into a filename to body map. Never fails; problems are listed as diagnostics."),
		mcp.WithString("code", mcp.Required(), mcp.Description("The marked bundle text")),
	)
}

func (t *DecodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	files, diags := t.app.Decode(code)
	if diags == nil {
		diags = []codec.Diagnostic{}
	}
	return jsonResult(map[string]any{"files": files, "diagnostics": diags})
}

// EncodeTool packs files into a marked bundle.
type EncodeTool struct {
	app *fluxdiff.App
}

func (t *EncodeTool) Definition() mcp.Tool {
	return mcp.NewTool("encode_bundle",
		mcp.WithDescription("Pack a filename to body map into one marked string in canonical form."),
		mcp.WithObject("files",
			mcp.Required(),
			mcp.Description("Map of filename to file body"),
			mcp.AdditionalProperties(map[string]any{"type": "string"}),
		),
	)
}

func (t *EncodeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Files map[string]string `json:"files"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Files == nil {
		return mcp.NewToolResultError(`required argument "files" not found`), nil
	}
	for name := range args.Files {
		if !codec.ValidFilename(name) {
			return mcp.NewToolResultErrorf("filename cannot be encoded: %q", name), nil
		}
	}
	return mcp.NewToolResultText(t.app.Encode(model.Bundle(args.Files))), nil
}

// DiffTool diffs one file.
type DiffTool struct {
	app *fluxdiff.App
}

func (t *DiffTool) Definition() mcp.Tool {
	return mcp.NewTool("diff_files",
		mcp.WithDescription("Unified line diff of an original and a refined file body, with every line categorized."),
		mcp.WithString("filename", mcp.Description("Optional name used in the diff headers")),
		mcp.WithString("original", mcp.Required(), mcp.Description("Original file body")),
		mcp.WithString("refined", mcp.Required(), mcp.Description("Refined file body")),
	)
}

func (t *DiffTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	original, err := req.RequireString("original")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refined, err := req.RequireString("refined")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report := t.app.Diff(req.GetString("filename", ""), original, refined)
	return jsonResult(map[string]any{
		"unified": diffreport.String(report),
		"lines":   report.Lines,
		"added":   report.Added(),
		"deleted": report.Deleted(),
	})
}
