package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sprout/internal/filestore"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *filestore.Store
	Version string
}

// NewFilesMCPServer creates an MCP server exposing the file store.
func NewFilesMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"sprout-files",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sprout file storage: list, rename and delete stored files, grouped into images, videos, html, text and docs folders."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_files",
			mcp.WithDescription("List stored files, newest first."),
			mcp.WithString("type", mcp.Description("Only files of this type: image, video, html, text or doc")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
		),
		mcpListFiles(deps),
	)

	s.AddTool(
		mcp.NewTool("rename_file",
			mcp.WithDescription("Rename a stored file. The file moves to the folder matching its new extension; existing files are never overwritten."),
			mcp.WithString("sub", mcp.Description("Current folder of the file"), mcp.Required()),
			mcp.WithString("old_name", mcp.Description("Current file name"), mcp.Required()),
			mcp.WithString("new_name", mcp.Description("New file name"), mcp.Required()),
		),
		mcpRenameFile(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_files",
			mcp.WithDescription("Delete stored files. Missing files are skipped."),
			mcp.WithString("files", mcp.Description(`JSON array of {"sub","name"} objects`), mcp.Required()),
		),
		mcpDeleteFiles(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"files://index",
			"File Index",
			mcp.WithResourceDescription("All stored files as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceIndex(deps),
	)

	return s
}

func mcpListFiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		kind := filestore.Category(req.GetString("type", ""))

		files, err := deps.Store.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing failed: %v", err)), nil
		}

		out := make([]filestore.File, 0, min(limit, len(files)))
		for _, f := range files {
			if kind != "" && f.Type != kind {
				continue
			}
			out = append(out, f)
			if len(out) == limit {
				break
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal files: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRenameFile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sub, err := req.RequireString("sub")
		if err != nil {
			return mcpError("sub is required"), nil
		}
		oldName, err := req.RequireString("old_name")
		if err != nil {
			return mcpError("old_name is required"), nil
		}
		newName, err := req.RequireString("new_name")
		if err != nil {
			return mcpError("new_name is required"), nil
		}

		f, err := deps.Store.Rename(ctx, sub, oldName, newName)
		if errors.Is(err, filestore.ErrNotFound) {
			return mcpError(fmt.Sprintf("%s/%s not found", sub, oldName)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("rename failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Renamed %s/%s to %s/%s", sub, oldName, f.Subfolder, f.Name)), nil
	}
}

func mcpDeleteFiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("files")
		if err != nil {
			return mcpError("files is required"), nil
		}
		var refs []filestore.Ref
		if err := json.Unmarshal([]byte(raw), &refs); err != nil {
			return mcpError(fmt.Sprintf("invalid files JSON: %v", err)), nil
		}

		n, err := deps.Store.Delete(ctx, refs)
		if err != nil {
			return mcpError(fmt.Sprintf("deleted %d of %d, then failed: %v", n, len(refs), err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted %d file(s)", n)), nil
	}
}

func mcpResourceIndex(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		files, err := deps.Store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list files: %w", err)
		}

		b, err := json.Marshal(files)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal files: %w", err)
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
