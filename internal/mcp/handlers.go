package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/crystal-viewer/internal/formats"
	"github.com/ziadkadry99/crystal-viewer/internal/resolver"
)

// handleResolveStructure resolves a structure and renders it for the agent.
func (s *Server) handleResolveStructure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	structureURL, err := request.RequireString("structure_url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: structure_url"), nil
	}
	format, err := request.RequireString("structure_format")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: structure_format"), nil
	}

	req := &resolver.Request{StructureURL: structureURL, Format: format}
	if sc := request.GetString("supercell", ""); sc != "" {
		scale, err := resolver.ParseSupercell(sc)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		req.Supercell = &scale
	}

	output := request.GetString("output", "summary")
	if output != "summary" && !formats.IsSupported(output) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported output %q", output)), nil
	}

	res, err := s.resolver.ResolveRequest(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(describeError(err)), nil
	}

	if output == "summary" {
		return mcp.NewToolResultText(res.Structure.Summary()), nil
	}
	data, err := formats.Write(output, res.Structure)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding structure as %s: %v", output, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleListFormats lists the parseable format tags.
func (s *Server) handleListFormats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText("Supported formats: " + strings.Join(formats.Supported(), ", ")), nil
}

// describeError prefixes resolution failures with a hint at the cause.
func describeError(err error) string {
	switch {
	case errors.Is(err, resolver.ErrRemoteFetch):
		return "Could not download the structure file: " + err.Error()
	case errors.Is(err, resolver.ErrParse):
		return "The file could not be parsed in the declared format: " + err.Error()
	default:
		return err.Error()
	}
}
