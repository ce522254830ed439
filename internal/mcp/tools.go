package mcp

import "github.com/mark3labs/mcp-go/mcp"

// resolveStructureTool defines the resolve_structure MCP tool.
var resolveStructureTool = mcp.NewTool("resolve_structure",
	mcp.WithDescription("Download a crystal structure file, parse it and optionally build a supercell. Returns a summary or the structure re-encoded in the requested format."),
	mcp.WithString("structure_url",
		mcp.Required(),
		mcp.Description("HTTP(S) URL of the structure file"),
	),
	mcp.WithString("structure_format",
		mcp.Required(),
		mcp.Description("Format of the file, e.g. cif, poscar, json, yaml, xsf"),
	),
	mcp.WithString("supercell",
		mcp.Description("Three positive integers x,y,z to replicate the cell"),
	),
	mcp.WithString("output",
		mcp.Description("Result encoding (default summary)"),
		mcp.Enum("summary", "json", "yaml", "cif", "poscar", "xsf"),
	),
)

// listFormatsTool defines the list_formats MCP tool.
var listFormatsTool = mcp.NewTool("list_formats",
	mcp.WithDescription("List the structure file formats that can be parsed."),
)
