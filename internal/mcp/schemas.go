package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Search limits accepted by the search tool
const (
	MinSearchK = 1
	MaxSearchK = 50
)

// searchTool returns the tool definition for search
func searchTool(defaultK int) mcp.Tool {
	return mcp.Tool{
		Name:        "search",
		Description: "Search site pages and notes with hybrid keyword and semantic ranking. Returns one best paragraph per document with a highlighted snippet.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query in Turkish or English",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     defaultK,
					"minimum":     MinSearchK,
					"maximum":     MaxSearchK,
				},
			},
			Required: []string{"query"},
		},
	}
}

// reloadIndexTool returns the tool definition for reload_index
func reloadIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reload_index",
		Description: "Force the retrieval index to be rebuilt. By default the rebuild happens on the next search; set rebuild_now to rebuild immediately.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"rebuild_now": map[string]interface{}{
					"type":        "boolean",
					"description": "Rebuild synchronously instead of on the next search",
					"default":     false,
				},
			},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_status",
		Description: "Report the retrieval index snapshot and stored document statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// indexDocumentsTool returns the tool definition for index_documents
func indexDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_documents",
		Description: "Re-extract and store paragraphs for documents, then schedule an index reload",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"doc_ids": map[string]interface{}{
					"type":        "array",
					"description": "Only index these document ids (default: all documents)",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Rewrite paragraphs even when unchanged",
					"default":     false,
				},
			},
		},
	}
}
