package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bambicim/copilot/internal/fusion"
	"github.com/bambicim/copilot/internal/indexer"
	"github.com/bambicim/copilot/internal/searcher"
	"github.com/bambicim/copilot/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // Referenced document does not exist
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyCorpus        = -32003 // Nothing has been stored yet
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, types.ErrEmptyQuery.Error(), map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	k := getIntDefault(args, "k", s.index.Config().TopK)
	if k < MinSearchK || k > MaxSearchK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("k must be between %d and %d", MinSearchK, MaxSearchK), map[string]interface{}{
			"param": "k",
			"value": k,
		})
	}

	start := time.Now()
	answer := s.index.Query(ctx, query, k)

	items := make([]map[string]interface{}, 0, len(answer.Results))
	for _, r := range answer.Results {
		items = append(items, map[string]interface{}{
			"rank":         r.Rank,
			"id":           r.ID,
			"paragraph_id": r.ParagraphID,
			"title":        r.Title,
			"url":          r.URL,
			"score":        r.Score,
			"snippet":      r.Snippet,
		})
	}

	status := s.index.Status()
	response := map[string]interface{}{
		"query":           query,
		"results":         items,
		"count":           len(items),
		"mode":            string(answer.Mode),
		"configured_mode": string(status.Mode),
		"fusion":          string(status.Strategy),
		"dense":           answer.Mode == fusion.ModeHybrid || answer.Mode == fusion.ModeDense,
		"duration_ms":     time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleReloadIndex handles the reload_index tool invocation
func (s *Server) handleReloadIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	if !getBoolDefault(args, "rebuild_now", false) {
		s.index.Reload()
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"reload":  "scheduled",
			"message": "The index will be rebuilt on the next search.",
		})), nil
	}

	if err := s.index.Build(ctx, true); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "index rebuild failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	status := s.index.Status()
	if status.Paragraphs == 0 {
		return nil, newMCPError(ErrorCodeEmptyCorpus, types.ErrEmptyCorpus.Error(), map[string]interface{}{
			"documents": status.Documents,
		})
	}
	response := statusMap(status)
	response["reload"] = "done"
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	storeInfo := map[string]interface{}{
		"backend":        stats.Backend,
		"schema_version": stats.SchemaVersion,
		"documents":      stats.Documents,
		"paragraphs":     stats.Paragraphs,
	}
	if stats.LastIndexedAt != nil {
		storeInfo["last_indexed_at"] = stats.LastIndexedAt.UTC().Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"index":    statusMap(s.index.Status()),
		"storage":  storeInfo,
		"indexing": s.indexer.Running(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexDocuments handles the index_documents tool invocation
func (s *Server) handleIndexDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	docIDs, err := getStringSlice(args, "doc_ids")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "doc_ids must be an array of strings", map[string]interface{}{
			"param":  "doc_ids",
			"reason": err.Error(),
		})
	}

	config := &indexer.Config{
		DocIDs: docIDs,
		Force:  getBoolDefault(args, "force", false),
	}

	stats, err := s.indexer.IndexDocuments(ctx, config)
	switch {
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, types.ErrNotFound):
		return nil, newMCPError(ErrorCodeNotFound, "document not found", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if stats.DocumentsIndexed > 0 {
		s.index.Reload()
	}

	response := map[string]interface{}{
		"indexed":            true,
		"documents_indexed":  stats.DocumentsIndexed,
		"documents_skipped":  stats.DocumentsSkipped,
		"documents_failed":   stats.DocumentsFailed,
		"paragraphs_created": stats.ParagraphsCreated,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func statusMap(st searcher.Status) map[string]interface{} {
	out := map[string]interface{}{
		"documents":     st.Documents,
		"paragraphs":    st.Paragraphs,
		"stale":         st.Stale,
		"dense":         st.Dense,
		"ann":           st.ANN,
		"dense_backend": st.DenseBackend,
		"mode":          string(st.Mode),
		"fusion":        string(st.Strategy),
	}
	if !st.BuiltAt.IsZero() {
		out["built_at"] = st.BuiltAt.UTC().Format(time.RFC3339)
		out["age_seconds"] = int64(st.Age.Seconds())
	}
	return out
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok || strings.TrimSpace(str) == "" {
				return nil, fmt.Errorf("item %d is not a non-empty string", i)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected array, got %T", raw)
	}
}
