package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bambicim/copilot/internal/indexer"
	"github.com/bambicim/copilot/internal/logging"
	"github.com/bambicim/copilot/internal/searcher"
	"github.com/bambicim/copilot/internal/storage"
	"github.com/bambicim/copilot/pkg/types"
)

func newTestServer(t *testing.T, seed bool) (*Server, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if seed {
		base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		docs := []types.Document{
			{ID: "kargo", Kind: types.KindPage, Title: "Kargo", URL: "/kargo",
				Text: "Kargo ücreti sipariş tutarına göre hesaplanır ve ödeme adımında gösterilir.", UpdatedAt: base.Add(time.Hour)},
			{ID: "iade", Kind: types.KindPage, Title: "İade", URL: "/iade",
				Text: "İade talebinizi hesabım sayfasından on dört gün içinde oluşturabilirsiniz.", UpdatedAt: base},
		}
		for i := range docs {
			require.NoError(t, store.UpsertDocument(context.Background(), &docs[i]))
		}
	}

	logger := logging.Discard()
	index := searcher.New(store, nil, searcher.DefaultConfig(), searcher.WithLogger(logger))
	idx := indexer.New(store, indexer.WithLogger(logger))
	return NewServer(store, index, idx, WithLogger(logger)), store
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	mcpErr, ok := err.(*MCPError)
	require.True(t, ok, "expected *MCPError, got %T", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer(t *testing.T) {
	s, _ := newTestServer(t, false)
	assert.NotNil(t, s.mcp, "MCP server should be initialized")
	assert.NotNil(t, s.index)
	assert.NotNil(t, s.indexer)
}

func TestHandleSearch(t *testing.T) {
	s, _ := newTestServer(t, true)

	res, err := s.handleSearch(context.Background(), callRequest("search", map[string]interface{}{
		"query": "kargo ücreti",
		"k":     float64(3),
	}))
	require.NoError(t, err)

	out := decodeResult(t, res)
	// No embedding backend, so the configured hybrid search ran lexically
	assert.Equal(t, "lexical", out["mode"])
	assert.Equal(t, "hybrid", out["configured_mode"])
	assert.Equal(t, false, out["dense"])
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)

	first := results[0].(map[string]interface{})
	assert.Equal(t, "kargo", first["id"])
	assert.Equal(t, float64(1), first["rank"])
	assert.Contains(t, first["snippet"], "Kargo ücreti")
}

func TestHandleSearch_Validation(t *testing.T) {
	s, _ := newTestServer(t, true)
	ctx := context.Background()

	_, err := s.handleSearch(ctx, callRequest("search", map[string]interface{}{"query": "   "}))
	requireMCPError(t, err, ErrorCodeEmptyQuery)

	_, err = s.handleSearch(ctx, callRequest("search", map[string]interface{}{"query": "kargo", "k": float64(0)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearch(ctx, callRequest("search", map[string]interface{}{"query": "kargo", "k": float64(MaxSearchK + 1)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearch(ctx, mcp.CallToolRequest{})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleSearch_EmptyCorpusReturnsNoResults(t *testing.T) {
	s, _ := newTestServer(t, false)

	res, err := s.handleSearch(context.Background(), callRequest("search", map[string]interface{}{"query": "kargo"}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, float64(0), out["count"])
	assert.Equal(t, "none", out["mode"])
}

func TestHandleReloadIndex(t *testing.T) {
	s, _ := newTestServer(t, true)
	ctx := context.Background()

	res, err := s.handleReloadIndex(ctx, callRequest("reload_index", nil))
	require.NoError(t, err)
	assert.Equal(t, "scheduled", decodeResult(t, res)["reload"])
	assert.True(t, s.index.Status().Stale)

	res, err = s.handleReloadIndex(ctx, callRequest("reload_index", map[string]interface{}{"rebuild_now": true}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, "done", out["reload"])
	assert.Equal(t, float64(2), out["documents"])
	assert.Equal(t, float64(2), out["paragraphs"])
	assert.Equal(t, false, out["stale"])
}

func TestHandleReloadIndex_EmptyCorpus(t *testing.T) {
	s, _ := newTestServer(t, false)

	_, err := s.handleReloadIndex(context.Background(), callRequest("reload_index", map[string]interface{}{"rebuild_now": true}))
	requireMCPError(t, err, ErrorCodeEmptyCorpus)
}

func TestHandleIndexStatus(t *testing.T) {
	s, _ := newTestServer(t, true)
	ctx := context.Background()

	res, err := s.handleIndexStatus(ctx, callRequest("index_status", nil))
	require.NoError(t, err)
	out := decodeResult(t, res)

	storeInfo := out["storage"].(map[string]interface{})
	assert.Equal(t, float64(2), storeInfo["documents"])
	assert.Equal(t, float64(0), storeInfo["paragraphs"])
	assert.Equal(t, storage.CurrentSchemaVersion, storeInfo["schema_version"])
	assert.NotContains(t, storeInfo, "last_indexed_at")

	index := out["index"].(map[string]interface{})
	assert.Equal(t, true, index["stale"], "never built")
	assert.Equal(t, false, out["indexing"])
}

func TestHandleIndexDocuments(t *testing.T) {
	s, store := newTestServer(t, true)
	ctx := context.Background()

	// Build once so the reload flag is observable
	require.NoError(t, s.index.Build(ctx, false))
	require.False(t, s.index.Status().Stale)

	res, err := s.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{
		"doc_ids": []interface{}{"kargo"},
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, float64(1), out["documents_indexed"])
	assert.Equal(t, float64(1), out["paragraphs_created"])
	assert.True(t, s.index.Status().Stale, "indexing schedules a reload")

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Paragraphs)
	assert.NotNil(t, stats.LastIndexedAt)
}

func TestHandleIndexDocuments_Errors(t *testing.T) {
	s, _ := newTestServer(t, true)
	ctx := context.Background()

	_, err := s.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{"doc_ids": "kargo"}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{"doc_ids": []interface{}{1}}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexDocuments(ctx, callRequest("index_documents", map[string]interface{}{"doc_ids": []interface{}{"ghost"}}))
	requireMCPError(t, err, ErrorCodeNotFound)
}

func TestGetStringSlice(t *testing.T) {
	got, err := getStringSlice(map[string]interface{}{}, "doc_ids")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = getStringSlice(map[string]interface{}{"doc_ids": []string{"a"}}, "doc_ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)

	_, err = getStringSlice(map[string]interface{}{"doc_ids": []interface{}{""}}, "doc_ids")
	assert.Error(t, err)
}
