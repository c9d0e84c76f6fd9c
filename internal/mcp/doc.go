// Package mcp implements the Model Context Protocol (MCP) server for the copilot.
//
// The server exposes four tools to assistants over stdio:
//   - search: hybrid keyword and semantic search over stored documents
//   - reload_index: invalidate or rebuild the in-memory retrieval index
//   - index_status: snapshot and storage statistics
//   - index_documents: re-extract and store paragraphs for documents
//
// stdout carries the protocol, so all logging goes to stderr.
//
// # Tool: search
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {"query": "kargo ücreti", "k": 5}
//	}
//
//	Response:
//	{
//	  "query": "kargo ücreti",
//	  "count": 1,
//	  "mode": "hybrid",
//	  "configured_mode": "hybrid",
//	  "fusion": "weighted",
//	  "dense": true,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "id": "0b5c...",
//	      "paragraph_id": "9e1f...",
//	      "title": "Kargo",
//	      "url": "https://bambicim.com/kargo",
//	      "score": 0.87,
//	      "snippet": "Kargo ücreti sipariş tutarına göre …"
//	    }
//	  ]
//	}
//
// A search never fails because a backend is down: when the embedding service
// is unavailable results are ranked lexically, "mode" reports the mode that
// actually ranked them ("lexical") and "dense" is false.
//
// # Tool: reload_index
//
// Without arguments the next search rebuilds the index. With
// {"rebuild_now": true} the rebuild runs before the call returns and the
// response carries the new snapshot status.
//
// # Tool: index_documents
//
//	{"name": "index_documents", "arguments": {"doc_ids": ["..."], "force": false}}
//
// Unchanged documents are skipped unless force is set. A successful run
// schedules an index reload.
//
// # Error Handling
//
// Handlers return *MCPError values:
//   - -32602: Invalid params
//   - -32603: Internal error (storage, rebuild)
//   - -32001: Document not found
//   - -32002: Indexing in progress
//   - -32003: Nothing stored yet
//   - -32004: Empty query
package mcp
