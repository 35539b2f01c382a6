// Package proxy forwards admitted requests to the upstream MCP server.
//
// Responses are flushed immediately so streamed (SSE) responses reach the
// client as they are produced.
package proxy
