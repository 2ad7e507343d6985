// Package mcp exposes quoting, quality scoring and run control as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp) and
// calls the pipeline and scorer directly. Failure reasons are redacted for
// secrets before they are returned to clients.
package mcp
