package server

import (
	"context"
	"net/http"

	"github.com/claude/restset/internal/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// NewMCPHandler serves s over streamable HTTP. Tool calls run as the user
// resolved by the identity middleware in front of /mcp.
func NewMCPHandler(s *mcpserver.MCPServer) http.Handler {
	return mcpserver.NewStreamableHTTPServer(s,
		mcpserver.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return mcp.WithUserID(ctx, userIDFromContext(r))
		}),
	)
}
