package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/chatflow/pkg/runtime"
	"github.com/rendis/chatflow/pkg/schema"
)

// SessionNotifier is a runtime.Observer that streams the exchanges of a
// simulated run to the MCP session that started it.
type SessionNotifier struct {
	mcpServer *server.MCPServer
	sessionID string
}

// NewSessionNotifier returns a notifier for the session carried by ctx, or
// nil when the request did not come through a session.
func NewSessionNotifier(ctx context.Context, mcpServer *server.MCPServer) *SessionNotifier {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return nil
	}
	return &SessionNotifier{mcpServer: mcpServer, sessionID: session.SessionID()}
}

// OnEvent pushes speak, listen and handover events as log notifications.
// Best-effort: a vanished session is not an error.
func (n *SessionNotifier) OnEvent(_ context.Context, ev runtime.Event) error {
	switch ev.Type {
	case schema.EventSpoke, schema.EventHeard, schema.EventListenTimedOut, schema.EventHandover:
	default:
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(n.sessionID, "notifications/message", map[string]any{
		"level":  "info",
		"logger": "chatflow",
		"data":   ev,
	})
	if errors.Is(err, server.ErrSessionNotFound) {
		return nil
	}
	return err
}
