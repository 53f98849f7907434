package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/southadmin/localvault/internal/notify"
)

// Notifier forwards notices to every connected MCP client as log messages.
type Notifier struct {
	srv *server.MCPServer
}

func NewNotifier(s *server.MCPServer) *Notifier {
	return &Notifier{srv: s}
}

func (n *Notifier) Notify(kind notify.Kind, content, dedupeKey string) {
	n.srv.SendNotificationToAllClients("notifications/message", map[string]any{
		"level":  logLevel(kind),
		"logger": dedupeKey,
		"data":   content,
	})
}

func logLevel(kind notify.Kind) mcp.LoggingLevel {
	switch kind {
	case notify.KindError:
		return mcp.LoggingLevelError
	case notify.KindWarning:
		return mcp.LoggingLevelWarning
	default:
		return mcp.LoggingLevelInfo
	}
}
