package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/southadmin/localvault/internal/cache"
	"github.com/southadmin/localvault/internal/config"
	"github.com/southadmin/localvault/internal/guard"
	"github.com/southadmin/localvault/internal/local"
	"github.com/southadmin/localvault/internal/logger"
	"github.com/southadmin/localvault/internal/notify"
	"github.com/southadmin/localvault/internal/token"
	"github.com/southadmin/localvault/internal/tools"
)

const daemonBinary = "localvault-cache"

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting localvault MCP server")

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("load config: %v", err)
		panic(err)
	}

	// Connect to cache daemon; start it if needed, then connect.
	logger.Infof("Attempting to connect to cache daemon at %s", cfg.SocketPath)
	client := cache.NewClient(cfg.SocketPath)
	if err := client.Ping(); err != nil {
		logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)
		if startErr := startCacheDaemon(); startErr != nil {
			logger.Errorf("Failed to start cache daemon: %v", startErr)
		} else {
			logger.Infof("Cache daemon started successfully")
		}
		// wait for socket to appear
		deadline := time.Now().Add(5 * time.Second)
		for err != nil && time.Now().Before(deadline) {
			time.Sleep(200 * time.Millisecond)
			err = client.Ping()
		}
		if err != nil {
			logger.Errorf("Failed to connect to cache daemon after startup attempt: %v", err)
			panic(err)
		}
	}
	logger.Infof("Successfully connected to cache daemon")

	c, err := cfg.Codec()
	if err != nil {
		logger.Errorf("init codec: %v", err)
		panic(err)
	}

	s := server.NewMCPServer(
		"localvault",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	logger.Infof("Created MCP server instance")

	store := local.New(client, c, local.Options{
		DefaultTTL:   cfg.DefaultTTL,
		Notifier:     notify.Multi{notify.LogNotifier{}, tools.NewNotifier(s)},
		NotifyWindow: cfg.NotifyWindow,
	})
	tokens := token.New(store)
	g := guard.New(tokens)

	s.AddTool(mcp.NewTool("local-get",
		mcp.WithDescription(multiline(
			"Reads a value from the encrypted local store",
			"- Returns the stored JSON value, or 'Not found.' when the key is absent, expired, or unreadable",
			"- Expired and unreadable entries are purged as a side effect",
		)),
		mcp.WithString("key", mcp.Required(), mcp.Description("The key to read")),
	), tools.LocalGetHandler(store))

	s.AddTool(mcp.NewTool("local-set",
		mcp.WithDescription(multiline(
			"Writes a value to the encrypted local store, replacing any existing entry",
			"- Values that are valid JSON are stored as JSON; anything else is stored as a string",
			"- Entries expire after 2 days unless ttl_seconds or persistent is given",
		)),
		mcp.WithString("key", mcp.Required(), mcp.Description("The key to write")),
		mcp.WithString("value", mcp.Required(), mcp.Description("The value to store")),
		mcp.WithNumber("ttl_seconds", mcp.Description("Seconds until the entry expires; cannot be combined with persistent"), mcp.Min(0)),
		mcp.WithBoolean("persistent", mcp.Description("Store without expiry")),
	), tools.LocalSetHandler(store))

	s.AddTool(mcp.NewTool("local-remove",
		mcp.WithDescription("Removes a key from the local store. Removing an absent key succeeds."),
		mcp.WithString("key", mcp.Required(), mcp.Description("The key to remove")),
	), tools.LocalRemoveHandler(store))

	s.AddTool(mcp.NewTool("local-clear",
		mcp.WithDescription(multiline(
			"Wipes the entire backing store",
			"- This removes every key, including data not written through this server",
		)),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true")),
	), tools.LocalClearHandler(store))

	s.AddTool(mcp.NewTool("token-get",
		mcp.WithDescription("Returns the stored auth token, or empty text when signed out"),
	), tools.TokenGetHandler(tokens))

	s.AddTool(mcp.NewTool("token-set",
		mcp.WithDescription("Stores the auth token with the default 2 day expiry"),
		mcp.WithString("token", mcp.Required(), mcp.Description("The token value")),
	), tools.TokenSetHandler(tokens))

	s.AddTool(mcp.NewTool("token-remove",
		mcp.WithDescription("Removes the stored auth token"),
	), tools.TokenRemoveHandler(tokens))

	s.AddTool(mcp.NewTool("auth-guard",
		mcp.WithDescription(multiline(
			"Decides whether navigating to a path is allowed with the current token",
			"- Signed-out visits to any page but /login redirect to /login with a redirect parameter",
		)),
		mcp.WithString("path", mcp.Required(), mcp.Description("The route path, e.g. /users")),
		mcp.WithString("query", mcp.Description("The raw query string without '?'")),
	), tools.AuthGuardHandler(g))
	logger.Infof("Registered local, token, and guard tools")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

func startCacheDaemon() error {
	// 1) Try cache binary next to this server executable (works with absolute invocation)
	if exePath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exePath), daemonBinary)
		if _, statErr := os.Stat(sibling); statErr == nil {
			return spawn(sibling)
		}
	}

	// 2) Try PATH binary
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return spawn(path)
	}

	// 3) Try local binary in current working directory (best-effort)
	if _, err := os.Stat("./" + daemonBinary); err == nil {
		return spawn("./" + daemonBinary)
	}

	return exec.ErrNotFound
}

func spawn(path string) error {
	cmd := exec.Command(path)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	return cmd.Start()
}
