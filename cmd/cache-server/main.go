package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/southadmin/localvault/internal/cache"
	"github.com/southadmin/localvault/internal/config"
	"github.com/southadmin/localvault/internal/logger"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("load config: %v", err)
		panic(err)
	}

	// Ensure socket dir exists and remove stale socket
	_ = os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755)
	_ = os.Remove(cfg.SocketPath)

	l, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		panic(err)
	}
	_ = os.Chmod(cfg.SocketPath, 0o600)

	kv, closer, err := openBackend(cfg)
	if err != nil {
		_ = l.Close()
		logger.Errorf("open %s backend: %v", cfg.Backend, err)
		panic(err)
	}
	defer closer.Close()
	logger.Infof("Serving %s backend on %s", cfg.Backend, cfg.SocketPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cache.Serve(ctx, l, kv); err != nil {
		logger.Errorf("cache daemon: %v", err)
	}
	logger.Infof("Shutting down cache daemon")
	_ = os.Remove(cfg.SocketPath)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openBackend(cfg config.Config) (cache.KV, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendBolt:
		_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
		s, err := cache.Open(cfg.DBPath, cache.Options{Bucket: cfg.Bucket})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendMemory:
		return cache.NewMemoryStore(), nopCloser{}, nil
	case config.BackendRedis:
		s, err := cache.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendPostgres:
		s, err := cache.NewDatabaseStore(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
