package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/southadmin/localvault/internal/logger"
)

// Serve accepts connections on l and answers requests against kv until ctx
// is cancelled. The listener is closed on return. Serve waits for requests
// already being handled to be answered before it returns. Idle connections
// are closed. If l is closed by someone else, Serve returns an error.
func Serve(ctx context.Context, l net.Listener, kv KV) error {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	var conns errgroup.Group
	for {
		conn, err := l.Accept()
		if err == nil {
			conns.Go(func() error {
				HandleConn(ctx, conn, kv)
				return nil
			})
			continue
		}
		if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
			logger.Warnf("accept failed: %v", err)
			continue
		}
		if ctx.Err() == nil {
			err = fmt.Errorf("cache: listener closed: %w", err)
		} else {
			err = nil
		}
		cancel()
		_ = conns.Wait()
		return err
	}
}

// HandleConn serves requests on conn until the peer hangs up or ctx is
// cancelled. A request that was already read is still answered.
func HandleConn(ctx context.Context, conn net.Conn, kv KV) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		_ = enc.Encode(dispatch(kv, req))
	}
}

func dispatch(kv KV, req Request) Response {
	resp := Response{ID: req.ID}
	var err error
	switch req.Op {
	case OpGet:
		resp.Value, err = kv.Get(req.Key)
		if errors.Is(err, ErrNotFound) {
			resp.OK = true
			return resp
		}
		resp.Found = err == nil
	case OpSet:
		if req.Key == "" {
			err = errors.New("cache: empty key")
			break
		}
		err = kv.Set(req.Key, req.Value)
	case OpRemove:
		err = kv.Remove(req.Key)
	case OpClear:
		logger.Infof("clearing backing store")
		err = kv.Clear()
	default:
		err = errors.New("unknown op")
	}
	if err != nil {
		logger.Errorf("%s %q failed: %v", req.Op, req.Key, err)
		resp.Error = err.Error()
		resp.Value = ""
		return resp
	}
	resp.OK = true
	return resp
}
