package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Client implements KV over a Unix socket served by Serve.
type Client struct {
	socketPath string
	timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 500 * time.Millisecond}
}

// Ping dials the daemon once and reports whether it is reachable.
func (c *Client) Ping() error {
	conn, err := net.DialTimeout("unix", c.socketPath, 200*time.Millisecond)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) roundTrip(req Request) (Response, error) {
	var resp Response
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return resp, err
	}
	defer conn.Close()

	req.ID = uuid.NewString()
	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return resp, err
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, err
	}
	if resp.ID != req.ID {
		return resp, fmt.Errorf("cache: response id %q does not match request %q", resp.ID, req.ID)
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Get(key string) (string, error) {
	resp, err := c.roundTrip(Request{Op: OpGet, Key: key})
	if err != nil {
		return "", err
	}
	if !resp.Found {
		return "", ErrNotFound
	}
	return resp.Value, nil
}

func (c *Client) Set(key, value string) error {
	_, err := c.roundTrip(Request{Op: OpSet, Key: key, Value: value})
	return err
}

func (c *Client) Remove(key string) error {
	_, err := c.roundTrip(Request{Op: OpRemove, Key: key})
	return err
}

func (c *Client) Clear() error {
	_, err := c.roundTrip(Request{Op: OpClear})
	return err
}
