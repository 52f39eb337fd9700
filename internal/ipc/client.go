package ipc

import (
	"errors"
	"io"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"imgworker/internal/command"
)

// DialTimeout bounds connecting to a worker socket.
const DialTimeout = 2 * time.Second

// Client provides RPC access to a worker.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, DialTimeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Connect registers this client as an observer.
func (c *Client) Connect() (string, error) {
	var resp ConnectResponse
	if err := c.client.Call("Worker.Connect", ConnectRequest{}, &resp); err != nil {
		return "", err
	}
	return resp.Observer, nil
}

// Disconnect drops the observer registration.
func (c *Client) Disconnect(observer string) error {
	var resp DisconnectResponse
	return c.client.Call("Worker.Disconnect", DisconnectRequest{Observer: observer}, &resp)
}

// Send delivers a command message.
func (c *Client) Send(observer string, msg command.Message) error {
	var resp SendResponse
	return c.client.Call("Worker.Send", SendRequest{Observer: observer, Message: msg}, &resp)
}

// Events long-polls for events after since. A zero wait returns at once.
func (c *Client) Events(observer string, since uint64, limit int, wait time.Duration) (*EventsResponse, error) {
	var resp EventsResponse
	req := EventsRequest{
		Observer:   observer,
		Since:      since,
		Limit:      limit,
		WaitMillis: int(wait / time.Millisecond),
	}
	if err := c.client.Call("Worker.Events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Worker.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon to exit. The daemon may drop the connection
// before the reply is written; that still counts as success.
func (c *Client) Shutdown() error {
	var resp ShutdownResponse
	err := c.client.Call("Worker.Shutdown", ShutdownRequest{}, &resp)
	if errors.Is(err, rpc.ErrShutdown) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
