package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
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

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start resumes the station loop.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartRequest, StartResponse](c, "Start", StartRequest{})
}

// Stop halts the station loop.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// Login starts an operator session.
func (c *Client) Login(username, password string) (*LoginResponse, error) {
	return call[LoginRequest, LoginResponse](c, "Login", LoginRequest{Username: username, Password: password})
}

// Logout ends the operator session.
func (c *Client) Logout() (*LogoutResponse, error) {
	return call[LogoutRequest, LogoutResponse](c, "Logout", LogoutRequest{})
}

// SelectBoard switches the board type.
func (c *Client) SelectBoard(name string) (*BoardResponse, error) {
	return call[BoardRequest, BoardResponse](c, "SelectBoard", BoardRequest{Name: name})
}

// Boards lists configured board types.
func (c *Client) Boards() (*BoardsResponse, error) {
	return call[BoardsRequest, BoardsResponse](c, "Boards", BoardsRequest{})
}

// Sim applies a simulation control.
func (c *Client) Sim(action string) (*SimResponse, error) {
	return call[SimRequest, SimResponse](c, "Sim", SimRequest{Action: action})
}

// History returns stored cycles.
func (c *Client) History(req HistoryRequest) (*HistoryResponse, error) {
	return call[HistoryRequest, HistoryResponse](c, "History", req)
}

// Events returns buffered log events after a sequence number.
func (c *Client) Events(req EventsRequest) (*EventsResponse, error) {
	return call[EventsRequest, EventsResponse](c, "Events", req)
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailRequest, LogTailResponse](c, "LogTail", req)
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}

// Preflight runs environment checks in the daemon.
func (c *Client) Preflight() (*PreflightResponse, error) {
	return call[PreflightRequest, PreflightResponse](c, "Preflight", PreflightRequest{})
}
