package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
)

// Client connects to a running daemon via its Unix socket.
type Client struct {
	httpClient *http.Client
	socketPath string
	authToken  string
}

// NewClient creates a new daemon client. It reads the auth cookie
// automatically from the cookie file next to the socket.
func NewClient(socketPath, cookiePath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrDaemonNotRunning, socketPath)
	}

	token, err := os.ReadFile(cookiePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon cookie: %w", err)
	}

	return &Client{
		socketPath: socketPath,
		authToken:  strings.TrimSpace(string(token)),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}, nil
}

func (c *Client) do(method, path string, body io.Reader, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequest(method, "http://daemon"+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func (c *Client) doJSON(method, path string, body io.Reader, target any) error {
	data, status, err := c.do(method, path, body, nil)
	if err != nil {
		return err
	}

	if status >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("daemon: %s", errResp.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", status)
	}

	if target != nil {
		var raw struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if err := json.Unmarshal(raw.Data, target); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func (c *Client) doText(method, path string, body io.Reader) (string, error) {
	data, status, err := c.do(method, path, body, map[string]string{"Accept": "text/plain"})
	if err != nil {
		return "", err
	}

	if status >= 400 {
		var errResp ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return "", fmt.Errorf("daemon: %s", errResp.Error)
		}
		return "", fmt.Errorf("daemon returned HTTP %d", status)
	}

	return string(data), nil
}

// --- Query methods ---

func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.doJSON("GET", "/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) StatusText() (string, error) {
	return c.doText("GET", "/v1/status", nil)
}

func (c *Client) Peers() ([]PeerInfo, error) {
	var resp []PeerInfo
	if err := c.doJSON("GET", "/v1/peers", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) PeersText() (string, error) {
	return c.doText("GET", "/v1/peers", nil)
}

func (c *Client) Projects() ([]ProjectInfo, error) {
	var resp []ProjectInfo
	if err := c.doJSON("GET", "/v1/projects", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ProjectsText() (string, error) {
	return c.doText("GET", "/v1/projects", nil)
}

// --- Mutation methods ---

func (c *Client) Track(projId string) (*TrackResponse, error) {
	body, _ := json.Marshal(TrackRequest{ProjId: projId})
	var resp TrackResponse
	if err := c.doJSON("POST", "/v1/track", strings.NewReader(string(body)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Untrack(projId string) (*TrackResponse, error) {
	body, _ := json.Marshal(TrackRequest{ProjId: projId})
	var resp TrackResponse
	if err := c.doJSON("POST", "/v1/untrack", strings.NewReader(string(body)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Connect(addr string) error {
	body, _ := json.Marshal(ConnectRequest{Addr: addr})
	return c.doJSON("POST", "/v1/connect", strings.NewReader(string(body)), nil)
}

func (c *Client) Fetch(projId string) (*FetchResponse, error) {
	body, _ := json.Marshal(FetchRequest{ProjId: projId})
	var resp FetchResponse
	if err := c.doJSON("POST", "/v1/fetch", strings.NewReader(string(body)), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) FetchText(projId string) (string, error) {
	body, _ := json.Marshal(FetchRequest{ProjId: projId})
	return c.doText("POST", "/v1/fetch", strings.NewReader(string(body)))
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown() error {
	return c.doJSON("POST", "/v1/shutdown", nil, nil)
}
