package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	neturl "net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/enginefarm/unreal-adaptor/internal/action"
	"github.com/enginefarm/unreal-adaptor/internal/buildinfo"
)

const (
	// DefaultTimeout is the per-request timeout of the engine-side client.
	DefaultTimeout = 30 * time.Second

	actionIDHeader = "X-Action-Id"
	baseURL        = "http://adaptor"
)

// Client talks to a Server from inside the engine subprocess.
type Client struct {
	socketPath string
	httpClient *http.Client
}

// NewClient creates a client for the server listening on socketPath.
func NewClient(socketPath string) *Client {
	dialer := &net.Dialer{}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
		DisableKeepAlives: true,
	}

	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(transport), Timeout: DefaultTimeout},
	}
}

// SocketPath returns the socket this client connects to.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// NextAction requests the next queued action. It returns nil, nil when the
// queue is empty.
func (c *Client) NextAction(ctx context.Context) (*action.Action, error) {
	resp, err := c.get(ctx, "/action")
	if err != nil {
		return nil, fmt.Errorf("failed to request action: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus("request action", resp.StatusCode, resp.Body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	var a action.Action
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return nil, fmt.Errorf("failed to parse action: %w", err)
	}

	return &a, nil
}

// MapPath maps path with the session's path mapping rules.
func (c *Client) MapPath(ctx context.Context, path string) (string, error) {
	resp, err := c.get(ctx, "/path_mapping?path="+neturl.QueryEscape(path))
	if err != nil {
		return "", fmt.Errorf("failed to map path: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", unexpectedStatus("map path", resp.StatusCode, resp.Body)
	}

	var out pathMappingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse path mapping: %w", err)
	}

	return out.Path, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", "unreal-adaptor/"+buildinfo.Version)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// unexpectedStatus creates a formatted error from an unexpected HTTP status code.
func unexpectedStatus(operation string, statusCode int, body io.Reader) error {
	respBody, readErr := io.ReadAll(body)
	if readErr != nil {
		return fmt.Errorf("%s failed with status %d (failed to read body: %v)", operation, statusCode, readErr)
	}

	return fmt.Errorf("%s failed with status %d: %s", operation, statusCode, string(bytes.TrimSpace(respBody)))
}
