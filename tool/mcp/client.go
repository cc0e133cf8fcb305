package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/gptbpe/tokenizer"
)

// ErrClientClosed is returned when the MCP client has been closed.
var ErrClientClosed = errors.New("mcp client closed")

// ToolError is returned when the MCP server reports an error response.
type ToolError struct {
	Name    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %s: %s", e.Name, e.Message)
}

// Client calls the tokenizer tools of a remote gptbpe MCP server.
type Client struct {
	session *sdkmcp.ClientSession

	mu     sync.Mutex
	closed bool
}

// Connect performs the initialization handshake over transport.
func Connect(ctx context.Context, transport sdkmcp.Transport) (*Client, error) {
	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "gptbpe-client",
		Version: Version,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect failed: %w", err)
	}
	return &Client{session: session}, nil
}

// NewStreamableClient connects to an MCP server over the streamable HTTP transport.
func NewStreamableClient(ctx context.Context, endpoint string) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("mcp: endpoint cannot be empty")
	}
	return Connect(ctx, &sdkmcp.StreamableClientTransport{Endpoint: endpoint})
}

// NewStdioClient launches an MCP server command and talks to it over stdio.
func NewStdioClient(ctx context.Context, command string, args ...string) (*Client, error) {
	if command == "" {
		return nil, errors.New("mcp: command cannot be empty")
	}
	return Connect(ctx, &sdkmcp.CommandTransport{Command: exec.Command(command, args...)})
}

// Close terminates the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.session.Close()
}

// ToolNames lists the tools the server exposes.
func (c *Client) ToolNames(ctx context.Context) ([]string, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	res, err := c.session.ListTools(ctx, &sdkmcp.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// CallTool invokes a remote MCP tool and returns the textual response.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.isClosed() {
		return "", ErrClientClosed
	}

	result, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", err
	}

	message := normalizeContent(result.Content)
	if result.IsError {
		if message == "" {
			message = "tool returned error without message"
		}
		return "", &ToolError{Name: name, Message: message}
	}
	return message, nil
}

// Encode calls the encode tool.
func (c *Client) Encode(ctx context.Context, text string, html bool) ([]int, error) {
	out, err := c.CallTool(ctx, ToolEncode, map[string]any{"text": text, "html": html})
	if err != nil {
		return nil, err
	}
	var res EncodeResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return nil, fmt.Errorf("failed to parse encode response: %w", err)
	}
	return res.IDs, nil
}

// Decode calls the decode tool.
func (c *Client) Decode(ctx context.Context, ids []int) (string, error) {
	if ids == nil {
		ids = []int{}
	}
	return c.CallTool(ctx, ToolDecode, map[string]any{"ids": ids})
}

// CountTokens calls the count_tokens tool.
func (c *Client) CountTokens(ctx context.Context, text string) (int, error) {
	out, err := c.CallTool(ctx, ToolCountTokens, map[string]any{"text": text})
	if err != nil {
		return 0, err
	}
	var res CountResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return 0, fmt.Errorf("failed to parse count_tokens response: %w", err)
	}
	return res.Count, nil
}

// Tokenize calls the tokenize tool.
func (c *Client) Tokenize(ctx context.Context, text string) ([]tokenizer.Piece, error) {
	out, err := c.CallTool(ctx, ToolTokenize, map[string]any{"text": text})
	if err != nil {
		return nil, err
	}
	var pieces []tokenizer.Piece
	if err := json.Unmarshal([]byte(out), &pieces); err != nil {
		return nil, fmt.Errorf("failed to parse tokenize response: %w", err)
	}
	return pieces, nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// normalizeContent joins text content without trimming, so decoded
// whitespace survives; other content kinds are rendered as JSON.
func normalizeContent(content []sdkmcp.Content) string {
	if len(content) == 0 {
		return ""
	}

	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := c.MarshalJSON(); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}
