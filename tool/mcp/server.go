// Package mcp exposes the tokenizer as Model Context Protocol tools and
// provides a small client for calling them.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/pkg/telemetry"
	"github.com/sweetpotato0/gptbpe/preprocess"
	"github.com/sweetpotato0/gptbpe/tokenizer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tool names.
const (
	ToolEncode      = "encode"
	ToolDecode      = "decode"
	ToolCountTokens = "count_tokens"
	ToolTokenize    = "tokenize"
)

// Version is advertised to MCP clients.
const Version = "0.1.0"

// Tokenizer is what the tools need from a tokenizer.
type Tokenizer interface {
	tokenizer.Tokenizer
	Tokenize(text string) ([]tokenizer.Piece, error)
}

var _ Tokenizer = (*tokenizer.BPE)(nil)

// EncodeResult is the JSON body of an encode response.
type EncodeResult struct {
	IDs   []int `json:"ids"`
	Count int   `json:"count"`
}

// CountResult is the JSON body of a count_tokens response.
type CountResult struct {
	Count int `json:"count"`
}

type tools struct {
	tok      Tokenizer
	maxBytes int
	maxIDs   int
	tracer   trace.Tracer
	logger   *slog.Logger
}

// ServerOption customises the tool server.
type ServerOption func(*tools)

// WithMaxTextBytes rejects text arguments longer than n bytes (default 0, unlimited).
func WithMaxTextBytes(n int) ServerOption {
	return func(t *tools) {
		t.maxBytes = n
	}
}

// WithMaxIDs rejects decode requests with more than n ids (default 0, unlimited).
func WithMaxIDs(n int) ServerOption {
	return func(t *tools) {
		t.maxIDs = n
	}
}

// WithServerLogger sets the logger used for request logging.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(t *tools) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewServer builds an MCP server with the encode, decode, count_tokens and tokenize tools.
func NewServer(name string, tok Tokenizer, opts ...ServerOption) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    name,
		Version: Version,
		Title:   "GPT-2 byte-level BPE tokenizer",
	}, nil)

	t := &tools{
		tok:    tok,
		tracer: telemetry.Tracer("gptbpe/mcp"),
		logger: logging.WithComponent("mcp"),
	}
	for _, opt := range opts {
		opt(t)
	}
	server.AddReceivingMiddleware(requestLogger(t.logger))

	t.addEncode(server)
	t.addDecode(server)
	t.addCountTokens(server)
	t.addTokenize(server)
	return server
}

func (t *tools) start(ctx context.Context, name string, attrs ...attribute.KeyValue) trace.Span {
	_, span := t.tracer.Start(ctx, "mcp."+name, trace.WithAttributes(attrs...))
	return span
}

func jsonResult(v any) (*sdkmcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: string(data)},
		},
	}, nil
}

type textArgs struct {
	Text string `json:"text" jsonschema:"Text to process"`
	HTML bool   `json:"html,omitempty" jsonschema:"Treat text as HTML and extract its readable content first"`
}

func (t *tools) addEncode(server *sdkmcp.Server) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        ToolEncode,
		Description: "Encode text into GPT-2 token ids",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a textArgs) (res *sdkmcp.CallToolResult, _ any, err error) {
		span := t.start(ctx, ToolEncode, attribute.Int("text.length", len(a.Text)), attribute.Bool("text.html", a.HTML))
		defer func() { telemetry.End(span, err) }()

		if err = checkSize(t.maxBytes, len(a.Text)); err != nil {
			return nil, nil, err
		}
		text, err := preprocess.Prepare(a.Text, a.HTML)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to extract text from html: %w", err)
		}
		ids, err := t.tok.Encode(text)
		if err != nil {
			t.logger.Warn("encode failed", "error", err)
			return nil, nil, err
		}
		span.SetAttributes(attribute.Int("token.count", len(ids)))
		res, err = jsonResult(EncodeResult{IDs: ids, Count: len(ids)})
		return res, nil, err
	})
}

func (t *tools) addDecode(server *sdkmcp.Server) {
	type args struct {
		IDs []int `json:"ids" jsonschema:"Token ids to decode"`
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        ToolDecode,
		Description: "Decode GPT-2 token ids back into text",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (_ *sdkmcp.CallToolResult, _ any, err error) {
		span := t.start(ctx, ToolDecode, attribute.Int("token.count", len(a.IDs)))
		defer func() { telemetry.End(span, err) }()

		if err = checkSize(t.maxIDs, len(a.IDs)); err != nil {
			return nil, nil, err
		}
		text, err := t.tok.Decode(a.IDs)
		if err != nil {
			t.logger.Warn("decode failed", "error", err)
			return nil, nil, err
		}
		return &sdkmcp.CallToolResult{
			Content: []sdkmcp.Content{
				&sdkmcp.TextContent{Text: text},
			},
		}, nil, nil
	})
}

func (t *tools) addCountTokens(server *sdkmcp.Server) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        ToolCountTokens,
		Description: "Count the GPT-2 tokens of a text",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a textArgs) (res *sdkmcp.CallToolResult, _ any, err error) {
		span := t.start(ctx, ToolCountTokens, attribute.Int("text.length", len(a.Text)))
		defer func() { telemetry.End(span, err) }()

		if err = checkSize(t.maxBytes, len(a.Text)); err != nil {
			return nil, nil, err
		}
		text, err := preprocess.Prepare(a.Text, a.HTML)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to extract text from html: %w", err)
		}
		n, err := t.tok.CountTokens(text)
		if err != nil {
			return nil, nil, err
		}
		span.SetAttributes(attribute.Int("token.count", n))
		res, err = jsonResult(CountResult{Count: n})
		return res, nil, err
	})
}

func (t *tools) addTokenize(server *sdkmcp.Server) {
	type args struct {
		Text string `json:"text" jsonschema:"Text to split into pieces"`
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        ToolTokenize,
		Description: "Split text into segmentation pieces with the token ids of each",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, a args) (res *sdkmcp.CallToolResult, _ any, err error) {
		span := t.start(ctx, ToolTokenize, attribute.Int("text.length", len(a.Text)))
		defer func() { telemetry.End(span, err) }()

		if err = checkSize(t.maxBytes, len(a.Text)); err != nil {
			return nil, nil, err
		}
		pieces, err := t.tok.Tokenize(a.Text)
		if err != nil {
			return nil, nil, err
		}
		if pieces == nil {
			pieces = []tokenizer.Piece{}
		}
		res, err = jsonResult(pieces)
		return res, nil, err
	})
}
