package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sweetpotato0/gptbpe/chunking"
	"github.com/sweetpotato0/gptbpe/config"
	"github.com/sweetpotato0/gptbpe/contrib/source/backend"
	"github.com/sweetpotato0/gptbpe/preprocess"
	"github.com/sweetpotato0/gptbpe/runner"
	"github.com/sweetpotato0/gptbpe/source"
	"github.com/sweetpotato0/gptbpe/tool/mcp"
)

func runEncode(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg := config.TokenizerConfigFromEnv()
	fs := newFlagSet("encode")
	tableFlags(fs, cfg)
	html := fs.Bool("html", false, "extract readable text from HTML input first")
	asJSON := fs.Bool("json", false, "print a JSON array instead of space separated ids")
	endpoint := fs.String("mcp", "", "encode through a gptbpe MCP server at this streamable HTTP endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := inputText(fs.Args(), stdin)
	if err != nil {
		return err
	}

	var ids []int
	if *endpoint != "" {
		client, err := mcp.NewStreamableClient(ctx, *endpoint)
		if err != nil {
			return err
		}
		defer client.Close()
		if ids, err = client.Encode(ctx, text, *html); err != nil {
			return err
		}
	} else {
		if text, err = preprocess.Prepare(text, *html); err != nil {
			return err
		}
		tok, err := loadTokenizer(ctx, cfg)
		if err != nil {
			return err
		}
		if ids, err = tok.Encode(text); err != nil {
			return err
		}
	}

	if *asJSON {
		return json.NewEncoder(stdout).Encode(ids)
	}
	_, err = fmt.Fprintln(stdout, formatIDs(ids))
	return err
}

func runDecode(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg := config.TokenizerConfigFromEnv()
	fs := newFlagSet("decode")
	tableFlags(fs, cfg)
	fs.StringVar(&cfg.UnknownID, "unknown-id", cfg.UnknownID, "unknown id policy: fail or placeholder")
	fs.StringVar(&cfg.Placeholder, "placeholder", cfg.Placeholder, "text emitted for unknown ids under the placeholder policy")
	endpoint := fs.String("mcp", "", "decode through a gptbpe MCP server at this streamable HTTP endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}

	raw, err := inputText(fs.Args(), stdin)
	if err != nil {
		return err
	}
	ids, err := parseIDs(raw)
	if err != nil {
		return err
	}

	if *endpoint != "" {
		client, err := mcp.NewStreamableClient(ctx, *endpoint)
		if err != nil {
			return err
		}
		defer client.Close()
		text, err := client.Decode(ctx, ids)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, text)
		return err
	}

	tok, err := loadTokenizer(ctx, cfg)
	if err != nil {
		return err
	}
	b, err := tok.DecodeBytes(ids)
	if err != nil {
		return err
	}
	_, err = stdout.Write(b)
	return err
}

func runCount(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg := config.TokenizerConfigFromEnv()
	fs := newFlagSet("count")
	tableFlags(fs, cfg)
	html := fs.Bool("html", false, "extract readable text from HTML input first")
	endpoint := fs.String("mcp", "", "count through a gptbpe MCP server at this streamable HTTP endpoint")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := inputText(fs.Args(), stdin)
	if err != nil {
		return err
	}
	if text, err = preprocess.Prepare(text, *html); err != nil {
		return err
	}

	var n int
	if *endpoint != "" {
		client, err := mcp.NewStreamableClient(ctx, *endpoint)
		if err != nil {
			return err
		}
		defer client.Close()
		if n, err = client.CountTokens(ctx, text); err != nil {
			return err
		}
	} else {
		tok, err := loadTokenizer(ctx, cfg)
		if err != nil {
			return err
		}
		if n, err = tok.CountTokens(text); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(stdout, n)
	return err
}

func runTokenize(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg := config.TokenizerConfigFromEnv()
	fs := newFlagSet("tokenize")
	tableFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := inputText(fs.Args(), stdin)
	if err != nil {
		return err
	}
	tok, err := loadTokenizer(ctx, cfg)
	if err != nil {
		return err
	}
	pieces, err := tok.Tokenize(text)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	for _, p := range pieces {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	return nil
}

func runChunk(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg := config.TokenizerConfigFromEnv()
	fs := newFlagSet("chunk")
	tableFlags(fs, cfg)
	maxTokens := fs.Int("max", 256, "maximum tokens per chunk")
	overlap := fs.Int("overlap", 32, "tokens shared by consecutive chunks")
	html := fs.Bool("html", false, "extract readable text from HTML input first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	text, err := inputText(fs.Args(), stdin)
	if err != nil {
		return err
	}
	if text, err = preprocess.Prepare(text, *html); err != nil {
		return err
	}
	tok, err := loadTokenizer(ctx, cfg)
	if err != nil {
		return err
	}
	ch, err := chunking.New(tok, chunking.WithMaxTokens(*maxTokens), chunking.WithOverlapTokens(*overlap))
	if err != nil {
		return err
	}
	chunks, err := ch.Chunk(ctx, text)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return err
		}
	}
	return nil
}

type batchLine struct {
	Index int    `json:"index"`
	IDs   []int  `json:"ids,omitempty"`
	Error string `json:"error,omitempty"`
}

func runBatch(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg := config.TokenizerConfigFromEnv()
	fs := newFlagSet("batch")
	tableFlags(fs, cfg)
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "maximum concurrent encodes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := config.ValidateRunnerConfig(cfg.Concurrency); err != nil {
		return err
	}

	var lines []string
	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	tok, err := loadTokenizer(ctx, cfg)
	if err != nil {
		return err
	}
	r := runner.New(tok, cfg.Concurrency)

	enc := json.NewEncoder(stdout)
	for _, res := range r.EncodeBatch(ctx, lines) {
		line := batchLine{Index: res.Index, IDs: res.Value}
		if res.Error != nil {
			line.Error = res.Error.Error()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func runPublish(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cfg := config.TokenizerConfigFromEnv()
	fs := newFlagSet("publish")
	tableFlags(fs, cfg)
	to := fs.String("to", "", "destination backend: redis, mongo or postgres")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	src, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	v, m, err := source.Load(ctx, src, src)
	if err != nil {
		return err
	}

	dst, err := backend.OpenStore(ctx, *to)
	if err != nil {
		return err
	}
	defer dst.Close()
	if err := dst.Store(ctx, v, m); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "published %d tokens and %d merges to %s\n", v.Len(), m.Len(), *to)
	return err
}

func formatIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}

// parseIDs accepts ids separated by whitespace or commas, optionally wrapped in [ ].
func parseIDs(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
