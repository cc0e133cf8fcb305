// Command gptbpe-mcp serves the tokenizer tools over MCP, on stdio by default
// or as a streamable HTTP endpoint with -http.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/gptbpe/config"
	"github.com/sweetpotato0/gptbpe/contrib/source/backend"
	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/pkg/telemetry"
	"github.com/sweetpotato0/gptbpe/tokenizer"
	"github.com/sweetpotato0/gptbpe/tool/mcp"
)

func main() {
	if err := run(); err != nil {
		logging.WithComponent("gptbpe-mcp").Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if _, err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg := config.TokenizerConfigFromEnv()

	httpAddr := flag.String("http", "", "serve streamable HTTP on this address (e.g. 127.0.0.1:8080) instead of stdio")
	path := flag.String("path", "/mcp", "HTTP path used for the MCP streamable endpoint")
	flag.StringVar(&cfg.Source, "source", cfg.Source, "table source: file, tokenizer-json, redis, mongo or postgres")
	flag.StringVar(&cfg.VocabPath, "vocab", cfg.VocabPath, "path to vocab.json")
	flag.StringVar(&cfg.MergesPath, "merges", cfg.MergesPath, "path to merges.txt")
	flag.StringVar(&cfg.TokenizerPath, "tokenizer-json", cfg.TokenizerPath, "path to a HuggingFace tokenizer.json")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "gptbpe-mcp",
		ServiceVersion: mcp.Version,
		Disable:        !config.Bool("GPTBPE_TRACING", false),
	})
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	src, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	tok, err := tokenizer.Load(ctx, src, src, tokenizer.OptionsFromConfig(cfg)...)
	src.Close()
	if err != nil {
		return err
	}

	server := mcp.NewServer("gptbpe", tok,
		mcp.WithMaxTextBytes(config.Int("GPTBPE_MCP_MAX_TEXT_BYTES", 1<<20)),
		mcp.WithMaxIDs(config.Int("GPTBPE_MCP_MAX_IDS", 1<<18)),
	)
	logger := logging.WithComponent("gptbpe-mcp")

	if *httpAddr == "" {
		logger.Info("serving MCP on stdio", "vocab_size", tok.Vocabulary().Len())
		return server.Run(ctx, &sdkmcp.StdioTransport{})
	}

	handler := sdkmcp.NewStreamableHTTPHandler(func(r *http.Request) *sdkmcp.Server {
		if r.URL.Path == *path {
			return server
		}
		return nil
	}, nil)

	mux := http.NewServeMux()
	mux.Handle(*path, handler)
	srv := &http.Server{Addr: *httpAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving MCP streamable endpoint", "addr", "http://"+*httpAddr+*path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server stopped: %w", err)
	}
	return nil
}
