// Command gptbpe encodes and decodes text with the GPT-2 byte-level BPE.
//
//	gptbpe fetch   [-dir testdata/gpt2]
//	gptbpe encode  [-html] [-json] [-mcp URL] [text...]
//	gptbpe decode  [-mcp URL] [id...]
//	gptbpe count   [-html] [-mcp URL] [text...]
//	gptbpe tokenize [text...]
//	gptbpe chunk   [-max 256] [-overlap 32] [text...]
//	gptbpe batch   < lines
//	gptbpe publish -to redis|mongo|postgres
//
// Text is read from stdin when no argument is given. Table locations come from
// GPTBPE_* variables (a .env file is honoured) and can be overridden by flags.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sweetpotato0/gptbpe/config"
	"github.com/sweetpotato0/gptbpe/contrib/source/backend"
	"github.com/sweetpotato0/gptbpe/pkg/logging"
	"github.com/sweetpotato0/gptbpe/pkg/telemetry"
	"github.com/sweetpotato0/gptbpe/tokenizer"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error
}

var commands = []command{
	{"fetch", "download GPT-2 vocab.json and merges.txt", runFetch},
	{"encode", "print the token ids of a text", runEncode},
	{"decode", "print the text of token ids", runDecode},
	{"count", "print the number of tokens of a text", runCount},
	{"tokenize", "print segmentation pieces with their ids as JSON", runTokenize},
	{"chunk", "split a text into token windows (JSON lines)", runChunk},
	{"batch", "encode every stdin line concurrently (JSON lines)", runBatch},
	{"publish", "copy the configured tables into a database backend", runPublish},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" || args[0] == "--help" {
		usage(stderr)
		return 2
	}

	if _, err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "load .env: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "gptbpe",
		ServiceVersion: version,
		Disable:        !config.Bool("GPTBPE_TRACING", false),
	})
	if err != nil {
		fmt.Fprintf(stderr, "telemetry: %v\n", err)
		return 1
	}
	defer shutdown(context.Background())

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if err := c.run(ctx, args[1:], stdin, stdout); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 2
			}
			logging.WithComponent("cli").Debug("command failed", "command", c.name, "error", err)
			fmt.Fprintf(stderr, "gptbpe %s: %v\n", c.name, err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stderr, "gptbpe: unknown command %q\n\n", args[0])
	usage(stderr)
	return 2
}

const version = "0.1.0"

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: gptbpe <command> [flags] [args]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.summary)
	}
}

// tableFlags binds the table source flags onto fs, defaulting to cfg.
func tableFlags(fs *flag.FlagSet, cfg *config.TokenizerConfig) {
	fs.StringVar(&cfg.Source, "source", cfg.Source, "table source: file, tokenizer-json, redis, mongo or postgres")
	fs.StringVar(&cfg.VocabPath, "vocab", cfg.VocabPath, "path to vocab.json")
	fs.StringVar(&cfg.MergesPath, "merges", cfg.MergesPath, "path to merges.txt")
	fs.StringVar(&cfg.TokenizerPath, "tokenizer-json", cfg.TokenizerPath, "path to a HuggingFace tokenizer.json")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "reject merge tables that produce tokens missing from the vocabulary")
}

func loadTokenizer(ctx context.Context, cfg *config.TokenizerConfig) (*tokenizer.BPE, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return tokenizer.Load(ctx, b, b, tokenizer.OptionsFromConfig(cfg)...)
}

// inputText joins the positional arguments, or reads stdin when there are none.
func inputText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("gptbpe "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}
