package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sweetpotato0/gptbpe/pkg/logging"
)

const defaultFetchBase = "https://huggingface.co/openai-community/gpt2/resolve/main"

var fetchFiles = []string{"vocab.json", "merges.txt"}

func runFetch(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := newFlagSet("fetch")
	dir := fs.String("dir", filepath.Join("testdata", "gpt2"), "destination directory")
	base := fs.String("base", defaultFetchBase, "base URL holding vocab.json and merges.txt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := fetch(ctx, http.DefaultClient, *base, *dir); err != nil {
		return err
	}
	_, err := fmt.Fprintf(stdout, "done. files in %s\n", *dir)
	return err
}

func fetch(ctx context.Context, client *http.Client, base, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	logger := logging.WithComponent("fetch")
	for _, name := range fetchFiles {
		url := strings.TrimSuffix(base, "/") + "/" + name
		logger.Info("downloading", "url", url)
		if err := download(ctx, client, url, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// download writes to a temporary file and renames it, so an interrupted
// download never leaves a truncated table behind.
func download(ctx context.Context, client *http.Client, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	if n == 0 {
		return fmt.Errorf("download %s: got 0 bytes", url)
	}
	return os.Rename(tmp.Name(), destPath)
}
