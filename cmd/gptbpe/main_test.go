package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const (
	testVocab  = `{"h": 0, "e": 1, "l": 2, "o": 3, "he": 4, "ll": 5, "hell": 6, "hello": 7, "Ġ": 8, "Ġhello": 9}`
	testMerges = "#version: 0.2\nh e\nl l\nhe ll\nhell o\nĠ hello\n"
)

func writeTables(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	vocabPath := filepath.Join(dir, "vocab.json")
	mergesPath := filepath.Join(dir, "merges.txt")
	if err := os.WriteFile(vocabPath, []byte(testVocab), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(mergesPath, []byte(testMerges), 0o644); err != nil {
		t.Fatal(err)
	}
	return vocabPath, mergesPath
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, int) {
	t.Helper()
	t.Setenv("GPTBPE_SOURCE", "file")
	t.Setenv("GPTBPE_LOG_LEVEL", "error")
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestEncodeDecode(t *testing.T) {
	vocabPath, mergesPath := writeTables(t)

	out, errOut, code := runCLI(t, "", "encode", "-vocab", vocabPath, "-merges", mergesPath, "hello", "hello")
	if code != 0 {
		t.Fatalf("encode exit %d: %s", code, errOut)
	}
	if out != "7 9\n" {
		t.Errorf("encode output = %q, want %q", out, "7 9\n")
	}

	out, errOut, code = runCLI(t, "[7, 9]", "decode", "-vocab", vocabPath, "-merges", mergesPath)
	if code != 0 {
		t.Fatalf("decode exit %d: %s", code, errOut)
	}
	if out != "hello hello" {
		t.Errorf("decode output = %q", out)
	}

	_, _, code = runCLI(t, "", "decode", "-vocab", vocabPath, "-merges", mergesPath, "7", "42")
	if code != 1 {
		t.Errorf("decode of unknown id exit = %d, want 1", code)
	}
	out, _, code = runCLI(t, "", "decode", "-vocab", vocabPath, "-merges", mergesPath,
		"-unknown-id", "placeholder", "-placeholder", "?", "7", "42")
	if code != 0 || out != "hello?" {
		t.Errorf("decode with placeholder = %q, exit %d", out, code)
	}
}

func TestEncodeJSONFromStdin(t *testing.T) {
	vocabPath, mergesPath := writeTables(t)
	out, errOut, code := runCLI(t, "hello", "encode", "-json", "-vocab", vocabPath, "-merges", mergesPath)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var ids []int
	if err := json.Unmarshal([]byte(out), &ids); err != nil {
		t.Fatalf("output %q is not JSON: %v", out, err)
	}
	if !reflect.DeepEqual(ids, []int{7}) {
		t.Errorf("ids = %v", ids)
	}
}

func TestCountAndBatch(t *testing.T) {
	vocabPath, mergesPath := writeTables(t)

	out, errOut, code := runCLI(t, "", "count", "-vocab", vocabPath, "-merges", mergesPath, "hello hello")
	if code != 0 || out != "2\n" {
		t.Errorf("count = %q, exit %d: %s", out, code, errOut)
	}

	out, errOut, code = runCLI(t, "hello\nxyz\n hello\n", "batch", "-vocab", vocabPath, "-merges", mergesPath)
	if code != 0 {
		t.Fatalf("batch exit %d: %s", code, errOut)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("batch printed %d lines: %q", len(lines), out)
	}
	var first, second batchLine
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)
	if !reflect.DeepEqual(first.IDs, []int{7}) || first.Error != "" {
		t.Errorf("line 0 = %+v", first)
	}
	if second.Index != 1 || second.Error == "" {
		t.Errorf("line 1 = %+v, want an error", second)
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, _, code := runCLI(t, "", "frobnicate"); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
	if _, errOut, code := runCLI(t, ""); code != 2 || !strings.Contains(errOut, "usage") {
		t.Errorf("no-arg exit = %d, stderr %q", code, errOut)
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "1 2 3", want: []int{1, 2, 3}},
		{in: "[1, 2,3]\n", want: []int{1, 2, 3}},
		{in: "", want: []int{}},
		{in: "1 x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseIDs(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDs(%q) error = %v", tt.in, err)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseIDs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/vocab.json":
			w.Write([]byte(testVocab))
		case "/merges.txt":
			w.Write([]byte(testMerges))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "gpt2")
	if err := fetch(context.Background(), srv.Client(), srv.URL+"/", dir); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "merges.txt"))
	if err != nil || string(got) != testMerges {
		t.Errorf("merges.txt = %q, %v", got, err)
	}

	bad := httptest.NewServer(http.NotFoundHandler())
	defer bad.Close()
	if err := fetch(context.Background(), bad.Client(), bad.URL, t.TempDir()); err == nil {
		t.Error("expected error for 404")
	}
}
