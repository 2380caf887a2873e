package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/sprout/internal/api"
	"github.com/kalambet/sprout/internal/config"
	"github.com/kalambet/sprout/internal/filestore"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestListFiles_SendsToken(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/files": `{"files":[{"name":"a.png","size_bytes":2048,"size":2,"date":"2026-01-02 03:04:05","type":"image","subfolder":"images"}]}`,
	})

	files, err := listFiles(ctx, ts.client())
	if err != nil {
		t.Fatalf("listFiles: %v", err)
	}
	if len(files) != 1 || files[0].Name != "a.png" || files[0].Size != 2048 {
		t.Fatalf("files = %+v", files)
	}
	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("Authorization = %q", ts.requests[0].Auth)
	}
}

func TestRenameFile_Request(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /rename": `{"status":"ok","new_sub":"text","new_name":"notes.txt"}`,
	})

	resp, err := renameFile(ctx, ts.client(), filestore.Ref{Sub: "docs", Name: "notes"}, "notes.txt")
	if err != nil {
		t.Fatalf("renameFile: %v", err)
	}
	if resp.NewSub != "text" || resp.NewName != "notes.txt" {
		t.Errorf("response = %+v", resp)
	}

	var sent api.RenameRequest
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent != (api.RenameRequest{OldName: "notes", NewName: "notes.txt", Sub: "docs"}) {
		t.Errorf("sent = %+v", sent)
	}
}

func TestDeleteFiles_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)

	_, err := deleteFiles(ctx, ts.client(), []filestore.Ref{{Sub: "images", Name: "a.png"}})
	if err == nil {
		t.Fatal("expected error on 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %v, want status code", err)
	}
}

func TestDeleteFiles_MissingCount(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /delete": `{"status":"ok"}`,
	})

	if _, err := deleteFiles(ctx, ts.client(), nil); err == nil {
		t.Fatal("expected error when deleted count is absent")
	}
}

func TestClient_AgainstFilesHandler(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	srv := httptest.NewServer(api.NewFilesHandler(api.FilesDeps{Store: store, Token: "secret"}))
	t.Cleanup(srv.Close)
	client := &apiClient{baseURL: srv.URL, token: "secret", httpClient: srv.Client()}

	dir := t.TempDir()
	photo := filepath.Join(dir, "photo.jpg")
	notes := filepath.Join(dir, "notes")
	if err := os.WriteFile(photo, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(notes, []byte("water on sundays"), 0o644); err != nil {
		t.Fatal(err)
	}

	stored, err := uploadFiles(ctx, client, []string{photo, notes, photo})
	if err != nil {
		t.Fatalf("uploadFiles: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("stored %d files, want 3", len(stored))
	}
	if stored[0].Subfolder != "images" || stored[1].Subfolder != "docs" {
		t.Errorf("subfolders = %s, %s", stored[0].Subfolder, stored[1].Subfolder)
	}
	if stored[2].Name != "photo(1).jpg" {
		t.Errorf("second photo name = %q, want photo(1).jpg", stored[2].Name)
	}

	resp, err := renameFile(ctx, client, filestore.Ref{Sub: "docs", Name: "notes"}, "notes.txt")
	if err != nil {
		t.Fatalf("renameFile: %v", err)
	}
	if resp.NewSub != "text" {
		t.Errorf("renamed into %q, want text", resp.NewSub)
	}

	n, err := deleteFiles(ctx, client, []filestore.Ref{
		{Sub: "images", Name: "photo.jpg"},
		{Sub: "images", Name: "missing.jpg"},
	})
	if err != nil {
		t.Fatalf("deleteFiles: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}

	files, err := listFiles(ctx, client)
	if err != nil {
		t.Fatalf("listFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("listed %d files, want 2", len(files))
	}
	if got := filterFiles(files, filestore.CategoryText); len(got) != 1 || got[0].Name != "notes.txt" {
		t.Errorf("text files = %+v", got)
	}

	client.token = "wrong"
	if _, err := listFiles(ctx, client); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 with a wrong token, got %v", err)
	}
}

func TestUpload_RejectsDirectory(t *testing.T) {
	c := &apiClient{baseURL: "http://127.0.0.1:1", httpClient: http.DefaultClient}
	if _, err := c.upload(ctx, []string{t.TempDir()}); err == nil {
		t.Fatal("expected error uploading a directory")
	}
}

func TestParseRef(t *testing.T) {
	ref, err := parseRef("images/a b.png")
	if err != nil {
		t.Fatalf("parseRef: %v", err)
	}
	if ref.Sub != "images" || ref.Name != "a b.png" {
		t.Errorf("ref = %+v", ref)
	}

	for _, bad := range []string{"", "images", "images/", "/a.png", "a/b/c"} {
		if _, err := parseRef(bad); err == nil {
			t.Errorf("parseRef(%q) should fail", bad)
		}
	}
}

func TestWriteFileTable(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	var buf bytes.Buffer
	writeFileTable(&buf, []filestore.File{{Name: "a.png", Type: filestore.CategoryImage, Subfolder: "images", Size: 1536, Date: "2026-01-02 03:04:05"}})
	out := buf.String()
	for _, want := range []string{"NAME", "a.png", "images", "1.5 KiB", "2026-01-02 03:04:05"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestColorize(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = false
	if got := colorize(colorRed, "x"); got != colorRed+"x"+colorReset {
		t.Errorf("colorize = %q", got)
	}
	noColor = true
	if got := colorize(colorRed, "x"); got != "x" {
		t.Errorf("colorize with noColor = %q", got)
	}
}

func TestPrintHelpersWriteToStderr(t *testing.T) {
	oldOut, oldColor := stderr, noColor
	var buf bytes.Buffer
	stderr, noColor = &buf, true
	defer func() { stderr, noColor = oldOut, oldColor }()

	printSuccess("stored %d", 2)
	printWarning("careful")
	if got := buf.String(); got != "✓ stored 2\n⚠ careful\n" {
		t.Errorf("output = %q", got)
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.n); got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestPIDFileRoundTrip(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested"), serviceFiles)
	if filepath.Base(path) != "sprout-files.pid" {
		t.Errorf("pid file name = %q", filepath.Base(path))
	}
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("pid file still present: %v", err)
	}
}

func TestLocalURL(t *testing.T) {
	var cfg config.Config
	cfg.Server.Host = "0.0.0.0"
	if got := localURL(cfg, 5001); got != "http://127.0.0.1:5001" {
		t.Errorf("localURL = %q", got)
	}
	cfg.Server.Host = "example.local"
	if got := localURL(cfg, 5000); got != "http://example.local:5000" {
		t.Errorf("localURL = %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	if got := parseLogLevel("debug").String(); got != "DEBUG" {
		t.Errorf("debug = %s", got)
	}
	if got := parseLogLevel("nonsense").String(); got != "INFO" {
		t.Errorf("fallback = %s", got)
	}
}

func TestStopCommandArgs(t *testing.T) {
	if err := stopCmd.Args(stopCmd, []string{"care"}); err != nil {
		t.Errorf("care should be accepted: %v", err)
	}
	if err := stopCmd.Args(stopCmd, []string{"garden"}); err == nil {
		t.Error("unknown service should be rejected")
	}
	if err := stopCmd.Args(stopCmd, nil); err == nil {
		t.Error("missing service should be rejected")
	}
}

func TestSetSecretCommandArgs(t *testing.T) {
	if err := configSetSecretCmd.Args(configSetSecretCmd, []string{"completion.api_key"}); err != nil {
		t.Errorf("completion.api_key should be accepted: %v", err)
	}
	if err := configSetSecretCmd.Args(configSetSecretCmd, []string{"server.host"}); err == nil {
		t.Error("non-secret key should be rejected")
	}
}
