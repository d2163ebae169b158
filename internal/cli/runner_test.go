package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/g960059/boardd/internal/config"
	"github.com/g960059/boardd/internal/daemon"
	"github.com/g960059/boardd/internal/testutil"
)

func TestCreateBoardCallsAPI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/boards", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"schema_version":"v1","board_id":"4a9adf0b-1a43-4d74-9d5c-2f6a3b1c9e01"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	code := r.Run(context.Background(), []string{"create-board"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "4a9adf0b-1a43-4d74-9d5c-2f6a3b1c9e01") {
		t.Fatalf("expected board id in output, got: %s", out.String())
	}
}

func TestRenderJSONPrintsEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/boards/{board_id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-07-01T00:00:00Z","board":{"id":"4a9adf0b-1a43-4d74-9d5c-2f6a3b1c9e01","title":"Sprint","columns":[],"version":3}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	code := r.Run(context.Background(), []string{"render", "--board", "4a9adf0b-1a43-4d74-9d5c-2f6a3b1c9e01", "--json"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), `"title": "Sprint"`) {
		t.Fatalf("expected JSON render output, got: %s", out.String())
	}
}

func TestMissingRequiredFlagIsUsageError(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient("http://unused", &http.Client{}, out, errOut)
	code := r.Run(context.Background(), []string{"render"})
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "--board is required") {
		t.Fatalf("expected usage error, got: %s", errOut.String())
	}
}

func TestUnknownCommandPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient("http://unused", &http.Client{}, out, errOut)
	code := r.Run(context.Background(), []string{"frobnicate"})
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Fatalf("expected unknown command error, got: %s", errOut.String())
	}
}

func TestAPIErrorSurfacesCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/boards/{board_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"schema_version":"v1","generated_at":"2026-07-01T00:00:00Z","error":{"code":"E_REF_NOT_FOUND","message":"board not found"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
	code := r.Run(context.Background(), []string{"render", "--board", "4a9adf0b-1a43-4d74-9d5c-2f6a3b1c9e01"})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "E_REF_NOT_FOUND") {
		t.Fatalf("expected error code in stderr, got: %s", errOut.String())
	}
}

// End-to-end: the runner drives a real daemon handler over HTTP.
func TestRunnerAgainstDaemonHandler(t *testing.T) {
	boardApp, _ := testutil.NewApp(t)
	srv := httptest.NewServer(daemon.NewServer(config.DefaultConfig(), boardApp).Handler())
	defer srv.Close()

	run := func(args ...string) string {
		t.Helper()
		out := &bytes.Buffer{}
		errOut := &bytes.Buffer{}
		r := NewRunnerWithClient(srv.URL, srv.Client(), out, errOut)
		if code := r.Run(context.Background(), args); code != 0 {
			t.Fatalf("command %v: exit %d stderr=%s", args, code, errOut.String())
		}
		return out.String()
	}

	created := run("create-board")
	boardID := strings.TrimSpace(strings.TrimPrefix(created, "board created: "))

	run("edit-board-title", "--board", boardID, "--title", "Roadmap")
	added := run("add-column", "--board", boardID)
	columnID := strings.TrimSpace(strings.TrimPrefix(added, "column added: "))
	run("edit-column-title", "--board", boardID, "--column", columnID, "--title", "Next")

	rendered := run("render", "--board", boardID)
	if !strings.Contains(rendered, "Roadmap") || !strings.Contains(rendered, "Next") {
		t.Fatalf("unexpected render output: %s", rendered)
	}

	run("undo", "--board", boardID)
	rendered = run("render", "--board", boardID)
	if strings.Contains(rendered, "Next") {
		t.Fatalf("expected column title undone, got: %s", rendered)
	}

	run("redo", "--board", boardID)
	rendered = run("render", "--board", boardID)
	if !strings.Contains(rendered, "Next") {
		t.Fatalf("expected column title redone, got: %s", rendered)
	}
}
