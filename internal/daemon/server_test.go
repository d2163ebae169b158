package daemon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/g960059/boardd/internal/api"
	"github.com/g960059/boardd/internal/config"
	"github.com/g960059/boardd/internal/testutil"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	boardApp, _ := testutil.NewApp(t)
	srv := httptest.NewServer(NewServer(config.DefaultConfig(), boardApp).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, into any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if into != nil {
		if err := json.Unmarshal(payload, into); err != nil {
			t.Fatalf("decode response %s: %v", payload, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	var resp api.HealthResponse
	status := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok, got %q", resp.Status)
	}
}

func TestBoardLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	var created api.BoardCreatedResponse
	status := doJSON(t, client, http.MethodPost, srv.URL+"/v1/boards", nil, &created)
	if status != http.StatusCreated {
		t.Fatalf("create board: expected 201, got %d", status)
	}
	boardURL := srv.URL + "/v1/boards/" + created.BoardID

	status = doJSON(t, client, http.MethodPut, boardURL+"/title", api.EditTitleRequest{Title: "Sprint"}, nil)
	if status != http.StatusOK {
		t.Fatalf("edit title: expected 200, got %d", status)
	}

	var column api.ColumnCreatedResponse
	status = doJSON(t, client, http.MethodPost, boardURL+"/columns", nil, &column)
	if status != http.StatusCreated {
		t.Fatalf("add column: expected 201, got %d", status)
	}
	columnURL := boardURL + "/columns/" + column.ColumnID

	status = doJSON(t, client, http.MethodPut, columnURL+"/title", api.EditTitleRequest{Title: "To Do"}, nil)
	if status != http.StatusOK {
		t.Fatalf("edit column title: expected 200, got %d", status)
	}

	var card api.CardCreatedResponse
	status = doJSON(t, client, http.MethodPost, columnURL+"/cards", nil, &card)
	if status != http.StatusCreated {
		t.Fatalf("add card: expected 201, got %d", status)
	}
	cardURL := columnURL + "/cards/" + card.CardID
	status = doJSON(t, client, http.MethodPut, cardURL+"/title", api.EditTitleRequest{Title: "write docs"}, nil)
	if status != http.StatusOK {
		t.Fatalf("edit card title: expected 200, got %d", status)
	}

	var rendered api.BoardEnvelope
	status = doJSON(t, client, http.MethodGet, boardURL, nil, &rendered)
	if status != http.StatusOK {
		t.Fatalf("render: expected 200, got %d", status)
	}
	if rendered.Board.Title != "Sprint" {
		t.Fatalf("expected board title Sprint, got %q", rendered.Board.Title)
	}
	if len(rendered.Board.Columns) != 1 || rendered.Board.Columns[0].Title != "To Do" {
		t.Fatalf("unexpected columns: %+v", rendered.Board.Columns)
	}
	if len(rendered.Board.Columns[0].Cards) != 1 || rendered.Board.Columns[0].Cards[0].Title != "write docs" {
		t.Fatalf("unexpected cards: %+v", rendered.Board.Columns[0].Cards)
	}
}

func TestUndoRedoOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	var created api.BoardCreatedResponse
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/boards", nil, &created)
	boardURL := srv.URL + "/v1/boards/" + created.BoardID

	for i := 1; i <= 3; i++ {
		doJSON(t, client, http.MethodPut, boardURL+"/title", api.EditTitleRequest{Title: fmt.Sprintf("T%d", i)}, nil)
	}

	status := doJSON(t, client, http.MethodPost, boardURL+"/undo", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("undo: expected 200, got %d", status)
	}
	var rendered api.BoardEnvelope
	doJSON(t, client, http.MethodGet, boardURL, nil, &rendered)
	if rendered.Board.Title != "T2" {
		t.Fatalf("expected T2 after undo, got %q", rendered.Board.Title)
	}

	status = doJSON(t, client, http.MethodPost, boardURL+"/redo", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("redo: expected 200, got %d", status)
	}
	doJSON(t, client, http.MethodGet, boardURL, nil, &rendered)
	if rendered.Board.Title != "T3" {
		t.Fatalf("expected T3 after redo, got %q", rendered.Board.Title)
	}
}

func TestCrossColumnMoveOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	var created api.BoardCreatedResponse
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/boards", nil, &created)
	boardURL := srv.URL + "/v1/boards/" + created.BoardID

	var colA, colB api.ColumnCreatedResponse
	doJSON(t, client, http.MethodPost, boardURL+"/columns", nil, &colA)
	doJSON(t, client, http.MethodPost, boardURL+"/columns", nil, &colB)
	var card api.CardCreatedResponse
	doJSON(t, client, http.MethodPost, boardURL+"/columns/"+colA.ColumnID+"/cards", nil, &card)

	status := doJSON(t, client, http.MethodPut,
		boardURL+"/columns/"+colA.ColumnID+"/cards/"+card.CardID+"/move",
		api.MoveCardRequest{ToColumnID: colB.ColumnID, NewIndex: 0}, nil)
	if status != http.StatusOK {
		t.Fatalf("move card: expected 200, got %d", status)
	}

	var rendered api.BoardEnvelope
	doJSON(t, client, http.MethodGet, boardURL, nil, &rendered)
	if len(rendered.Board.Columns[0].Cards) != 0 {
		t.Fatalf("expected source column empty, got %+v", rendered.Board.Columns[0].Cards)
	}
	if len(rendered.Board.Columns[1].Cards) != 1 || rendered.Board.Columns[1].Cards[0].ID != card.CardID {
		t.Fatalf("expected card in target column, got %+v", rendered.Board.Columns[1].Cards)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	var errResp api.ErrorResponse
	status := doJSON(t, client, http.MethodGet, srv.URL+"/v1/boards/1f1ec51c-9b7d-4c8e-8f3a-000000000000", nil, &errResp)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown board, got %d", status)
	}
	if errResp.Error.Code != "E_REF_NOT_FOUND" {
		t.Fatalf("expected E_REF_NOT_FOUND, got %q", errResp.Error.Code)
	}

	status = doJSON(t, client, http.MethodGet, srv.URL+"/v1/boards/not-a-uuid", nil, &errResp)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", status)
	}
	if errResp.Error.Code != "E_REF_INVALID" {
		t.Fatalf("expected E_REF_INVALID, got %q", errResp.Error.Code)
	}

	var created api.BoardCreatedResponse
	doJSON(t, client, http.MethodPost, srv.URL+"/v1/boards", nil, &created)
	status = doJSON(t, client, http.MethodDelete,
		srv.URL+"/v1/boards/"+created.BoardID+"/columns/1f1ec51c-9b7d-4c8e-8f3a-000000000000", nil, &errResp)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for missing column, got %d", status)
	}
}
