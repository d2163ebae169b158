// Package appclient is the typed HTTP client the CLI uses to talk to boardd
// over its unix socket.
package appclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/g960059/boardd/internal/api"
)

type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
}

const defaultUnaryTimeout = 10 * time.Second

func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewWithClient("http://unix", &http.Client{Transport: transport})
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	if code != "" && message != "" {
		return fmt.Sprintf("%s: %s", code, message)
	}
	if code != "" {
		return code
	}
	if message != "" {
		return message
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var resp api.HealthResponse
	err := c.request(ctx, http.MethodGet, "/v1/health", nil, &resp)
	return resp, err
}

func (c *Client) CreateBoard(ctx context.Context) (api.BoardCreatedResponse, error) {
	var resp api.BoardCreatedResponse
	err := c.request(ctx, http.MethodPost, "/v1/boards", nil, &resp)
	return resp, err
}

func (c *Client) RenderBoard(ctx context.Context, boardID string) (api.BoardEnvelope, error) {
	var resp api.BoardEnvelope
	err := c.request(ctx, http.MethodGet, "/v1/boards/"+boardID, nil, &resp)
	return resp, err
}

func (c *Client) EditBoardTitle(ctx context.Context, boardID, title string) error {
	return c.request(ctx, http.MethodPut, "/v1/boards/"+boardID+"/title", api.EditTitleRequest{Title: title}, nil)
}

func (c *Client) AddColumn(ctx context.Context, boardID string) (api.ColumnCreatedResponse, error) {
	var resp api.ColumnCreatedResponse
	err := c.request(ctx, http.MethodPost, "/v1/boards/"+boardID+"/columns", nil, &resp)
	return resp, err
}

func (c *Client) RemoveColumn(ctx context.Context, boardID, columnID string) error {
	return c.request(ctx, http.MethodDelete, "/v1/boards/"+boardID+"/columns/"+columnID, nil, nil)
}

func (c *Client) MoveColumn(ctx context.Context, boardID, columnID string, newIndex int) error {
	return c.request(ctx, http.MethodPut, "/v1/boards/"+boardID+"/columns/"+columnID+"/move", api.MoveColumnRequest{NewIndex: newIndex}, nil)
}

func (c *Client) EditColumnTitle(ctx context.Context, boardID, columnID, title string) error {
	return c.request(ctx, http.MethodPut, "/v1/boards/"+boardID+"/columns/"+columnID+"/title", api.EditTitleRequest{Title: title}, nil)
}

func (c *Client) AddCard(ctx context.Context, boardID, columnID string) (api.CardCreatedResponse, error) {
	var resp api.CardCreatedResponse
	err := c.request(ctx, http.MethodPost, "/v1/boards/"+boardID+"/columns/"+columnID+"/cards", nil, &resp)
	return resp, err
}

func (c *Client) RemoveCard(ctx context.Context, boardID, columnID, cardID string) error {
	return c.request(ctx, http.MethodDelete, "/v1/boards/"+boardID+"/columns/"+columnID+"/cards/"+cardID, nil, nil)
}

func (c *Client) MoveCard(ctx context.Context, boardID, fromColumnID, toColumnID, cardID string, newIndex int) error {
	return c.request(ctx, http.MethodPut, "/v1/boards/"+boardID+"/columns/"+fromColumnID+"/cards/"+cardID+"/move", api.MoveCardRequest{
		ToColumnID: toColumnID,
		NewIndex:   newIndex,
	}, nil)
}

func (c *Client) EditCardTitle(ctx context.Context, boardID, columnID, cardID, title string) error {
	return c.request(ctx, http.MethodPut, "/v1/boards/"+boardID+"/columns/"+columnID+"/cards/"+cardID+"/title", api.EditTitleRequest{Title: title}, nil)
}

func (c *Client) EditCardContent(ctx context.Context, boardID, columnID, cardID, content string) error {
	return c.request(ctx, http.MethodPut, "/v1/boards/"+boardID+"/columns/"+columnID+"/cards/"+cardID+"/content", api.EditContentRequest{Content: content}, nil)
}

func (c *Client) Undo(ctx context.Context, boardID string) error {
	return c.request(ctx, http.MethodPost, "/v1/boards/"+boardID+"/undo", nil, nil)
}

func (c *Client) Redo(ctx context.Context, boardID string) error {
	return c.request(ctx, http.MethodPost, "/v1/boards/"+boardID+"/redo", nil, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body any, into any) error {
	ctx, cancel := context.WithTimeout(ctx, c.unaryTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		reqErr := &RequestError{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if json.Unmarshal(payload, &errResp) == nil {
			reqErr.Code = errResp.Error.Code
			reqErr.Message = errResp.Error.Message
		}
		return reqErr
	}
	if into == nil {
		return nil
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
