// Package daemon serves the board API over a unix-domain socket.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/g960059/boardd/internal/api"
	"github.com/g960059/boardd/internal/app"
	"github.com/g960059/boardd/internal/config"
	"github.com/g960059/boardd/internal/domain"
	"github.com/g960059/boardd/internal/eventlog"
	"github.com/g960059/boardd/internal/model"
	"github.com/g960059/boardd/internal/undoredo"
)

type Server struct {
	cfg         config.Config
	httpSrv     *http.Server
	listener    net.Listener
	lockFile    *os.File
	app         *app.App
	mu          sync.Mutex
	shutdown    sync.Once
	shutdownErr error
}

func NewServer(cfg config.Config, boardApp *app.App) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg: cfg,
		app: boardApp,
		httpSrv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("GET /v1/health", s.healthHandler)
	if boardApp != nil {
		mux.HandleFunc("POST /v1/boards", s.createBoardHandler)
		mux.HandleFunc("GET /v1/boards/{board_id}", s.renderBoardHandler)
		mux.HandleFunc("PUT /v1/boards/{board_id}/title", s.editBoardTitleHandler)
		mux.HandleFunc("POST /v1/boards/{board_id}/columns", s.addColumnHandler)
		mux.HandleFunc("DELETE /v1/boards/{board_id}/columns/{column_id}", s.removeColumnHandler)
		mux.HandleFunc("PUT /v1/boards/{board_id}/columns/{column_id}/move", s.moveColumnHandler)
		mux.HandleFunc("PUT /v1/boards/{board_id}/columns/{column_id}/title", s.editColumnTitleHandler)
		mux.HandleFunc("POST /v1/boards/{board_id}/columns/{column_id}/cards", s.addCardHandler)
		mux.HandleFunc("DELETE /v1/boards/{board_id}/columns/{column_id}/cards/{card_id}", s.removeCardHandler)
		mux.HandleFunc("PUT /v1/boards/{board_id}/columns/{column_id}/cards/{card_id}/move", s.moveCardHandler)
		mux.HandleFunc("PUT /v1/boards/{board_id}/columns/{column_id}/cards/{card_id}/title", s.editCardTitleHandler)
		mux.HandleFunc("PUT /v1/boards/{board_id}/columns/{column_id}/cards/{card_id}/content", s.editCardContentHandler)
		mux.HandleFunc("POST /v1/boards/{board_id}/undo", s.undoHandler)
		mux.HandleFunc("POST /v1/boards/{board_id}/redo", s.redoHandler)
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.cfg.SocketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not unix socket: %s", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close() //nolint:errcheck
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if s.httpSrv != nil {
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		if s.cfg.SocketPath != "" {
			if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutdownErr
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Status:        "ok",
	})
}

func (s *Server) createBoardHandler(w http.ResponseWriter, r *http.Request) {
	boardID, err := s.app.CreateBoard(r.Context())
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.BoardCreatedResponse{
		SchemaVersion: "v1",
		BoardID:       boardID.String(),
	})
}

func (s *Server) renderBoardHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	board, err := s.app.RenderBoard(r.Context(), boardID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.BoardEnvelope{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Board:         renderBoard(board),
	})
}

func (s *Server) editBoardTitleHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	var req api.EditTitleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.app.EditBoardTitle(r.Context(), boardID, req.Title); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "board title updated")
}

func (s *Server) addColumnHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, err := s.app.AddColumn(r.Context(), boardID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ColumnCreatedResponse{
		SchemaVersion: "v1",
		ColumnID:      columnID.String(),
	})
}

func (s *Server) removeColumnHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, ok := s.pathID(w, r, "column_id")
	if !ok {
		return
	}
	if err := s.app.RemoveColumn(r.Context(), boardID, columnID); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "column removed")
}

func (s *Server) moveColumnHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, ok := s.pathID(w, r, "column_id")
	if !ok {
		return
	}
	var req api.MoveColumnRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.app.MoveColumn(r.Context(), boardID, columnID, req.NewIndex); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "column moved")
}

func (s *Server) editColumnTitleHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, ok := s.pathID(w, r, "column_id")
	if !ok {
		return
	}
	var req api.EditTitleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.app.EditColumnTitle(r.Context(), boardID, columnID, req.Title); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "column title updated")
}

func (s *Server) addCardHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, ok := s.pathID(w, r, "column_id")
	if !ok {
		return
	}
	cardID, err := s.app.AddCard(r.Context(), boardID, columnID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.CardCreatedResponse{
		SchemaVersion: "v1",
		CardID:        cardID.String(),
	})
}

func (s *Server) removeCardHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, ok := s.pathID(w, r, "column_id")
	if !ok {
		return
	}
	cardID, ok := s.pathID(w, r, "card_id")
	if !ok {
		return
	}
	if err := s.app.RemoveCard(r.Context(), boardID, columnID, cardID); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "card removed")
}

func (s *Server) moveCardHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, ok := s.pathID(w, r, "column_id")
	if !ok {
		return
	}
	cardID, ok := s.pathID(w, r, "card_id")
	if !ok {
		return
	}
	var req api.MoveCardRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	toColumnID := columnID
	if req.ToColumnID != "" {
		parsed, err := uuid.Parse(req.ToColumnID)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, "to_column_id must be a uuid")
			return
		}
		toColumnID = parsed
	}
	if err := s.app.MoveCard(r.Context(), boardID, columnID, toColumnID, cardID, req.NewIndex); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "card moved")
}

func (s *Server) editCardTitleHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, ok := s.pathID(w, r, "column_id")
	if !ok {
		return
	}
	cardID, ok := s.pathID(w, r, "card_id")
	if !ok {
		return
	}
	var req api.EditTitleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.app.EditCardTitle(r.Context(), boardID, columnID, cardID, req.Title); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "card title updated")
}

func (s *Server) editCardContentHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	columnID, ok := s.pathID(w, r, "column_id")
	if !ok {
		return
	}
	cardID, ok := s.pathID(w, r, "card_id")
	if !ok {
		return
	}
	var req api.EditContentRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.app.EditCardContent(r.Context(), boardID, columnID, cardID, req.Content); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "card content updated")
}

func (s *Server) undoHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	if err := s.app.Undo(r.Context(), boardID); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "board undo")
}

func (s *Server) redoHandler(w http.ResponseWriter, r *http.Request) {
	boardID, ok := s.pathID(w, r, "board_id")
	if !ok {
		return
	}
	if err := s.app.Redo(r.Context(), boardID); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeAck(w, "board redo")
}

func renderBoard(board *domain.Board) api.BoardResponse {
	columns := make([]api.ColumnResponse, 0, len(board.Columns))
	for _, col := range board.Columns {
		cards := make([]api.CardResponse, 0, len(col.Cards))
		for _, card := range col.Cards {
			cards = append(cards, api.CardResponse{
				ID:      card.ID.String(),
				Title:   card.Title,
				Content: card.Content,
			})
		}
		columns = append(columns, api.ColumnResponse{
			ID:    col.ID.String(),
			Title: col.Title,
			Cards: cards,
		})
	}
	return api.BoardResponse{
		ID:      board.ID().String(),
		Title:   board.Title,
		Columns: columns,
		Version: board.Version(),
	}
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, name+" must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrRefInvalid, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeAck(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusOK, api.AckResponse{SchemaVersion: "v1", Message: message})
}

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound) || errors.Is(err, eventlog.ErrNotFound):
		s.writeError(w, http.StatusNotFound, model.ErrRefNotFound, err.Error())
	case errors.Is(err, eventlog.ErrVersionConflict):
		s.writeError(w, http.StatusConflict, model.ErrVersionConflict, err.Error())
	case errors.Is(err, undoredo.ErrInvariantViolation):
		s.writeError(w, http.StatusInternalServerError, model.ErrInvariantViolation, err.Error())
	case errors.Is(err, eventlog.ErrStoreUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, model.ErrStoreUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, model.ErrStoreUnavailable, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	s.writeJSON(w, status, api.ErrorResponse{
		SchemaVersion: "v1",
		GeneratedAt:   time.Now().UTC(),
		Error: api.APIError{
			Code:    code,
			Message: msg,
		},
	})
}

func (s *Server) acquireLock() error {
	lockPath := s.cfg.SocketPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("daemon already running")
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
