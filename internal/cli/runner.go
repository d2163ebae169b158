// Package cli implements the board command-line runner.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/g960059/boardd/internal/api"
	"github.com/g960059/boardd/internal/appclient"
)

type Runner struct {
	client *appclient.Client
	out    io.Writer
	errOut io.Writer
}

func NewRunner(socketPath string, out, errOut io.Writer) *Runner {
	return newRunner(appclient.New(socketPath), out, errOut)
}

func NewRunnerWithClient(baseURL string, client *http.Client, out, errOut io.Writer) *Runner {
	return newRunner(appclient.NewWithClient(baseURL, client), out, errOut)
}

func newRunner(client *appclient.Client, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Runner{client: client, out: out, errOut: errOut}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	socketPath, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if socketPath != "" {
		r.client = appclient.New(socketPath)
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	switch rest[0] {
	case "create-board":
		return r.runCreateBoard(ctx, rest[1:])
	case "render":
		return r.runRender(ctx, rest[1:])
	case "edit-board-title":
		return r.runEditBoardTitle(ctx, rest[1:])
	case "add-column":
		return r.runAddColumn(ctx, rest[1:])
	case "remove-column":
		return r.runRemoveColumn(ctx, rest[1:])
	case "move-column":
		return r.runMoveColumn(ctx, rest[1:])
	case "edit-column-title":
		return r.runEditColumnTitle(ctx, rest[1:])
	case "add-card":
		return r.runAddCard(ctx, rest[1:])
	case "remove-card":
		return r.runRemoveCard(ctx, rest[1:])
	case "move-card":
		return r.runMoveCard(ctx, rest[1:])
	case "edit-card-title":
		return r.runEditCardTitle(ctx, rest[1:])
	case "edit-card-content":
		return r.runEditCardContent(ctx, rest[1:])
	case "undo":
		return r.runUndo(ctx, rest[1:])
	case "redo":
		return r.runRedo(ctx, rest[1:])
	case "health":
		return r.runHealth(ctx, rest[1:])
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func (r *Runner) runCreateBoard(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("create-board", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	resp, err := r.client.CreateBoard(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	_, _ = fmt.Fprintf(r.out, "board created: %s\n", resp.BoardID)
	return 0
}

func (r *Runner) runRender(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" {
		return r.usageErr(fmt.Errorf("--board is required"))
	}
	resp, err := r.client.RenderBoard(ctx, *boardID)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	r.printBoard(resp.Board)
	return 0
}

func (r *Runner) printBoard(board api.BoardResponse) {
	title := board.Title
	if title == "" {
		title = "(untitled)"
	}
	_, _ = fmt.Fprintf(r.out, "%s\t%s\tv%d\n", board.ID, title, board.Version)
	for _, col := range board.Columns {
		colTitle := col.Title
		if colTitle == "" {
			colTitle = "(untitled)"
		}
		_, _ = fmt.Fprintf(r.out, "  %s\t%s\n", col.ID, colTitle)
		for _, card := range col.Cards {
			cardTitle := card.Title
			if cardTitle == "" {
				cardTitle = "(untitled)"
			}
			_, _ = fmt.Fprintf(r.out, "    %s\t%s\n", card.ID, cardTitle)
		}
	}
}

func (r *Runner) runEditBoardTitle(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("edit-board-title", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	title := fs.String("title", "", "new title")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" {
		return r.usageErr(fmt.Errorf("--board is required"))
	}
	if err := r.client.EditBoardTitle(ctx, *boardID, *title); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "board title updated")
	return 0
}

func (r *Runner) runAddColumn(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("add-column", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" {
		return r.usageErr(fmt.Errorf("--board is required"))
	}
	resp, err := r.client.AddColumn(ctx, *boardID)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	_, _ = fmt.Fprintf(r.out, "column added: %s\n", resp.ColumnID)
	return 0
}

func (r *Runner) runRemoveColumn(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remove-column", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	columnID := fs.String("column", "", "column id")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" || *columnID == "" {
		return r.usageErr(fmt.Errorf("--board and --column are required"))
	}
	if err := r.client.RemoveColumn(ctx, *boardID, *columnID); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "column removed")
	return 0
}

func (r *Runner) runMoveColumn(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("move-column", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	columnID := fs.String("column", "", "column id")
	index := fs.Int("index", 0, "new index")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" || *columnID == "" {
		return r.usageErr(fmt.Errorf("--board and --column are required"))
	}
	if err := r.client.MoveColumn(ctx, *boardID, *columnID, *index); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "column moved")
	return 0
}

func (r *Runner) runEditColumnTitle(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("edit-column-title", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	columnID := fs.String("column", "", "column id")
	title := fs.String("title", "", "new title")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" || *columnID == "" {
		return r.usageErr(fmt.Errorf("--board and --column are required"))
	}
	if err := r.client.EditColumnTitle(ctx, *boardID, *columnID, *title); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "column title updated")
	return 0
}

func (r *Runner) runAddCard(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("add-card", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	columnID := fs.String("column", "", "column id")
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" || *columnID == "" {
		return r.usageErr(fmt.Errorf("--board and --column are required"))
	}
	resp, err := r.client.AddCard(ctx, *boardID, *columnID)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	_, _ = fmt.Fprintf(r.out, "card added: %s\n", resp.CardID)
	return 0
}

func (r *Runner) runRemoveCard(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("remove-card", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	columnID := fs.String("column", "", "column id")
	cardID := fs.String("card", "", "card id")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" || *columnID == "" || *cardID == "" {
		return r.usageErr(fmt.Errorf("--board, --column and --card are required"))
	}
	if err := r.client.RemoveCard(ctx, *boardID, *columnID, *cardID); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "card removed")
	return 0
}

func (r *Runner) runMoveCard(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("move-card", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	fromColumn := fs.String("from", "", "source column id")
	toColumn := fs.String("to", "", "target column id (defaults to source)")
	cardID := fs.String("card", "", "card id")
	index := fs.Int("index", 0, "new index")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" || *fromColumn == "" || *cardID == "" {
		return r.usageErr(fmt.Errorf("--board, --from and --card are required"))
	}
	target := *toColumn
	if target == "" {
		target = *fromColumn
	}
	if err := r.client.MoveCard(ctx, *boardID, *fromColumn, target, *cardID, *index); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "card moved")
	return 0
}

func (r *Runner) runEditCardTitle(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("edit-card-title", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	columnID := fs.String("column", "", "column id")
	cardID := fs.String("card", "", "card id")
	title := fs.String("title", "", "new title")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" || *columnID == "" || *cardID == "" {
		return r.usageErr(fmt.Errorf("--board, --column and --card are required"))
	}
	if err := r.client.EditCardTitle(ctx, *boardID, *columnID, *cardID, *title); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "card title updated")
	return 0
}

func (r *Runner) runEditCardContent(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("edit-card-content", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	columnID := fs.String("column", "", "column id")
	cardID := fs.String("card", "", "card id")
	content := fs.String("content", "", "new content")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" || *columnID == "" || *cardID == "" {
		return r.usageErr(fmt.Errorf("--board, --column and --card are required"))
	}
	if err := r.client.EditCardContent(ctx, *boardID, *columnID, *cardID, *content); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "card content updated")
	return 0
}

func (r *Runner) runUndo(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("undo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" {
		return r.usageErr(fmt.Errorf("--board is required"))
	}
	if err := r.client.Undo(ctx, *boardID); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "undo applied")
	return 0
}

func (r *Runner) runRedo(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("redo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	boardID := fs.String("board", "", "board id")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	if *boardID == "" {
		return r.usageErr(fmt.Errorf("--board is required"))
	}
	if err := r.client.Redo(ctx, *boardID); err != nil {
		return r.handleErr(err)
	}
	_, _ = fmt.Fprintln(r.out, "redo applied")
	return 0
}

func (r *Runner) runHealth(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		return r.usageErr(err)
	}
	resp, err := r.client.Health(ctx)
	if err != nil {
		return r.handleErr(err)
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	_, _ = fmt.Fprintln(r.out, resp.Status)
	return 0
}

func (r *Runner) printJSON(payload any) int {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return r.handleErr(err)
	}
	_, _ = r.out.Write(encoded)
	_, _ = fmt.Fprintln(r.out)
	return 0
}

func (r *Runner) usageErr(err error) int {
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 2
}

func (r *Runner) handleErr(err error) int {
	_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
	return 1
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, `usage: board [--socket PATH] <command> [flags]

commands:
  create-board                             create a new board
  render            --board                render the board at its cursor
  edit-board-title  --board --title        set the board title
  add-column        --board                append an empty column
  remove-column     --board --column       remove a column
  move-column       --board --column --index
  edit-column-title --board --column --title
  add-card          --board --column       append an empty card
  remove-card       --board --column --card
  move-card         --board --from [--to] --card --index
  edit-card-title   --board --column --card --title
  edit-card-content --board --column --card --content
  undo              --board                step the cursor back
  redo              --board                step the cursor forward
  health                                   daemon health`)
}

func parseGlobalArgs(args []string) (string, []string, error) {
	socketPath := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--socket":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--socket requires a value")
			}
			i++
			socketPath = args[i]
		case strings.HasPrefix(arg, "--socket="):
			socketPath = strings.TrimPrefix(arg, "--socket=")
		default:
			rest = append(rest, arg)
		}
	}
	return socketPath, rest, nil
}
