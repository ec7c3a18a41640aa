// Package driver implements the line-oriented command surface (C5 in
// spec.md) on top of a Coordinator and Observer. It follows the same
// liner-based REPL shape KoordeDHT's cache client uses: read a line,
// tokenize on whitespace, dispatch on the first token, print a plain-text
// response.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"chordring/internal/chord"
	"chordring/internal/coord"
	"chordring/internal/domain"
	"chordring/internal/observer"

	"github.com/peterh/liner"
)

// Coordinator is the subset of coord.Coordinator the driver depends on.
type Coordinator interface {
	AddNode(ctx context.Context, explicit *domain.ID) (domain.ID, error)
	RemoveNode(ctx context.Context, id domain.ID) error
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
}

// Driver reads commands and writes plain-text responses, per spec.md §6's
// grammar: add [<id>] | remove <id> | put <key> <value> | get <key> |
// query <id> | ring.
type Driver struct {
	space domain.Space
	coord Coordinator
	obs   *observer.Observer
	out   io.Writer
}

// New builds a Driver over coord and obs, writing responses to out.
func New(space domain.Space, c Coordinator, obs *observer.Observer, out io.Writer) *Driver {
	return &Driver{space: space, coord: c, obs: obs, out: out}
}

// Run starts an interactive liner-backed REPL on stdin/stdout until the
// user types "exit", "quit", or sends EOF.
func (d *Driver) Run(ctx context.Context) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		input, err := line.Prompt("chord> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(d.out, "aborted")
				continue
			}
			return
		}
		line.AppendHistory(input)

		if strings.TrimSpace(input) == "" {
			continue
		}
		fmt.Fprintln(d.out, d.Execute(ctx, input))

		if cmd := strings.Fields(input)[0]; cmd == "exit" || cmd == "quit" {
			return
		}
	}
}

// Execute parses and runs a single command line, returning the exact
// plain-text response spec.md §6/§7 specifies.
func (d *Driver) Execute(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "add":
		return d.doAdd(ctx, args)
	case "remove":
		return d.doRemove(ctx, args)
	case "put":
		return d.doPut(ctx, args)
	case "get":
		return d.doGet(ctx, args)
	case "query":
		return d.doQuery(args)
	case "ring":
		return d.doRing()
	case "exit", "quit":
		return "bye"
	default:
		return fmt.Sprintf("unknown command %q", cmd)
	}
}

// parseID parses a driver-facing <id> argument as the decimal integer
// spec.md's grammar and worked examples assume (e.g. "add 14", not "add
// 0e"), matching original_source/chord_dht_gui.py's int(node_id_str).
func (d *Driver) parseID(s string) (domain.ID, error) {
	return d.space.FromDecimalString(s)
}

func (d *Driver) doAdd(ctx context.Context, args []string) string {
	var explicit *domain.ID
	if len(args) > 0 {
		id, err := d.parseID(args[0])
		if err != nil {
			return translateErr(err)
		}
		explicit = &id
	}
	id, err := d.coord.AddNode(ctx, explicit)
	if err != nil {
		return translateErr(err)
	}
	return fmt.Sprintf("ok %s", id.ToDecimalString())
}

func (d *Driver) doRemove(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "usage: remove <id>"
	}
	id, err := d.parseID(args[0])
	if err != nil {
		return translateErr(err)
	}
	if err := d.coord.RemoveNode(ctx, id); err != nil {
		return translateErr(err)
	}
	return "ok"
}

func (d *Driver) doPut(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return "usage: put <key> <value>"
	}
	key := args[0]
	value := strings.Join(args[1:], " ")
	if err := d.coord.Put(ctx, key, value); err != nil {
		return translateErr(err)
	}
	return "ok"
}

func (d *Driver) doGet(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "usage: get <key>"
	}
	value, found, err := d.coord.Get(ctx, args[0])
	if err != nil {
		return translateErr(err)
	}
	if !found {
		return "not found"
	}
	return value
}

func (d *Driver) doQuery(args []string) string {
	if len(args) != 1 {
		return "usage: query <id>"
	}
	id, err := d.parseID(args[0])
	if err != nil {
		return translateErr(err)
	}
	fingers, err := d.obs.FingerTable(id)
	if err != nil {
		return translateErr(err)
	}
	succ, _ := d.obs.SuccessorOf(id)
	pred, hasPred, _ := d.obs.PredecessorOf(id)

	var b strings.Builder
	fmt.Fprintf(&b, "id=%s successor=%s", id.ToDecimalString(), succ.ToDecimalString())
	if hasPred {
		fmt.Fprintf(&b, " predecessor=%s", pred.ToDecimalString())
	} else {
		fmt.Fprintf(&b, " predecessor=none")
	}
	fmt.Fprintf(&b, " fingers=[")
	for i, f := range fingers {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(f.ToDecimalString())
	}
	b.WriteString("]")
	return b.String()
}

func (d *Driver) doRing() string {
	entries := d.obs.Ring()
	if len(entries) == 0 {
		return "empty ring"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		pred := "none"
		if e.HasPred {
			pred = e.Predecessor.ToDecimalString()
		}
		fmt.Fprintf(&b, "%s successor=%s predecessor=%s",
			e.ID.ToDecimalString(), e.Successor.ToDecimalString(), pred)
	}
	return b.String()
}

func translateErr(err error) string {
	switch {
	case errors.Is(err, domain.ErrOutOfRange), errors.Is(err, coord.ErrOutOfRange):
		return "id out of range"
	case errors.Is(err, domain.ErrInvalidID):
		return "invalid id"
	case errors.Is(err, coord.ErrDuplicateID):
		return "duplicate id"
	case errors.Is(err, coord.ErrUnknownID):
		return "unknown id"
	case errors.Is(err, coord.ErrEmptyRing):
		return "empty ring"
	case errors.Is(err, observer.ErrUnknownID):
		return "unknown id"
	case errors.Is(err, chord.ErrNotFound):
		return "not found"
	default:
		return err.Error()
	}
}

