package net

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
)

// Client connects to a game server and provides a terminal REPL.
type Client struct {
	conn net.Conn
	in   io.Reader
	out  io.Writer

	mu  sync.Mutex // guards enc
	enc *json.Encoder

	player   int
	lastWarn int
}

// Connect connects to a server, sends the join message, and runs the REPL
// until the game ends.
func Connect(ctx context.Context, addr, name string, in io.Reader, out io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	c := NewClient(conn, in, out)
	if err := c.send(ClientMessage{Type: MsgJoin, Name: name}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	fmt.Fprintln(out, "Connected! Waiting for the other players...")
	return c.RunREPL(ctx)
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, in io.Reader, out io.Writer) *Client {
	return &Client{conn: conn, in: in, out: out, enc: json.NewEncoder(conn), lastWarn: -1}
}

func (c *Client) send(msg ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(msg)
}

// RunREPL renders server messages and turns typed slot numbers into signals.
// It returns when the server reports game over or the connection drops.
func (c *Client) RunREPL(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	go c.readInput()

	dec := json.NewDecoder(c.conn)
	for {
		var msg ServerMessage
		if err := dec.Decode(&msg); err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		switch msg.Type {
		case MsgWelcome:
			c.renderWelcome(msg.Welcome)
		case MsgNotify:
			c.renderEvent(msg.Event)
		case MsgState:
			RenderState(c.out, msg.State)
		case MsgError:
			fmt.Fprintf(c.out, "! %s\n", msg.Result)
		case MsgGameOver:
			fmt.Fprintln(c.out)
			fmt.Fprintln(c.out, "═══════════════════════════════════")
			fmt.Fprintln(c.out, "          GAME OVER")
			fmt.Fprintln(c.out, "═══════════════════════════════════")
			fmt.Fprintln(c.out, msg.Result)
			for p, s := range msg.Scores {
				fmt.Fprintf(c.out, "  P%d: %d\n", p+1, s)
			}
			fmt.Fprintln(c.out, "═══════════════════════════════════")
			return nil
		}
	}
}

// readInput forwards stdin commands until input ends or a send fails.
func (c *Client) readInput() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var err error
		switch line {
		case "":
			continue
		case "q", "quit":
			c.conn.Close()
			return
		case "s", "state":
			err = c.send(ClientMessage{Type: MsgState})
		default:
			n, convErr := strconv.Atoi(line)
			if convErr != nil || n < 1 {
				fmt.Fprintln(c.out, "Enter a slot number, s for the board, q to quit")
				continue
			}
			err = c.send(ClientMessage{Type: MsgSignal, Slot: n - 1})
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) renderWelcome(w *WelcomeView) {
	if w == nil {
		return
	}
	c.player = w.Player
	fmt.Fprintf(c.out, "Game %s: you are P%d (%s) of %d on a %dx%d table.\n",
		w.Game, w.Player+1, w.Name, w.Players, w.Rows, w.Columns)
	fmt.Fprintln(c.out, "Type a slot number to mark or unmark it.")
}

func (c *Client) renderEvent(ev *EventView) {
	if ev == nil {
		return
	}
	if ev.Tick {
		// Only the countdown's final seconds are worth a line.
		if ev.Type != "Countdown" || !ev.Warn {
			c.lastWarn = -1
			return
		}
		sec := int(math.Ceil(ev.Remaining().Seconds()))
		if sec != c.lastWarn && sec > 0 {
			c.lastWarn = sec
			fmt.Fprintf(c.out, "R%-2d %ds left\n", ev.Round, sec)
		}
		return
	}
	who := "Dealer"
	if ev.Player >= 0 {
		who = fmt.Sprintf("P%d", ev.Player+1)
	}
	fmt.Fprintf(c.out, "R%-2d %-7s| %s\n", ev.Round, who, ev.Details)
}

// RenderState draws the grid with slot numbers, card labels and marks. The
// viewer's marks show as '*', other players' as their number.
func RenderState(w io.Writer, sv *StateView) {
	if sv == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Round %d | deck %d | %.1fs left", sv.Round, sv.Deck, float64(sv.RemainingMs)/1000)
	if sv.FrozenMs > 0 {
		fmt.Fprintf(w, " | frozen %.1fs", float64(sv.FrozenMs)/1000)
	}
	fmt.Fprintln(w)

	cols := sv.Columns
	if cols <= 0 {
		cols = len(sv.Slots)
	}
	for i, s := range sv.Slots {
		fmt.Fprintf(w, "%-26s", formatSlot(s, sv.You))
		if (i+1)%cols == 0 {
			fmt.Fprintln(w)
		}
	}
	if len(sv.Slots)%cols != 0 {
		fmt.Fprintln(w)
	}

	var scores []string
	for p, s := range sv.Scores {
		scores = append(scores, fmt.Sprintf("P%d:%d", p+1, s))
	}
	fmt.Fprintf(w, "Scores %s\n", strings.Join(scores, " "))
}

func formatSlot(s SlotView, viewer int) string {
	if s.Card < 0 {
		return fmt.Sprintf("%2d [          ]", s.Slot+1)
	}
	marks := ""
	for _, p := range s.Marked {
		if p == viewer {
			marks += "*"
		} else {
			marks += strconv.Itoa(p + 1)
		}
	}
	return fmt.Sprintf("%2d [%s]%s", s.Slot+1, s.Label, marks)
}
