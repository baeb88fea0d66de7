package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/game"
	"github.com/peterkuimelis/setx/internal/log"
)

// RemotePlayer binds one TCP connection to one agent. Signals read from the
// connection are handed to the agent; display events are written back.
type RemotePlayer struct {
	conn   net.Conn
	enc    *json.Encoder
	dec    *json.Decoder
	player int
	name   string
	mu     sync.Mutex // guards enc
	plog   *logrus.Entry
}

// NewRemotePlayer creates a remote player for the given connection.
func NewRemotePlayer(conn net.Conn, player int, plog *logrus.Entry) *RemotePlayer {
	if plog == nil {
		plog = log.Discard()
	}
	return &RemotePlayer{
		conn:   conn,
		enc:    json.NewEncoder(conn),
		dec:    json.NewDecoder(conn),
		player: player,
		plog:   plog.WithFields(logrus.Fields{"player": player, "remote": conn.RemoteAddr().String()}),
	}
}

// Player returns the seat this connection controls.
func (rp *RemotePlayer) Player() int {
	return rp.player
}

// Join reads the handshake. The client may propose a display name.
func (rp *RemotePlayer) Join() (string, error) {
	msg, err := rp.recv()
	if err != nil {
		return "", fmt.Errorf("read join message: %w", err)
	}
	if msg.Type != MsgJoin {
		return "", fmt.Errorf("expected %q, got %q", MsgJoin, msg.Type)
	}
	rp.name = msg.Name
	return msg.Name, nil
}

func (rp *RemotePlayer) send(msg ServerMessage) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.enc.Encode(msg)
}

func (rp *RemotePlayer) recv() (ClientMessage, error) {
	var msg ClientMessage
	err := rp.dec.Decode(&msg)
	return msg, err
}

// Log implements log.EventLogger by forwarding the event as a notify message.
// Wrap it in a log.AsyncLogger so a slow client never stalls the table.
func (rp *RemotePlayer) Log(event log.GameEvent) {
	if err := rp.send(ServerMessage{Type: MsgNotify, Event: NewEventView(event)}); err != nil {
		rp.plog.WithError(err).Debug("notify failed")
	}
}

// Events implements log.EventLogger. Remote sinks keep no history.
func (rp *RemotePlayer) Events() []log.GameEvent {
	return nil
}

func (rp *RemotePlayer) SendWelcome(w WelcomeView) error {
	return rp.send(ServerMessage{Type: MsgWelcome, Welcome: &w})
}

func (rp *RemotePlayer) SendState(sv *StateView) error {
	return rp.send(ServerMessage{Type: MsgState, State: sv})
}

func (rp *RemotePlayer) SendError(text string) error {
	return rp.send(ServerMessage{Type: MsgError, Result: text})
}

// SendGameOver sends the final result.
func (rp *RemotePlayer) SendGameOver(res game.Result, text string) error {
	return rp.send(ServerMessage{Type: MsgGameOver, Winners: res.Winners, Scores: res.Scores, Result: text})
}

// Serve reads client messages until the connection closes or ctx is done.
// A signal blocks inside Agent.Signal, so a client cannot run ahead of its
// agent. Closing the connection is the caller's way to stop Serve.
func (rp *RemotePlayer) Serve(ctx context.Context, agent *game.Agent, state func(player int) *StateView) error {
	for ctx.Err() == nil {
		msg, err := rp.recv()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("recv from player %d: %w", rp.player, err)
		}

		switch msg.Type {
		case MsgSignal:
			if !agent.Signal(msg.Slot) {
				if agent.State() == game.AgentTerminated {
					return nil
				}
				_ = rp.SendError(fmt.Sprintf("frozen for %s", agent.FreezeRemaining().Round(100*time.Millisecond)))
				continue
			}
			if err := rp.SendState(state(rp.player)); err != nil {
				return fmt.Errorf("send state: %w", err)
			}
		case MsgState:
			if err := rp.SendState(state(rp.player)); err != nil {
				return fmt.Errorf("send state: %w", err)
			}
		default:
			_ = rp.SendError(fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
	return nil
}

// Close closes the underlying connection.
func (rp *RemotePlayer) Close() error {
	return rp.conn.Close()
}

// BuildStateView creates a StateView of c from the perspective of player.
func BuildStateView(c *game.Controller, player int) *StateView {
	cfg := c.Config()
	b := c.Board()
	snap := b.Snapshot()

	sv := &StateView{
		Game:        c.ID.String(),
		Round:       c.Round(),
		Rows:        cfg.Rows,
		Columns:     cfg.Columns,
		You:         player,
		Scores:      c.Scores(),
		Deck:        c.DeckCount(),
		RemainingMs: c.Remaining().Milliseconds(),
		Pending:     c.PendingClaims(),
	}
	if player >= 0 && player < len(c.Agents()) {
		sv.FrozenMs = c.Agent(player).FreezeRemaining().Milliseconds()
	}

	marked := make([][]int, len(snap.Slots))
	for p, slots := range snap.Marks {
		for _, s := range slots {
			marked[s] = append(marked[s], p)
		}
	}
	for s, card := range snap.Slots {
		v := SlotView{Slot: s, Card: card, Marked: marked[s]}
		if card != game.NoCard {
			v.Label = b.Label(card)
		}
		for _, p := range marked[s] {
			if p == player {
				v.Mine = true
			}
		}
		sv.Slots = append(sv.Slots, v)
	}
	return sv
}
