package net

import (
	"time"

	"github.com/peterkuimelis/setx/internal/log"
)

// Message types for the JSON protocol over TCP. Each message is one JSON
// document; both sides use json.Encoder/Decoder on the raw connection.
const (
	MsgJoin   = "join"   // client → server, first message
	MsgSignal = "signal" // client → server, toggle a slot
	MsgState  = "state"  // both ways: request / board snapshot

	MsgWelcome  = "welcome"
	MsgNotify   = "notify"
	MsgError    = "error"
	MsgGameOver = "game_over"
)

// --- Server → Client messages ---

// ServerMessage is the envelope for all server-to-client messages.
type ServerMessage struct {
	Type string `json:"type"`

	// For "welcome"
	Welcome *WelcomeView `json:"welcome,omitempty"`

	// For "notify"
	Event *EventView `json:"event,omitempty"`

	// For "state"
	State *StateView `json:"state,omitempty"`

	// For "game_over"
	Winners []int `json:"winners,omitempty"`
	Scores  []int `json:"scores,omitempty"`

	// For "error" and "game_over"
	Result string `json:"result,omitempty"`
}

// WelcomeView tells a client which seat it holds.
type WelcomeView struct {
	Game    string `json:"game"`
	Player  int    `json:"player"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// EventView is a display event as sent to clients.
type EventView struct {
	Seq         int    `json:"seq"`
	Round       int    `json:"round"`
	Player      int    `json:"player"`
	Type        string `json:"type"`
	Tick        bool   `json:"tick,omitempty"`
	Slot        int    `json:"slot"`
	Card        int    `json:"card"`
	Value       int    `json:"value,omitempty"`
	RemainingMs int64  `json:"remaining_ms,omitempty"`
	Warn        bool   `json:"warn,omitempty"`
	Players     []int  `json:"players,omitempty"`
	Details     string `json:"details"`
}

// NewEventView converts a display event for the wire.
func NewEventView(e log.GameEvent) *EventView {
	return &EventView{
		Seq:         e.Seq,
		Round:       e.Round,
		Player:      e.Player,
		Type:        e.Type.String(),
		Tick:        e.Type.Tick(),
		Slot:        e.Slot,
		Card:        e.Card,
		Value:       e.Value,
		RemainingMs: e.Remaining.Milliseconds(),
		Warn:        e.Warn,
		Players:     e.Players,
		Details:     e.Details,
	}
}

// Remaining returns the countdown or freeze time carried by the event.
func (ev *EventView) Remaining() time.Duration {
	return time.Duration(ev.RemainingMs) * time.Millisecond
}

// StateView is the table from one player's perspective.
type StateView struct {
	Game        string     `json:"game"`
	Round       int        `json:"round"`
	Rows        int        `json:"rows"`
	Columns     int        `json:"columns"`
	You         int        `json:"you"`
	Slots       []SlotView `json:"slots"`
	Scores      []int      `json:"scores"`
	Deck        int        `json:"deck"`
	RemainingMs int64      `json:"remaining_ms"`
	FrozenMs    int64      `json:"frozen_ms,omitempty"`
	Pending     []int      `json:"pending,omitempty"` // queued claims, oldest first
}

// SlotView describes one slot of the grid.
type SlotView struct {
	Slot   int    `json:"slot"`
	Card   int    `json:"card"` // -1 when empty
	Label  string `json:"label,omitempty"`
	Mine   bool   `json:"mine,omitempty"`
	Marked []int  `json:"marked,omitempty"` // players marking this slot
}

// --- Client → Server messages ---

// ClientMessage is the envelope for all client-to-server messages.
type ClientMessage struct {
	Type string `json:"type"`

	// For "join"
	Name string `json:"name,omitempty"`

	// For "signal"
	Slot int `json:"slot"`
}
