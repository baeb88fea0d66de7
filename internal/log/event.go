package log

import (
	"fmt"
	"strings"
	"time"
)

// EventType enumerates all observable table events.
type EventType int

const (
	EventCardPlaced EventType = iota
	EventCardRemoved
	EventMarkPlaced
	EventMarkRemoved
	EventCountdown
	EventFreeze
	EventScore
	EventClaim
	EventSetFound
	EventPenalty
	EventClaimVoided
	EventReshuffle
	EventHint
	EventWinners
)

func (e EventType) String() string {
	switch e {
	case EventCardPlaced:
		return "CardPlaced"
	case EventCardRemoved:
		return "CardRemoved"
	case EventMarkPlaced:
		return "MarkPlaced"
	case EventMarkRemoved:
		return "MarkRemoved"
	case EventCountdown:
		return "Countdown"
	case EventFreeze:
		return "Freeze"
	case EventScore:
		return "Score"
	case EventClaim:
		return "Claim"
	case EventSetFound:
		return "SetFound"
	case EventPenalty:
		return "Penalty"
	case EventClaimVoided:
		return "ClaimVoided"
	case EventReshuffle:
		return "Reshuffle"
	case EventHint:
		return "Hint"
	case EventWinners:
		return "Winners"
	default:
		return "Unknown"
	}
}

// Tick reports whether the event is a periodic timer refresh rather than a
// state change. Sinks may drop ticks under pressure.
func (e EventType) Tick() bool {
	return e == EventCountdown || e == EventFreeze
}

// GameEvent represents a single observable event on the table.
type GameEvent struct {
	Seq       int           // monotonic sequence number, assigned by the logger
	Round     int           // deal round (1-based)
	Player    int           // acting player, -1 for the dealer
	Type      EventType     // event type
	Slot      int           // slot involved, -1 if none
	Card      int           // card involved, -1 if none
	Value     int           // score for EventScore
	Remaining time.Duration // countdown or freeze remaining
	Warn      bool          // countdown is under the warning threshold
	Players   []int         // winners for EventWinners, slots for EventHint
	Details   string        // human-readable detail string
}

// playerName returns "P1", "P2", ... for display.
func playerName(p int) string {
	if p < 0 {
		return "Dealer"
	}
	return fmt.Sprintf("P%d", p+1)
}

// FormatEvent formats a single event as a human-readable line.
func FormatEvent(e GameEvent) string {
	who := playerName(e.Player)
	for len(who) < 7 {
		who += " "
	}
	return fmt.Sprintf("R%-2d %s| %s", e.Round, who, e.Details)
}

// FormatAll formats all events as a multi-line string.
func FormatAll(events []GameEvent) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(FormatEvent(e))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// --- Helper constructors for common events ---

func NewCardPlacedEvent(round, slot, card int, label string) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  -1,
		Type:    EventCardPlaced,
		Slot:    slot,
		Card:    card,
		Details: fmt.Sprintf("%s dealt to slot %d", label, slot),
	}
}

func NewCardRemovedEvent(round, slot, card int, label string) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  -1,
		Type:    EventCardRemoved,
		Slot:    slot,
		Card:    card,
		Details: fmt.Sprintf("%s taken from slot %d", label, slot),
	}
}

func NewMarkPlacedEvent(round, player, slot int) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  player,
		Type:    EventMarkPlaced,
		Slot:    slot,
		Card:    -1,
		Details: fmt.Sprintf("%s marks slot %d", playerName(player), slot),
	}
}

func NewMarkRemovedEvent(round, player, slot int) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  player,
		Type:    EventMarkRemoved,
		Slot:    slot,
		Card:    -1,
		Details: fmt.Sprintf("%s unmarks slot %d", playerName(player), slot),
	}
}

func NewCountdownEvent(round int, remaining time.Duration, warn bool) GameEvent {
	if remaining < 0 {
		remaining = 0
	}
	return GameEvent{
		Round:     round,
		Player:    -1,
		Type:      EventCountdown,
		Slot:      -1,
		Card:      -1,
		Remaining: remaining,
		Warn:      warn,
		Details:   fmt.Sprintf("%s left", remaining.Truncate(time.Second)),
	}
}

func NewFreezeEvent(round, player int, remaining time.Duration) GameEvent {
	if remaining < 0 {
		remaining = 0
	}
	return GameEvent{
		Round:     round,
		Player:    player,
		Type:      EventFreeze,
		Slot:      -1,
		Card:      -1,
		Remaining: remaining,
		Details:   fmt.Sprintf("%s frozen for %s", playerName(player), remaining.Truncate(time.Second)),
	}
}

func NewScoreEvent(round, player, score int) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  player,
		Type:    EventScore,
		Slot:    -1,
		Card:    -1,
		Value:   score,
		Details: fmt.Sprintf("%s score: %d", playerName(player), score),
	}
}

func NewClaimEvent(round, player int, labels []string) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  player,
		Type:    EventClaim,
		Slot:    -1,
		Card:    -1,
		Details: fmt.Sprintf("%s claims a set: %s", playerName(player), strings.Join(labels, ", ")),
	}
}

func NewSetFoundEvent(round, player int) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  player,
		Type:    EventSetFound,
		Slot:    -1,
		Card:    -1,
		Details: fmt.Sprintf("%s found a set!", playerName(player)),
	}
}

func NewPenaltyEvent(round, player int) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  player,
		Type:    EventPenalty,
		Slot:    -1,
		Card:    -1,
		Details: fmt.Sprintf("%s is penalized: not a set", playerName(player)),
	}
}

func NewClaimVoidedEvent(round, player int) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  player,
		Type:    EventClaimVoided,
		Slot:    -1,
		Card:    -1,
		Details: fmt.Sprintf("%s loses marks to another claim", playerName(player)),
	}
}

func NewReshuffleEvent(round int, reason string) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  -1,
		Type:    EventReshuffle,
		Slot:    -1,
		Card:    -1,
		Details: fmt.Sprintf("Table cleared (%s)", reason),
	}
}

func NewHintEvent(round int, slots []int) GameEvent {
	return GameEvent{
		Round:   round,
		Player:  -1,
		Type:    EventHint,
		Slot:    -1,
		Card:    -1,
		Players: slots,
		Details: fmt.Sprintf("Hint: set at slots %v", slots),
	}
}

func NewWinnersEvent(round int, winners []int, score int) GameEvent {
	names := make([]string, len(winners))
	for i, w := range winners {
		names[i] = playerName(w)
	}
	verb := "wins"
	if len(winners) > 1 {
		verb = "tie"
	}
	return GameEvent{
		Round:   round,
		Player:  -1,
		Type:    EventWinners,
		Slot:    -1,
		Card:    -1,
		Value:   score,
		Players: winners,
		Details: fmt.Sprintf("%s %s with %d point(s)", strings.Join(names, ", "), verb, score),
	}
}
