package game

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/peterkuimelis/setx/internal/log"
)

const (
	NoCard   = -1
	NoSlot   = -1
	MaxMarks = 3
)

var (
	ErrBadSlot      = errors.New("slot out of range")
	ErrBadCard      = errors.New("card out of range")
	ErrSlotOccupied = errors.New("slot already holds a card")
	ErrSlotEmpty    = errors.New("slot holds no card")
	ErrCardOnTable  = errors.New("card already on the table")
	ErrInvariant    = errors.New("table invariant violated")
)

// Board is the shared grid of card slots plus every player's marks.
//
// Locking: structural changes (placing and removing cards, clearing marks of a
// removed card) run under the grid write lock via Exclusive. Ordinary marking
// holds the grid read lock, then the slot lock, then the player's mark-row
// lock. Locks are always taken in that order.
type Board struct {
	grid  sync.RWMutex
	slots []sync.Mutex
	rows  []sync.Mutex

	slotToCard []int
	cardToSlot []int
	marks      [][]bool
	markCount  []int

	delay  time.Duration
	logger log.EventLogger
	label  func(card int) string
	round  atomic.Int64
}

// NewBoard creates an empty board with the given number of slots, distinct
// cards and players. delay is the simulated placement latency.
func NewBoard(slots, cards, players int, delay time.Duration, logger log.EventLogger) *Board {
	if logger == nil {
		logger = log.NopLogger{}
	}
	b := &Board{
		slots:      make([]sync.Mutex, slots),
		rows:       make([]sync.Mutex, players),
		slotToCard: make([]int, slots),
		cardToSlot: make([]int, cards),
		marks:      make([][]bool, players),
		markCount:  make([]int, players),
		delay:      delay,
		logger:     logger,
		label:      func(card int) string { return fmt.Sprintf("card %d", card) },
	}
	for i := range b.slotToCard {
		b.slotToCard[i] = NoCard
	}
	for i := range b.cardToSlot {
		b.cardToSlot[i] = NoSlot
	}
	for p := range b.marks {
		b.marks[p] = make([]bool, slots)
	}
	return b
}

// SetLabeler sets how cards are named in display events.
func (b *Board) SetLabeler(label func(card int) string) {
	b.label = label
}

// Label names card for display.
func (b *Board) Label(card int) string {
	return b.label(card)
}

// SetRound tags subsequent display events with the given round.
func (b *Board) SetRound(round int) {
	b.round.Store(int64(round))
}

// Round returns the current round tag.
func (b *Board) Round() int {
	return int(b.round.Load())
}

// Size returns the number of slots.
func (b *Board) Size() int {
	return len(b.slotToCard)
}

// Players returns the number of mark rows.
func (b *Board) Players() int {
	return len(b.marks)
}

func (b *Board) validSlot(slot int) bool {
	return slot >= 0 && slot < len(b.slotToCard)
}

func (b *Board) validPlayer(player int) bool {
	return player >= 0 && player < len(b.marks)
}

// PlaceMark marks slot for player. It is a no-op returning false when the
// slot is empty, already marked by the player, or the player holds MaxMarks.
func (b *Board) PlaceMark(player, slot int) bool {
	if !b.validSlot(slot) || !b.validPlayer(player) {
		return false
	}
	b.grid.RLock()
	defer b.grid.RUnlock()
	b.slots[slot].Lock()
	defer b.slots[slot].Unlock()
	b.rows[player].Lock()
	defer b.rows[player].Unlock()

	if b.slotToCard[slot] == NoCard || b.marks[player][slot] || b.markCount[player] >= MaxMarks {
		return false
	}
	b.marks[player][slot] = true
	b.markCount[player]++
	b.logger.Log(log.NewMarkPlacedEvent(b.Round(), player, slot))
	return true
}

// RemoveMark clears player's mark on slot and reports whether one was there.
func (b *Board) RemoveMark(player, slot int) bool {
	if !b.validSlot(slot) || !b.validPlayer(player) {
		return false
	}
	b.grid.RLock()
	defer b.grid.RUnlock()
	b.slots[slot].Lock()
	defer b.slots[slot].Unlock()
	b.rows[player].Lock()
	defer b.rows[player].Unlock()

	if !b.marks[player][slot] {
		return false
	}
	b.marks[player][slot] = false
	b.markCount[player]--
	b.logger.Log(log.NewMarkRemovedEvent(b.Round(), player, slot))
	return true
}

// CountMarks returns how many marks player holds.
func (b *Board) CountMarks(player int) int {
	if !b.validPlayer(player) {
		return 0
	}
	b.grid.RLock()
	defer b.grid.RUnlock()
	b.rows[player].Lock()
	defer b.rows[player].Unlock()
	return b.markCount[player]
}

// MarkedSlots returns the slots player has marked, in slot order.
func (b *Board) MarkedSlots(player int) []int {
	if !b.validPlayer(player) {
		return nil
	}
	b.grid.RLock()
	defer b.grid.RUnlock()
	b.rows[player].Lock()
	defer b.rows[player].Unlock()
	return b.markedSlots(player)
}

// MarkedCards returns the cards under player's marks, in slot order.
func (b *Board) MarkedCards(player int) []int {
	if !b.validPlayer(player) {
		return nil
	}
	b.grid.RLock()
	defer b.grid.RUnlock()
	b.rows[player].Lock()
	defer b.rows[player].Unlock()
	return b.markedCards(player)
}

func (b *Board) markedSlots(player int) []int {
	var slots []int
	for s, marked := range b.marks[player] {
		if marked {
			slots = append(slots, s)
		}
	}
	return slots
}

func (b *Board) markedCards(player int) []int {
	var cards []int
	for s, marked := range b.marks[player] {
		if marked {
			cards = append(cards, b.slotToCard[s])
		}
	}
	return cards
}

// CardAt returns the card in slot, or NoCard.
func (b *Board) CardAt(slot int) int {
	if !b.validSlot(slot) {
		return NoCard
	}
	b.grid.RLock()
	defer b.grid.RUnlock()
	return b.slotToCard[slot]
}

// SlotOf returns the slot holding card, or NoSlot.
func (b *Board) SlotOf(card int) int {
	if card < 0 || card >= len(b.cardToSlot) {
		return NoSlot
	}
	b.grid.RLock()
	defer b.grid.RUnlock()
	return b.cardToSlot[card]
}

// Cards returns the cards on the table in slot order.
func (b *Board) Cards() []int {
	b.grid.RLock()
	defer b.grid.RUnlock()
	return b.cards()
}

func (b *Board) cards() []int {
	var out []int
	for _, c := range b.slotToCard {
		if c != NoCard {
			out = append(out, c)
		}
	}
	return out
}

// CountCards returns the number of occupied slots.
func (b *Board) CountCards() int {
	return len(b.Cards())
}

// BoardView is a point-in-time copy of the board.
type BoardView struct {
	Slots []int   // card per slot, NoCard if empty
	Marks [][]int // marked slots per player
}

// Snapshot returns a consistent copy of every slot and mark.
func (b *Board) Snapshot() BoardView {
	b.grid.RLock()
	defer b.grid.RUnlock()
	for p := range b.rows {
		b.rows[p].Lock()
	}
	defer func() {
		for p := range b.rows {
			b.rows[p].Unlock()
		}
	}()

	v := BoardView{
		Slots: append([]int(nil), b.slotToCard...),
		Marks: make([][]int, len(b.marks)),
	}
	for p := range b.marks {
		v.Marks[p] = b.markedSlots(p)
	}
	return v
}

// Verify checks the board invariants: the slot and card mappings mirror each
// other, marks sit only on cards, and no player exceeds MaxMarks.
func (b *Board) Verify() error {
	b.grid.RLock()
	defer b.grid.RUnlock()
	for p := range b.rows {
		b.rows[p].Lock()
	}
	defer func() {
		for p := range b.rows {
			b.rows[p].Unlock()
		}
	}()

	for s, c := range b.slotToCard {
		if c != NoCard && b.cardToSlot[c] != s {
			return fmt.Errorf("%w: slot %d holds card %d mapped to slot %d", ErrInvariant, s, c, b.cardToSlot[c])
		}
	}
	for c, s := range b.cardToSlot {
		if s != NoSlot && b.slotToCard[s] != c {
			return fmt.Errorf("%w: card %d mapped to slot %d holding %d", ErrInvariant, c, s, b.slotToCard[s])
		}
	}
	for p, row := range b.marks {
		n := 0
		for s, marked := range row {
			if !marked {
				continue
			}
			n++
			if b.slotToCard[s] == NoCard {
				return fmt.Errorf("%w: player %d marks empty slot %d", ErrInvariant, p, s)
			}
		}
		if n != b.markCount[p] || n > MaxMarks {
			return fmt.Errorf("%w: player %d holds %d marks (counted %d)", ErrInvariant, p, n, b.markCount[p])
		}
	}
	return nil
}

// Exclusive runs fn with the whole grid locked. Every structural change goes
// through here; no mark operation can interleave with fn.
func (b *Board) Exclusive(fn func(tx *GridTx) error) error {
	b.grid.Lock()
	defer b.grid.Unlock()
	return fn(&GridTx{b: b})
}

// GridTx is the view of the board handed to Exclusive callbacks. It must not
// escape the callback.
type GridTx struct {
	b *Board
}

// Place puts card in an empty slot after the simulated placement delay.
func (tx *GridTx) Place(card, slot int) error {
	b := tx.b
	if !b.validSlot(slot) {
		return fmt.Errorf("place card %d: %w: %d", card, ErrBadSlot, slot)
	}
	if card < 0 || card >= len(b.cardToSlot) {
		return fmt.Errorf("place card %d: %w", card, ErrBadCard)
	}
	if b.slotToCard[slot] != NoCard {
		return fmt.Errorf("place card %d: %w: slot %d", card, ErrSlotOccupied, slot)
	}
	if b.cardToSlot[card] != NoSlot {
		return fmt.Errorf("place card %d: %w", card, ErrCardOnTable)
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.cardToSlot[card] = slot
	b.slotToCard[slot] = card
	b.logger.Log(log.NewCardPlacedEvent(b.Round(), slot, card, b.label(card)))
	return nil
}

// Remove takes the card out of slot and clears every mark on it. It returns
// the card and the players whose marks were cleared.
func (tx *GridTx) Remove(slot int) (int, []int, error) {
	b := tx.b
	if !b.validSlot(slot) {
		return NoCard, nil, fmt.Errorf("remove: %w: %d", ErrBadSlot, slot)
	}
	card := b.slotToCard[slot]
	if card == NoCard {
		return NoCard, nil, fmt.Errorf("remove: %w: %d", ErrSlotEmpty, slot)
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.cardToSlot[card] = NoSlot
	b.slotToCard[slot] = NoCard

	var cleared []int
	for p := range b.marks {
		if b.marks[p][slot] {
			b.marks[p][slot] = false
			b.markCount[p]--
			cleared = append(cleared, p)
			b.logger.Log(log.NewMarkRemovedEvent(b.Round(), p, slot))
		}
	}
	b.logger.Log(log.NewCardRemovedEvent(b.Round(), slot, card, b.label(card)))
	return card, cleared, nil
}

// CardAt returns the card in slot, or NoCard.
func (tx *GridTx) CardAt(slot int) int {
	if !tx.b.validSlot(slot) {
		return NoCard
	}
	return tx.b.slotToCard[slot]
}

// SlotOf returns the slot holding card, or NoSlot.
func (tx *GridTx) SlotOf(card int) int {
	if card < 0 || card >= len(tx.b.cardToSlot) {
		return NoSlot
	}
	return tx.b.cardToSlot[card]
}

// Cards returns the cards on the table in slot order.
func (tx *GridTx) Cards() []int {
	return tx.b.cards()
}

// EmptySlots returns the unoccupied slots in order.
func (tx *GridTx) EmptySlots() []int {
	var out []int
	for s, c := range tx.b.slotToCard {
		if c == NoCard {
			out = append(out, s)
		}
	}
	return out
}

// MarkedCards returns the cards under player's marks.
func (tx *GridTx) MarkedCards(player int) []int {
	if !tx.b.validPlayer(player) {
		return nil
	}
	return tx.b.markedCards(player)
}

// SetSlots maps each card to its slot, sorted by slot.
func (tx *GridTx) SetSlots(cards []int) []int {
	slots := make([]int, 0, len(cards))
	for _, c := range cards {
		slots = append(slots, tx.SlotOf(c))
	}
	sort.Ints(slots)
	return slots
}
