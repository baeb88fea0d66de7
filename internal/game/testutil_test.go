package game

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/log"
)

// stubRules treats exactly the listed triples as sets.
type stubRules struct {
	sets [][]int
}

func newStubRules(sets ...[]int) *stubRules {
	r := &stubRules{}
	for _, s := range sets {
		r.sets = append(r.sets, sortedCopy(s))
	}
	return r
}

func sortedCopy(cards []int) []int {
	out := append([]int(nil), cards...)
	sort.Ints(out)
	return out
}

func (r *stubRules) IsSet(cards []int) bool {
	if len(cards) != 3 {
		return false
	}
	got := sortedCopy(cards)
	for _, s := range r.sets {
		if s[0] == got[0] && s[1] == got[1] && s[2] == got[2] {
			return true
		}
	}
	return false
}

func (r *stubRules) FindSets(cards []int, limit int) [][]int {
	present := make(map[int]bool, len(cards))
	for _, c := range cards {
		present[c] = true
	}
	var found [][]int
	for _, s := range r.sets {
		if present[s[0]] && present[s[1]] && present[s[2]] {
			found = append(found, append([]int(nil), s...))
			if limit > 0 && len(found) == limit {
				break
			}
		}
	}
	return found
}

// testConfig is a small, fast, fully human table.
func testConfig(rows, cols, players int) config.Config {
	cfg := config.Default()
	cfg.Rows, cfg.Columns = rows, cols
	cfg.Players = players
	cfg.HumanPlayers = players
	cfg.TableDelay = 0
	cfg.TurnTimeout = 5 * time.Second
	cfg.TurnTimeoutWarning = time.Second
	cfg.PointFreeze = 0
	cfg.PenaltyFreeze = 0
	cfg.PollInterval = 10 * time.Millisecond
	cfg.NoShuffle = true
	cfg.Seed = 1
	return cfg
}

type testTable struct {
	*Controller
	events *log.MemoryLogger
	done   chan struct{}
	result Result
	err    error
}

func newTestTable(t *testing.T, cfg config.Config, rules SetRules, deck []int) *testTable {
	t.Helper()
	events := log.NewMemoryLogger()
	c := NewController(TableConfig{Config: cfg, Rules: rules, Deck: deck, Logger: events})
	return &testTable{Controller: c, events: events, done: make(chan struct{})}
}

// start runs the controller in the background and waits for the first deal.
func (tt *testTable) start(t *testing.T) {
	t.Helper()
	go func() {
		defer close(tt.done)
		tt.result, tt.err = tt.Run(context.Background())
	}()
	require.Eventually(t, func() bool {
		return tt.Board().CountCards() > 0 || tt.finished()
	}, 2*time.Second, 5*time.Millisecond, "first deal")
	t.Cleanup(func() {
		tt.Terminate()
		<-tt.done
	})
}

func (tt *testTable) finished() bool {
	select {
	case <-tt.done:
		return true
	default:
		return false
	}
}

func (tt *testTable) wait(t *testing.T) (Result, error) {
	t.Helper()
	select {
	case <-tt.done:
	case <-time.After(5 * time.Second):
		t.Fatal("game did not finish")
	}
	return tt.result, tt.err
}

// slotsOf returns the slots currently holding the given cards.
func slotsOf(t *testing.T, b *Board, cards ...int) []int {
	t.Helper()
	slots := make([]int, len(cards))
	for i, c := range cards {
		slots[i] = b.SlotOf(c)
		require.NotEqual(t, NoSlot, slots[i], "card %d not on table", c)
	}
	return slots
}

// fakeDealer records submissions and answers with a fixed outcome.
type fakeDealer struct {
	outcome   ClaimOutcome
	submitted chan int
}

func newFakeDealer(outcome ClaimOutcome) *fakeDealer {
	return &fakeDealer{outcome: outcome, submitted: make(chan int, 16)}
}

func (d *fakeDealer) Submit(player int, done <-chan struct{}) ClaimOutcome {
	select {
	case d.submitted <- player:
	default:
	}
	return d.outcome
}

// blockingDealer admits every claim and holds it until done closes.
type blockingDealer struct {
	waiting chan int
}

func (d *blockingDealer) Submit(player int, done <-chan struct{}) ClaimOutcome {
	d.waiting <- player
	<-done
	return ClaimAborted
}

// boardWithCards returns a board with card i dealt to slot i.
func boardWithCards(t *testing.T, slots, players int, logger log.EventLogger) *Board {
	t.Helper()
	b := NewBoard(slots, slots, players, 0, logger)
	require.NoError(t, b.Exclusive(func(tx *GridTx) error {
		for s := 0; s < slots; s++ {
			if err := tx.Place(s, s); err != nil {
				return err
			}
		}
		return nil
	}))
	return b
}
