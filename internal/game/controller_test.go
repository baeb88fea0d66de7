package game

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterkuimelis/setx/internal/cards"
	"github.com/peterkuimelis/setx/internal/log"
)

func assertCardsConserved(t *testing.T, c *Controller, total int) {
	t.Helper()
	assert.Equal(t, total, c.DeckCount()+c.Board().CountCards()+c.Discarded())
}

// dealt prepares a controller's first round without starting its loop.
func dealt(t *testing.T, tt *testTable) {
	t.Helper()
	tt.nextRound()
	over, err := tt.deal()
	require.NoError(t, err)
	require.False(t, over)
}

// submitAsync admits player's claim and waits until it is queued.
func submitAsync(t *testing.T, c *Controller, player int) <-chan ClaimOutcome {
	t.Helper()
	out := make(chan ClaimOutcome, 1)
	go func() { out <- c.Submit(player, nil) }()
	require.Eventually(t, func() bool { return c.claims.Contains(player) }, time.Second, time.Millisecond)
	return out
}

func TestSingleSetGame(t *testing.T) {
	cfg := testConfig(2, 2, 1)
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}), []int{0, 1, 2, 3, 4, 5})
	tt.start(t)

	b := tt.Board()
	assert.Equal(t, []int{0, 1, 2, 3}, b.Cards())

	a := tt.Agent(0)
	for _, slot := range slotsOf(t, b, 0, 1, 2) {
		a.Signal(slot)
	}

	res, err := tt.wait(t)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Winners)
	assert.Equal(t, 1, res.TopScore)
	assert.False(t, res.Interrupted)
	assert.Equal(t, 3, tt.Discarded())
	assertCardsConserved(t, tt.Controller, 6)
	assert.Zero(t, b.CountCards(), "final clear returns the table to the deck")

	require.NotEmpty(t, tt.events.EventsOfType(log.EventSetFound))
	winners := tt.events.EventsOfType(log.EventWinners)
	require.Len(t, winners, 1)
	assert.Equal(t, []int{0}, winners[0].Players)

	for _, ag := range tt.Agents() {
		assert.Equal(t, AgentTerminated, ag.State())
	}
}

func TestClaimsResolveInAdmissionOrder(t *testing.T) {
	cfg := testConfig(2, 3, 3)
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}), []int{0, 1, 2, 3, 4, 5})
	dealt(t, tt)

	b := tt.Board()
	for _, p := range []int{0, 1, 2} {
		for _, slot := range slotsOf(t, b, 3, 4, 5) {
			require.True(t, b.PlaceMark(p, slot))
		}
	}
	outs := map[int]<-chan ClaimOutcome{}
	for _, p := range []int{2, 0, 1} {
		outs[p] = submitAsync(t, tt.Controller, p)
	}
	assert.Equal(t, []int{2, 0, 1}, tt.PendingClaims())

	removed, err := tt.resolveClaims()
	require.NoError(t, err)
	assert.False(t, removed)

	var order []int
	for _, e := range tt.events.EventsOfType(log.EventClaim) {
		order = append(order, e.Player)
	}
	assert.Equal(t, []int{2, 0, 1}, order)
	for p, ch := range outs {
		assert.Equal(t, ClaimPenalized, <-ch, "player %d", p)
		assert.Equal(t, 3, b.CountMarks(p), "wrong marks stay on the table")
	}
	assert.Len(t, tt.events.EventsOfType(log.EventPenalty), 3)
}

func TestFoundSetInvalidatesOverlappingClaim(t *testing.T) {
	cfg := testConfig(2, 3, 2)
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}, []int{0, 3, 4}), []int{0, 1, 2, 3, 4, 5, 6, 7})
	dealt(t, tt)

	b := tt.Board()
	for _, slot := range slotsOf(t, b, 0, 1, 2) {
		require.True(t, b.PlaceMark(0, slot))
	}
	for _, slot := range slotsOf(t, b, 0, 3, 4) {
		require.True(t, b.PlaceMark(1, slot))
	}
	won := submitAsync(t, tt.Controller, 0)
	lost := submitAsync(t, tt.Controller, 1)

	removed, err := tt.resolveClaims()
	require.NoError(t, err)
	assert.True(t, removed)

	assert.Equal(t, ClaimAwarded, <-won)
	assert.Equal(t, ClaimInvalidated, <-lost)
	assert.Equal(t, 1, tt.Agent(0).Score())
	assert.Zero(t, tt.Agent(1).Score())
	assert.Equal(t, 2, b.CountMarks(1))
	assert.Empty(t, tt.PendingClaims())
	assert.Empty(t, tt.events.EventsOfType(log.EventPenalty))

	voided := tt.events.EventsOfType(log.EventClaimVoided)
	require.Len(t, voided, 1)
	assert.Equal(t, 1, voided[0].Player)
	assertCardsConserved(t, tt.Controller, 8)
}

func TestResolveRejectsIncompleteHand(t *testing.T) {
	cfg := testConfig(2, 2, 1)
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}), []int{0, 1, 2, 3})
	dealt(t, tt)
	require.True(t, tt.Board().PlaceMark(0, 0))

	_, err := tt.resolve(0)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestWrongClaimFreezesPlayer(t *testing.T) {
	cfg := testConfig(2, 2, 1)
	cfg.PenaltyFreeze = time.Hour
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}), []int{0, 1, 2, 3})
	tt.start(t)

	b := tt.Board()
	a := tt.Agent(0)
	for _, slot := range slotsOf(t, b, 1, 2, 3) {
		require.True(t, a.Signal(slot))
	}
	assert.Equal(t, ClaimPenalized, a.LastOutcome())
	assert.True(t, a.Frozen())
	assert.False(t, a.Signal(slotsOf(t, b, 0)[0]), "frozen agent ignores signals")
	assert.Equal(t, []int{1, 2, 3}, b.MarkedCards(0))
	assert.Zero(t, a.Score())
}

func TestRedealWhenTableHasNoSet(t *testing.T) {
	cfg := testConfig(2, 2, 1)
	tt := newTestTable(t, cfg, newStubRules([]int{4, 5, 6}), []int{0, 1, 2, 3, 4, 5, 6, 7})
	dealt(t, tt)

	assert.Subset(t, tt.Board().Cards(), []int{4, 5, 6})
	reshuffles := tt.events.EventsOfType(log.EventReshuffle)
	require.NotEmpty(t, reshuffles)
	assert.Contains(t, reshuffles[0].Details, "no set on table")
	assertCardsConserved(t, tt.Controller, 8)
}

func TestRedealReachesSetKeptApartByDeckOrder(t *testing.T) {
	// In deck order a 3-slot table only ever sees {0,1,2} and {3,4,5}.
	cfg := testConfig(1, 3, 1)
	tt := newTestTable(t, cfg, newStubRules([]int{0, 3, 4}), []int{0, 1, 2, 3, 4, 5})
	tt.nextRound()

	type dealResult struct {
		over bool
		err  error
	}
	out := make(chan dealResult, 1)
	go func() {
		over, err := tt.deal()
		out <- dealResult{over, err}
	}()

	select {
	case r := <-out:
		require.NoError(t, r.err)
		assert.False(t, r.over)
	case <-time.After(2 * time.Second):
		tt.Terminate()
		t.Fatalf("deal never settled after %d reshuffles", len(tt.events.EventsOfType(log.EventReshuffle)))
	}
	assert.ElementsMatch(t, []int{0, 3, 4}, tt.Board().Cards())
	assertCardsConserved(t, tt.Controller, 6)
}

func TestTurnTimeoutInvalidatesQueuedClaim(t *testing.T) {
	cfg := testConfig(2, 2, 1)
	cfg.PenaltyFreeze = time.Hour
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}), []int{0, 1, 2, 3, 4})
	dealt(t, tt)

	b := tt.Board()
	for _, slot := range slotsOf(t, b, 1, 2, 3) {
		require.True(t, b.PlaceMark(0, slot))
	}
	claim := submitAsync(t, tt.Controller, 0)

	require.NoError(t, tt.clearTable("turn timeout"))

	assert.Equal(t, ClaimInvalidated, <-claim)
	assert.Zero(t, tt.Agent(0).Score())
	assert.False(t, tt.Agent(0).Frozen(), "no penalty for a claim the clear voided")
	assert.Zero(t, b.CountMarks(0))
	assert.Empty(t, tt.PendingClaims())
	assert.Empty(t, tt.events.EventsOfType(log.EventPenalty))
	assert.Empty(t, tt.events.EventsOfType(log.EventScore))
	assertCardsConserved(t, tt.Controller, 5)
}

func TestTurnTimeoutClearsTable(t *testing.T) {
	cfg := testConfig(2, 2, 1)
	cfg.TurnTimeout = 60 * time.Millisecond
	cfg.TurnTimeoutWarning = 20 * time.Millisecond
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}), []int{0, 1, 2, 3, 4})
	tt.start(t)

	require.Eventually(t, func() bool {
		if tt.Round() < 2 {
			return false
		}
		for _, e := range tt.events.EventsOfType(log.EventReshuffle) {
			if strings.Contains(e.Details, "turn timeout") {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	var warned bool
	for _, e := range tt.events.EventsOfType(log.EventCountdown) {
		warned = warned || e.Warn
	}
	assert.True(t, warned, "countdown turns to warning near the deadline")
}

func TestHintsListTableSets(t *testing.T) {
	cfg := testConfig(2, 3, 1)
	cfg.Hints = true
	tt := newTestTable(t, cfg, newStubRules([]int{0, 4, 5}, []int{1, 2, 3}), []int{0, 1, 2, 3, 4, 5})
	dealt(t, tt)

	assert.Equal(t, [][]int{{0, 4, 5}, {1, 2, 3}}, tt.Hints())
	assert.Len(t, tt.events.EventsOfType(log.EventHint), 2)
}

func TestContextCancelTerminates(t *testing.T) {
	cfg := testConfig(3, 4, 3)
	cfg.HumanPlayers = 0
	cfg.AIPace = time.Millisecond
	cfg.TurnTimeout = time.Hour
	cfg.PenaltyFreeze = 10 * time.Millisecond
	cfg.NoShuffle = false
	tt := newTestTable(t, cfg, cards.DefaultRules(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	var res Result
	var err error
	go func() {
		defer close(done)
		res, err = tt.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.True(t, tt.Terminated())
	for _, a := range tt.Agents() {
		assert.Equal(t, AgentTerminated, a.State())
	}
	require.NoError(t, tt.Board().Verify())
	assertCardsConserved(t, tt.Controller, 81)
	assert.Equal(t, 3*sum(res.Scores), tt.Discarded())
}

func TestComputerPlayersFinishGame(t *testing.T) {
	cfg := testConfig(2, 2, 2)
	cfg.FeatureCount = 2
	cfg.HumanPlayers = 0
	cfg.AIPace = time.Millisecond
	cfg.NoShuffle = false
	tt := newTestTable(t, cfg, cards.Rules{FeatureSize: 3, FeatureCount: 2}, nil)
	tt.start(t)

	res, err := tt.wait(t)
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.NotEmpty(t, res.Winners)
	assert.Equal(t, 3*sum(res.Scores), tt.Discarded())
	assertCardsConserved(t, tt.Controller, 9)
	assert.NoError(t, tt.Board().Verify())
}

func TestTerminateIsIdempotent(t *testing.T) {
	cfg := testConfig(2, 2, 2)
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}), []int{0, 1, 2, 3})
	tt.start(t)

	tt.Terminate()
	tt.Terminate()
	res, err := tt.wait(t)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.ElementsMatch(t, []int{0, 1}, res.Winners, "everyone ties at zero")
	assert.False(t, tt.Agent(0).Signal(0))
}

func sum(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}

func TestPartialRefillResetsDeadline(t *testing.T) {
	cfg := testConfig(2, 2, 1)
	tt := newTestTable(t, cfg, newStubRules([]int{0, 1, 2}, []int{3, 4, 5}), []int{0, 1, 2, 3, 4, 5})
	dealt(t, tt)
	before := tt.deadlineTime()
	time.Sleep(20 * time.Millisecond)

	b := tt.Board()
	for _, slot := range slotsOf(t, b, 0, 1, 2) {
		require.True(t, b.PlaceMark(0, slot))
	}
	claim := submitAsync(t, tt.Controller, 0)
	removed, err := tt.resolveClaims()
	require.NoError(t, err)
	require.True(t, removed)
	assert.Equal(t, ClaimAwarded, <-claim)

	over, err := tt.deal()
	require.NoError(t, err)
	assert.False(t, over)
	assert.Equal(t, 3, b.CountCards(), "the deck ran out before the table was full")
	assert.True(t, tt.deadlineTime().After(before))
}
