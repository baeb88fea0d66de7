package game

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/log"
)

// SetRules is the set-validity collaborator.
type SetRules interface {
	// IsSet reports whether the three cards form a set.
	IsSet(cards []int) bool
	// FindSets returns up to limit sets among cards; limit <= 0 means all.
	FindSets(cards []int, limit int) [][]int
}

// describer is implemented by rules that can name cards for display.
type describer interface {
	Describe(card int) string
}

// TableConfig holds everything needed to create a controller.
type TableConfig struct {
	Config config.Config
	Rules  SetRules
	Deck   []int // card ids; defaults to 0..DeckSize-1
	Logger log.EventLogger
	Log    *logrus.Entry
}

// Result summarizes a finished game.
type Result struct {
	Winners     []int
	TopScore    int
	Scores      []int
	Rounds      int
	Interrupted bool // ended by Terminate or context cancellation
}

// Controller is the dealer: it owns the deck, the turn timer and the claim
// queue, and runs the single decision loop of the table.
type Controller struct {
	ID     uuid.UUID
	cfg    config.Config
	rules  SetRules
	board  *Board
	agents []*Agent
	claims *ClaimQueue
	logger log.EventLogger
	plog   *logrus.Entry
	now    func() time.Time
	rng    *rand.Rand

	deckMu    sync.Mutex
	deck      []int
	discarded int

	round      atomic.Int64
	deadline   atomic.Int64 // unix nanos
	terminated atomic.Bool
	quit       chan struct{}
	stopOnce   sync.Once
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewController builds the board, the claim queue and one agent per player.
func NewController(tc TableConfig) *Controller {
	cfg := tc.Config
	logger := tc.Logger
	if logger == nil {
		logger = log.NopLogger{}
	}
	plog := tc.Log
	if plog == nil {
		plog = log.Discard()
	}

	deck := tc.Deck
	if deck == nil {
		deck = make([]int, cfg.DeckSize())
		for i := range deck {
			deck[i] = i
		}
	}
	deck = append([]int(nil), deck...)
	maxCard := 0
	for _, c := range deck {
		if c+1 > maxCard {
			maxCard = c + 1
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	id := uuid.New()
	plog = plog.WithField("game", id.String())

	c := &Controller{
		ID:     id,
		cfg:    cfg,
		rules:  tc.Rules,
		board:  NewBoard(cfg.TableSize(), maxCard, cfg.Players, cfg.TableDelay, logger),
		claims: NewClaimQueue(),
		logger: logger,
		plog:   plog.WithField("component", "dealer"),
		now:    time.Now,
		rng:    rand.New(rand.NewSource(seed)),
		deck:   deck,
		quit:   make(chan struct{}),
		ready:  make(chan struct{}),
	}
	if d, ok := tc.Rules.(describer); ok {
		c.board.SetLabeler(d.Describe)
	}

	for p := 0; p < cfg.Players; p++ {
		c.agents = append(c.agents, NewAgent(AgentConfig{
			ID:            p,
			Name:          cfg.PlayerName(p),
			Human:         cfg.Human(p),
			PointFreeze:   cfg.PointFreeze,
			PenaltyFreeze: cfg.PenaltyFreeze,
			Pace:          cfg.AIPace,
			Seed:          seed,
		}, c.board, c, logger, plog.WithField("component", "player")))
	}
	return c
}

func (c *Controller) Board() *Board { return c.board }

func (c *Controller) Config() config.Config { return c.cfg }

func (c *Controller) Agents() []*Agent { return c.agents }

func (c *Controller) Agent(p int) *Agent { return c.agents[p] }

// Round returns the current deal round (1-based once running).
func (c *Controller) Round() int {
	return int(c.round.Load())
}

// DeckCount returns the number of cards not on the table and not yet won.
func (c *Controller) DeckCount() int {
	c.deckMu.Lock()
	defer c.deckMu.Unlock()
	return len(c.deck)
}

// Discarded returns the number of cards taken off the table by found sets.
func (c *Controller) Discarded() int {
	c.deckMu.Lock()
	defer c.deckMu.Unlock()
	return c.discarded
}

// Ready is closed once the first deal has been made, or on termination.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Remaining returns the time left before the next reshuffle.
func (c *Controller) Remaining() time.Duration {
	d := time.Unix(0, c.deadline.Load()).Sub(c.now())
	if d < 0 {
		return 0
	}
	return d
}

// Run plays the game until no sets remain or the controller is terminated.
// It returns a non-nil error only on an internal invariant violation.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	c.plog.Info("dealer starting")
	defer c.plog.Info("dealer terminated")

	for _, a := range c.agents {
		a.Start()
	}
	stop := context.AfterFunc(ctx, c.Terminate)
	defer stop()

	var err error
	for !c.shouldFinish() {
		c.nextRound()

		var over bool
		if over, err = c.deal(); err != nil || over {
			break
		}
		if over, err = c.timerLoop(); err != nil || over {
			break
		}
		c.updateTimerDisplay(false)
		if c.stopping() {
			break
		}
		if err = c.clearTable("turn timeout"); err != nil {
			break
		}
	}

	interrupted := c.stopping()
	if err != nil {
		c.plog.WithError(err).Error("dealer aborted")
		c.Terminate()
		return Result{}, err
	}

	res := c.announceWinners()
	res.Interrupted = interrupted
	c.Terminate()
	return res, nil
}

func (c *Controller) nextRound() {
	r := c.round.Add(1)
	c.board.SetRound(int(r))
	c.plog.WithField("round", r).Debug("new round")
}

// shouldFinish reports termination, or that the cards left hold no set.
func (c *Controller) shouldFinish() bool {
	if c.stopping() {
		return true
	}
	return !c.anySetLeft()
}

// anySetLeft searches the deck and the table together.
func (c *Controller) anySetLeft() bool {
	c.deckMu.Lock()
	pool := append([]int(nil), c.deck...)
	c.deckMu.Unlock()
	pool = append(pool, c.board.Cards()...)
	return len(c.rules.FindSets(pool, 1)) > 0
}

// Submit admits player's claim if it holds exactly MaxMarks and is not
// already queued, then blocks until the claim leaves the queue.
func (c *Controller) Submit(player int, done <-chan struct{}) ClaimOutcome {
	admitted := c.claims.Admit(player, func() bool {
		return c.board.CountMarks(player) == MaxMarks
	})
	if !admitted {
		if c.claims.Closed() {
			return ClaimAborted
		}
		return ClaimNotAdmitted
	}
	c.plog.WithField("player", player).Debug("claim admitted")
	return c.claims.Await(player, done)
}

// PendingClaims returns the queued players, oldest first.
func (c *Controller) PendingClaims() []int {
	return c.claims.Pending()
}

// deal fills every empty slot from the deck. If the table then holds no set,
// it clears and deals again while the deck and table together still hold
// one; otherwise the game is over. Re-deals always shuffle: in deck order a
// clear only rotates the deck, which can keep a set apart forever.
func (c *Controller) deal() (over bool, err error) {
	redeal := false
	for !c.stopping() {
		placed := 0
		err := c.board.Exclusive(func(tx *GridTx) error {
			c.deckMu.Lock()
			defer c.deckMu.Unlock()
			if !c.cfg.NoShuffle || redeal {
				c.rng.Shuffle(len(c.deck), func(i, j int) { c.deck[i], c.deck[j] = c.deck[j], c.deck[i] })
			}
			for _, slot := range tx.EmptySlots() {
				if len(c.deck) == 0 {
					break
				}
				card := c.deck[0]
				if err := tx.Place(card, slot); err != nil {
					return fmt.Errorf("deal: %w", err)
				}
				c.deck = c.deck[1:]
				placed++
			}
			return nil
		})
		if err != nil {
			return false, err
		}
		if placed > 0 {
			c.updateTimerDisplay(true)
		}
		c.readyOnce.Do(func() { close(c.ready) })

		onTable := c.board.Cards()
		if len(c.rules.FindSets(onTable, 1)) > 0 {
			if c.cfg.Hints {
				for _, h := range c.Hints() {
					c.logger.Log(log.NewHintEvent(c.Round(), h))
				}
			}
			return false, nil
		}

		if c.DeckCount() == 0 || !c.anySetLeft() {
			if err := c.clearTable("no sets left"); err != nil {
				return false, err
			}
			return true, nil
		}
		if err := c.clearTable("no set on table"); err != nil {
			return false, err
		}
		redeal = true
	}
	return false, nil
}

// clearTable returns every card to the deck, clearing all marks, and
// releases any claim that lost its marks.
func (c *Controller) clearTable(reason string) error {
	outcomes := make(map[int]ClaimOutcome)
	err := c.board.Exclusive(func(tx *GridTx) error {
		c.deckMu.Lock()
		defer c.deckMu.Unlock()
		for slot := 0; slot < c.board.Size(); slot++ {
			if tx.CardAt(slot) == NoCard {
				continue
			}
			card, cleared, err := tx.Remove(slot)
			if err != nil {
				return fmt.Errorf("clear table: %w", err)
			}
			c.deck = append(c.deck, card)
			for _, p := range cleared {
				outcomes[p] = ClaimInvalidated
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.logger.Log(log.NewReshuffleEvent(c.Round(), reason))
	c.plog.WithField("reason", reason).Info("table cleared")
	c.claims.Release(outcomes)
	return nil
}

// timerLoop runs until the turn deadline passes, resolving claims and
// refilling the table as they arrive.
func (c *Controller) timerLoop() (over bool, err error) {
	for !c.stopping() && c.now().Before(c.deadlineTime()) {
		c.sleepUntilWokenOrTimeout()
		c.updateTimerDisplay(false)

		removed, err := c.resolveClaims()
		if err != nil {
			return false, err
		}
		if removed {
			if over, err := c.deal(); err != nil || over {
				return over, err
			}
		}
	}
	return false, nil
}

func (c *Controller) deadlineTime() time.Time {
	return time.Unix(0, c.deadline.Load())
}

// sleepUntilWokenOrTimeout waits for a claim admission, the deadline or
// termination, refreshing the countdown every poll interval.
func (c *Controller) sleepUntilWokenOrTimeout() {
	timer := time.NewTimer(c.cfg.PollInterval)
	defer timer.Stop()
	for {
		wait := c.deadlineTime().Sub(c.now())
		if wait <= 0 {
			return
		}
		if wait > c.cfg.PollInterval {
			wait = c.cfg.PollInterval
		}
		timer.Reset(wait)

		select {
		case <-c.claims.Wake():
			return
		case <-c.quit:
			return
		case <-timer.C:
			c.updateTimerDisplay(false)
		}
	}
}

// resolveClaims resolves queued claims one at a time in admission order. It
// reports whether any cards left the table.
func (c *Controller) resolveClaims() (bool, error) {
	removed := false
	for !c.stopping() {
		player, ok := c.claims.Head()
		if !ok {
			break
		}
		found, err := c.resolve(player)
		if err != nil {
			return removed, err
		}
		removed = removed || found
	}
	return removed, nil
}

// resolve judges player's claim. On a set the three cards leave the game and
// any other player that lost a mark has its claim invalidated.
func (c *Controller) resolve(player int) (bool, error) {
	outcomes := make(map[int]ClaimOutcome)
	valid := false
	err := c.board.Exclusive(func(tx *GridTx) error {
		claimed := tx.MarkedCards(player)
		if len(claimed) != MaxMarks {
			return fmt.Errorf("%w: player %d claims with %d marks", ErrInvariant, player, len(claimed))
		}
		labels := make([]string, len(claimed))
		for i, card := range claimed {
			labels[i] = c.board.label(card)
		}
		c.logger.Log(log.NewClaimEvent(c.Round(), player, labels))

		valid = c.rules.IsSet(claimed)
		if !valid {
			return nil
		}
		for _, card := range claimed {
			_, cleared, err := tx.Remove(tx.SlotOf(card))
			if err != nil {
				return fmt.Errorf("resolve claim of player %d: %w", player, err)
			}
			for _, p := range cleared {
				if p != player {
					outcomes[p] = ClaimInvalidated
				}
			}
		}
		c.deckMu.Lock()
		c.discarded += len(claimed)
		c.deckMu.Unlock()
		return nil
	})
	if err != nil {
		return false, err
	}

	agent := c.agents[player]
	entry := c.plog.WithField("player", player)
	if valid {
		agent.Award()
		outcomes[player] = ClaimAwarded
		c.logger.Log(log.NewSetFoundEvent(c.Round(), player))
		entry.Info("set found")
	} else {
		agent.Penalize()
		outcomes[player] = ClaimPenalized
		c.logger.Log(log.NewPenaltyEvent(c.Round(), player))
		entry.Info("wrong claim penalized")
	}
	for p, o := range outcomes {
		if o == ClaimInvalidated && c.claims.Contains(p) {
			c.logger.Log(log.NewClaimVoidedEvent(c.Round(), p))
		}
	}
	c.claims.Release(outcomes)
	return valid, nil
}

// updateTimerDisplay pushes the countdown and freeze timers to the display,
// resetting the deadline first when reset is set.
func (c *Controller) updateTimerDisplay(reset bool) {
	now := c.now()
	if reset {
		c.deadline.Store(now.Add(c.cfg.TurnTimeout).UnixNano())
	}
	remaining := c.deadlineTime().Sub(now)
	c.logger.Log(log.NewCountdownEvent(c.Round(), remaining, remaining < c.cfg.TurnTimeoutWarning))
	for _, a := range c.agents {
		c.logger.Log(log.NewFreezeEvent(c.Round(), a.ID(), a.FreezeRemaining()))
	}
}

// Hints returns every set on the table as sorted slot triples.
func (c *Controller) Hints() [][]int {
	var hints [][]int
	_ = c.board.Exclusive(func(tx *GridTx) error {
		for _, set := range c.rules.FindSets(tx.Cards(), 0) {
			hints = append(hints, tx.SetSlots(set))
		}
		return nil
	})
	sort.Slice(hints, func(i, j int) bool {
		for k := range hints[i] {
			if hints[i][k] != hints[j][k] {
				return hints[i][k] < hints[j][k]
			}
		}
		return false
	})
	return hints
}

// Scores returns every player's score.
func (c *Controller) Scores() []int {
	scores := make([]int, len(c.agents))
	for i, a := range c.agents {
		scores[i] = a.Score()
	}
	return scores
}

// announceWinners reports every player tied at the top score.
func (c *Controller) announceWinners() Result {
	scores := c.Scores()
	top := 0
	for _, s := range scores {
		if s > top {
			top = s
		}
	}
	var winners []int
	for p, s := range scores {
		if s == top {
			winners = append(winners, p)
		}
	}
	c.logger.Log(log.NewWinnersEvent(c.Round(), winners, top))
	c.plog.WithFields(logrus.Fields{"winners": winners, "score": top}).Info("game over")
	return Result{Winners: winners, TopScore: top, Scores: scores, Rounds: c.Round()}
}

func (c *Controller) stopping() bool {
	return c.terminated.Load()
}

// Terminate stops and joins every agent, then stops the dealer loop. It is
// safe to call more than once and from any goroutine.
func (c *Controller) Terminate() {
	c.stopOnce.Do(func() {
		for i := len(c.agents) - 1; i >= 0; i-- {
			c.agents[i].Terminate()
		}
		c.terminated.Store(true)
		c.claims.Close()
		close(c.quit)
		c.readyOnce.Do(func() { close(c.ready) })
	})
}

// Terminated reports whether Terminate has completed its work.
func (c *Controller) Terminated() bool {
	return c.stopping()
}
