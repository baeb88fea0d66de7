package game

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/log"
)

// AgentState is where an agent's loop currently is.
type AgentState int32

const (
	AgentIdle AgentState = iota
	AgentActing
	AgentSubmitting
	AgentTerminated
)

func (s AgentState) String() string {
	switch s {
	case AgentIdle:
		return "idle"
	case AgentActing:
		return "acting"
	case AgentSubmitting:
		return "submitting"
	case AgentTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Claimant admits a player's claim and blocks until it is resolved,
// invalidated or aborted. Closing done abandons the wait.
type Claimant interface {
	Submit(player int, done <-chan struct{}) ClaimOutcome
}

// AgentConfig holds per-agent settings.
type AgentConfig struct {
	ID            int
	Name          string
	Human         bool          // driven by external Signal calls only
	PointFreeze   time.Duration // freeze after a found set
	PenaltyFreeze time.Duration // freeze after a wrong claim
	Pace          time.Duration // autonomous signal interval
	Seed          int64
}

type signalRequest struct {
	slot int
	done chan struct{}
}

// Agent is one player. Its own goroutine applies mark toggles handed over by
// Signal; autonomous agents run a second goroutine that calls Signal.
type Agent struct {
	id     int
	name   string
	human  bool
	board  *Board
	dealer Claimant
	logger log.EventLogger
	plog   *logrus.Entry
	now    func() time.Time

	pointFreeze   time.Duration
	penaltyFreeze time.Duration
	pace          time.Duration
	rng           *rand.Rand // autonomous loop only

	mu          sync.Mutex
	score       int
	freezeUntil time.Time
	penalized   bool
	lastOutcome ClaimOutcome

	state     atomic.Int32
	requests  chan signalRequest
	quit      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewAgent creates an agent bound to board and dealer. Call Start to run it.
func NewAgent(cfg AgentConfig, board *Board, dealer Claimant, logger log.EventLogger, plog *logrus.Entry) *Agent {
	if logger == nil {
		logger = log.NopLogger{}
	}
	if plog == nil {
		plog = log.Discard()
	}
	pace := cfg.Pace
	if pace <= 0 {
		pace = 250 * time.Millisecond
	}
	return &Agent{
		id:            cfg.ID,
		name:          cfg.Name,
		human:         cfg.Human,
		board:         board,
		dealer:        dealer,
		logger:        logger,
		plog:          plog.WithField("player", cfg.ID),
		now:           time.Now,
		pointFreeze:   cfg.PointFreeze,
		penaltyFreeze: cfg.PenaltyFreeze,
		pace:          pace,
		rng:           rand.New(rand.NewSource(cfg.Seed + int64(cfg.ID) + 1)),
		requests:      make(chan signalRequest),
		quit:          make(chan struct{}),
	}
}

func (a *Agent) ID() int { return a.id }

func (a *Agent) Name() string { return a.name }

func (a *Agent) Human() bool { return a.human }

// State returns the loop's current state.
func (a *Agent) State() AgentState {
	return AgentState(a.state.Load())
}

func (a *Agent) setState(s AgentState) {
	a.state.Store(int32(s))
}

// Start launches the agent loop and, for non-human agents, the autonomous
// signal generator. Extra calls are ignored.
func (a *Agent) Start() {
	a.startOnce.Do(func() {
		a.wg.Add(1)
		go a.run()
		if !a.human {
			a.wg.Add(1)
			go a.autoplay()
		}
	})
}

func (a *Agent) run() {
	defer a.wg.Done()
	a.plog.Info("player starting")
	defer a.plog.Info("player terminated")
	for {
		select {
		case <-a.quit:
			return
		case req := <-a.requests:
			if !a.stopping() {
				a.apply(req.slot)
			}
			close(req.done)
		}
	}
}

// apply toggles the mark on slot and, on reaching MaxMarks, submits the claim
// until it is admitted or can no longer be made.
func (a *Agent) apply(slot int) {
	a.setState(AgentActing)
	defer a.setState(AgentIdle)

	if !a.board.RemoveMark(a.id, slot) && a.board.CountMarks(a.id) < MaxMarks {
		a.board.PlaceMark(a.id, slot)
	}

	for !a.stopping() && a.board.CountMarks(a.id) == MaxMarks && !a.Penalized() {
		a.setState(AgentSubmitting)
		out := a.dealer.Submit(a.id, a.quit)
		if out == ClaimNotAdmitted {
			continue
		}
		a.mu.Lock()
		a.lastOutcome = out
		a.mu.Unlock()
		a.plog.WithField("outcome", out).Debug("claim released")
		break
	}

	a.mu.Lock()
	a.penalized = false
	a.mu.Unlock()
}

// autoplay signals a random slot every pace; with MaxMarks held it picks one
// of its own marks so the hand keeps changing.
func (a *Agent) autoplay() {
	defer a.wg.Done()
	a.plog.Info("computer starting")
	defer a.plog.Info("computer terminated")

	ticker := time.NewTicker(a.pace)
	defer ticker.Stop()
	for {
		select {
		case <-a.quit:
			return
		case <-ticker.C:
		}
		slot := a.rng.Intn(a.board.Size())
		if marked := a.board.MarkedSlots(a.id); len(marked) == MaxMarks {
			slot = marked[a.rng.Intn(len(marked))]
		}
		a.Signal(slot)
	}
}

// Signal hands slot to the agent loop and blocks until the toggle, and any
// claim it triggered, is fully processed. It returns false without effect
// while the agent is frozen or once it is terminated.
func (a *Agent) Signal(slot int) bool {
	if a.stopping() || a.Frozen() {
		return false
	}
	req := signalRequest{slot: slot, done: make(chan struct{})}
	select {
	case a.requests <- req:
	case <-a.quit:
		return false
	}
	select {
	case <-req.done:
		return true
	case <-a.quit:
		return false
	}
}

// Award freezes the agent for the point duration and adds a point.
func (a *Agent) Award() int {
	a.mu.Lock()
	a.freezeUntil = a.now().Add(a.pointFreeze)
	a.score++
	score := a.score
	a.mu.Unlock()

	a.logger.Log(log.NewScoreEvent(a.board.Round(), a.id, score))
	return score
}

// Penalize freezes the agent for the penalty duration and stops its loop
// from resubmitting the rejected marks.
func (a *Agent) Penalize() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freezeUntil = a.now().Add(a.penaltyFreeze)
	a.penalized = true
}

func (a *Agent) Score() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.score
}

func (a *Agent) Penalized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.penalized
}

// LastOutcome returns how the agent's most recent admitted claim ended.
func (a *Agent) LastOutcome() ClaimOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastOutcome
}

// Frozen reports whether signals are currently ignored.
func (a *Agent) Frozen() bool {
	return a.FreezeRemaining() > 0
}

// FreezeRemaining returns how long the current freeze lasts, or zero.
func (a *Agent) FreezeRemaining() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.freezeUntil.Sub(a.now())
	if d < 0 {
		return 0
	}
	return d
}

func (a *Agent) stopping() bool {
	select {
	case <-a.quit:
		return true
	default:
		return false
	}
}

// Terminate stops the agent and waits for its goroutines to exit.
func (a *Agent) Terminate() {
	a.stopOnce.Do(func() {
		close(a.quit)
	})
	a.wg.Wait()
	a.setState(AgentTerminated)
}
