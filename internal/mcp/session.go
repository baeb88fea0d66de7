package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/game"
	"github.com/peterkuimelis/setx/internal/net"
)

// ToolPlayer is the seat driven through MCP tools.
const ToolPlayer = 0

// ToolResponse is the JSON envelope returned by all MCP tools.
type ToolResponse struct {
	Game     string          `json:"game"`
	Events   []net.EventView `json:"events"`
	State    *net.StateView  `json:"state,omitempty"`
	Accepted *bool           `json:"accepted,omitempty"` // for "signal"
	Outcome  string          `json:"outcome,omitempty"`  // last claim outcome
	Hints    [][]int         `json:"hints,omitempty"`
	GameOver bool            `json:"game_over"`
	Winners  []int           `json:"winners,omitempty"`
	Scores   []int           `json:"scores,omitempty"`
	Result   string          `json:"result,omitempty"`
}

// GameSession holds the state of a single MCP game session: one table where
// player 0 follows tool calls and every other seat plays on its own.
type GameSession struct {
	ctrl   *game.Controller
	seat   *MCPController
	cfg    config.Config
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	events   []net.EventView
	gameOver bool
	result   game.Result
	text     string
}

// NewGameSession creates and starts a table. It returns once the first deal
// is on the board.
func NewGameSession(cfg config.Config, rules game.SetRules, plog *logrus.Entry) (*GameSession, error) {
	cfg.HumanPlayers = 1
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid table: %w", err)
	}

	sess := &GameSession{cfg: cfg, done: make(chan struct{})}
	sess.seat = NewMCPController(ToolPlayer, sess)
	sess.ctrl = game.NewController(game.TableConfig{
		Config: cfg,
		Rules:  rules,
		Logger: sess.seat,
		Log:    plog,
	})
	sess.seat.bind(sess.ctrl.Agent(ToolPlayer))

	ctx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	go func() {
		defer close(sess.done)
		res, err := sess.ctrl.Run(ctx)

		sess.mu.Lock()
		defer sess.mu.Unlock()
		sess.gameOver = true
		sess.result = res
		if err != nil {
			sess.text = fmt.Sprintf("error: %v", err)
			return
		}
		sess.text = summarize(res, cfg)
	}()

	<-sess.ctrl.Ready()
	return sess, nil
}

// Signal forwards a slot toggle for the tool-driven seat. When the signal
// ended the game, it waits for the final result.
func (s *GameSession) Signal(slot int) bool {
	ok := s.seat.Signal(slot)
	if s.ctrl.Terminated() {
		s.waitDone(time.Second)
	}
	return ok
}

// End stops the table and waits for it to wind down.
func (s *GameSession) End() {
	s.cancel()
	<-s.done
}

func (s *GameSession) waitDone(limit time.Duration) {
	select {
	case <-s.done:
	case <-time.After(limit):
	}
}

// maxPendingEvents caps the events held between tool calls; the oldest go
// first.
const maxPendingEvents = 512

// appendEvent adds an event to the session's event log. Thread-safe.
func (s *GameSession) appendEvent(ev net.EventView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= maxPendingEvents {
		n := copy(s.events, s.events[len(s.events)-maxPendingEvents+1:])
		s.events = s.events[:n]
	}
	s.events = append(s.events, ev)
}

// drainEvents returns all accumulated events and clears the buffer.
func (s *GameSession) drainEvents() []net.EventView {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events
	s.events = nil
	if events == nil {
		events = []net.EventView{}
	}
	return events
}

// respond builds a ToolResponse with accumulated events and the current state.
func (s *GameSession) respond() *ToolResponse {
	resp := &ToolResponse{
		Game:    s.ctrl.ID.String(),
		Events:  s.drainEvents(),
		State:   net.BuildStateView(s.ctrl, ToolPlayer),
		Outcome: outcomeText(s.seat.agent.LastOutcome()),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gameOver {
		resp.GameOver = true
		resp.Winners = s.result.Winners
		resp.Scores = s.result.Scores
		resp.Result = s.text
	}
	return resp
}

func (s *GameSession) over() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameOver
}

func outcomeText(o game.ClaimOutcome) string {
	if o == game.ClaimNotAdmitted {
		return ""
	}
	return o.String()
}

// summarize renders the final standings as one line.
func summarize(res game.Result, cfg config.Config) string {
	if len(res.Winners) == 0 {
		return "no winner"
	}
	names := make([]string, len(res.Winners))
	for i, w := range res.Winners {
		names[i] = cfg.PlayerName(w)
	}
	verb := "wins"
	if len(names) > 1 {
		verb = "tie"
	}
	return fmt.Sprintf("%s %s with %d point(s)", strings.Join(names, ", "), verb, res.TopScore)
}

// respondJSON marshals a ToolResponse to a JSON string.
func respondJSON(resp *ToolResponse) string {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal error: %v"}`, err)
	}
	return string(data)
}
