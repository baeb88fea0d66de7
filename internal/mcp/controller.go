package mcp

import (
	"github.com/peterkuimelis/setx/internal/game"
	"github.com/peterkuimelis/setx/internal/log"
	"github.com/peterkuimelis/setx/internal/net"
)

// MCPController is the seat driven by tool calls. It forwards signals to its
// agent and collects display events for the next tool response.
type MCPController struct {
	player  int
	agent   *game.Agent
	session *GameSession
}

// NewMCPController creates the tool-driven seat of a session. The agent is
// bound once the table exists, since the table needs the controller as its
// display sink first.
func NewMCPController(player int, session *GameSession) *MCPController {
	return &MCPController{player: player, session: session}
}

func (c *MCPController) bind(agent *game.Agent) {
	c.agent = agent
}

// Signal toggles slot for the tool-driven agent and blocks until the toggle
// and any claim it triggered are resolved. It reports whether the signal was
// accepted; frozen or finished agents drop it.
func (c *MCPController) Signal(slot int) bool {
	return c.agent.Signal(slot)
}

// Log implements log.EventLogger. Timer ticks are not kept; the state view
// already carries the countdown.
func (c *MCPController) Log(event log.GameEvent) {
	if event.Type.Tick() {
		return
	}
	c.session.appendEvent(*net.NewEventView(event))
}

// Events implements log.EventLogger.
func (c *MCPController) Events() []log.GameEvent {
	return nil
}
