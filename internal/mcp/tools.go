package mcp

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/log"
)

var (
	// sessionMu guards activeSession; tool handlers may run concurrently.
	sessionMu sync.Mutex
	// activeSession is the singleton game session (one per stdio process).
	activeSession *GameSession

	// baseConfig is the table template, set by main.
	baseConfig = config.Default()
	// processLog receives lifecycle logs, set by main.
	processLog = log.Discard()
)

// SetConfig sets the table template used by start_game.
func SetConfig(cfg config.Config) {
	baseConfig = cfg
}

// SetLogger sets where session lifecycle logs go.
func SetLogger(entry *logrus.Entry) {
	processLog = entry
}

// RegisterTools adds all game tools to the MCP server.
func RegisterTools(s *server.MCPServer) {
	s.AddTool(startGameTool(), handleStartGame)
	s.AddTool(signalTool(), handleSignal)
	s.AddTool(getGameStateTool(), handleGetGameState)
	s.AddTool(getHintsTool(), handleGetHints)
	s.AddTool(endGameTool(), handleEndGame)
}

// --- Tool definitions ---

func startGameTool() mcp.Tool {
	return mcp.NewTool("start_game",
		mcp.WithDescription("Start a new Set table. You are player 0; the other players are computer opponents that "+
			"mark cards on their own in real time. Returns the dealt board. Three cards form a set when every "+
			"feature is all-same or all-different across them."),
		mcp.WithNumber("players", mcp.Description("Number of players including you (default from the server config)")),
		mcp.WithNumber("seed", mcp.Description("Shuffle and computer-player seed; 0 picks a random one")),
	)
}

func signalTool() mcp.Tool {
	return mcp.NewTool("signal",
		mcp.WithDescription("Toggle your mark on a slot. Placing your third mark claims a set; the call returns once "+
			"the claim is judged. Signals are ignored while you are frozen after a claim."),
		mcp.WithNumber("slot", mcp.Required(), mcp.Description("0-based slot index, row by row")),
	)
}

func getGameStateTool() mcp.Tool {
	return mcp.NewTool("get_game_state",
		mcp.WithDescription("Get the current board, scores, countdown and the events since the last call. Read-only."),
	)
}

func getHintsTool() mcp.Tool {
	return mcp.NewTool("get_hints",
		mcp.WithDescription("List every set currently on the board as slot triples. Read-only."),
	)
}

func endGameTool() mcp.Tool {
	return mcp.NewTool("end_game",
		mcp.WithDescription("Stop the running table and report the final scores."),
	)
}

// --- Tool handlers ---

func currentSession() *GameSession {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return activeSession
}

func handleStartGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if activeSession != nil && !activeSession.over() {
		return mcp.NewToolResultError("A game is already running. Only one game at a time is supported."), nil
	}

	cfg := baseConfig
	cfg.Players = request.GetInt("players", cfg.Players)
	cfg.Seed = int64(request.GetInt("seed", int(cfg.Seed)))
	if cfg.Players < 1 {
		return mcp.NewToolResultError("players must be >= 1"), nil
	}

	sess, err := NewGameSession(cfg, cfg.Rules(), processLog)
	if err != nil {
		return mcp.NewToolResultErrorf("Failed to start game: %v", err), nil
	}
	activeSession = sess
	processLog.WithFields(logrus.Fields{"game": sess.ctrl.ID.String(), "players": cfg.Players}).Info("mcp game started")

	return mcp.NewToolResultText(respondJSON(sess.respond())), nil
}

func handleSignal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := currentSession()
	if sess == nil {
		return mcp.NewToolResultError("No game is running. Use start_game first."), nil
	}
	if sess.over() {
		return mcp.NewToolResultError("The game is over. Use start_game to play again."), nil
	}

	slot := request.GetInt("slot", -1)
	if size := sess.ctrl.Board().Size(); slot < 0 || slot >= size {
		return mcp.NewToolResultErrorf("Invalid slot %d. Must be 0-%d.", slot, size-1), nil
	}

	accepted := sess.Signal(slot)
	resp := sess.respond()
	resp.Accepted = &accepted
	return mcp.NewToolResultText(respondJSON(resp)), nil
}

func handleGetGameState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := currentSession()
	if sess == nil {
		return mcp.NewToolResultError("No game is running. Use start_game first."), nil
	}
	return mcp.NewToolResultText(respondJSON(sess.respond())), nil
}

func handleGetHints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := currentSession()
	if sess == nil {
		return mcp.NewToolResultError("No game is running. Use start_game first."), nil
	}
	resp := sess.respond()
	resp.Hints = sess.ctrl.Hints()
	return mcp.NewToolResultText(respondJSON(resp)), nil
}

func handleEndGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionMu.Lock()
	sess := activeSession
	activeSession = nil
	sessionMu.Unlock()
	if sess == nil {
		return mcp.NewToolResultError("No game is running."), nil
	}

	sess.End()
	processLog.WithField("game", sess.ctrl.ID.String()).Info("mcp game ended")
	return mcp.NewToolResultText(respondJSON(sess.respond())), nil
}
