package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/log"
	"github.com/peterkuimelis/setx/internal/net"
)

func quietTable() config.Config {
	cfg := config.Default()
	cfg.TableDelay = 0
	cfg.AIPace = time.Hour // opponents never move
	cfg.PointFreeze = 0
	cfg.PenaltyFreeze = 0
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (*mcp.CallToolResult, ToolResponse) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)

	var resp ToolResponse
	if !res.IsError {
		require.NotEmpty(t, res.Content)
		text, ok := res.Content[0].(mcp.TextContent)
		require.True(t, ok)
		require.NoError(t, json.Unmarshal([]byte(text.Text), &resp))
	}
	return res, resp
}

func setup(t *testing.T) {
	t.Helper()
	SetConfig(quietTable())
	SetLogger(log.Discard())
	t.Cleanup(func() {
		if sess := currentSession(); sess != nil {
			sess.End()
		}
		sessionMu.Lock()
		activeSession = nil
		sessionMu.Unlock()
	})
}

func TestToolsNeedSession(t *testing.T) {
	setup(t)
	for name, h := range map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"signal":         handleSignal,
		"get_game_state": handleGetGameState,
		"get_hints":      handleGetHints,
		"end_game":       handleEndGame,
	} {
		res, _ := call(t, h, map[string]any{"slot": 0})
		assert.True(t, res.IsError, name)
	}
}

func TestPlayFoundSetThroughTools(t *testing.T) {
	setup(t)

	res, start := call(t, handleStartGame, map[string]any{"players": 2, "seed": 7})
	require.False(t, res.IsError)
	require.NotNil(t, start.State)
	assert.Len(t, start.State.Slots, 12)
	assert.NotEmpty(t, start.Game)
	assert.False(t, start.GameOver)
	assert.NotEmpty(t, start.Events, "deal events")

	res, _ = call(t, handleStartGame, map[string]any{})
	assert.True(t, res.IsError, "second game while one is running")

	_, hints := call(t, handleGetHints, nil)
	require.NotEmpty(t, hints.Hints)
	set := hints.Hints[0]

	var last ToolResponse
	for _, slot := range set {
		_, last = call(t, handleSignal, map[string]any{"slot": slot})
		require.NotNil(t, last.Accepted)
		assert.True(t, *last.Accepted)
	}
	assert.Equal(t, "awarded", last.Outcome)
	assert.Equal(t, 1, last.State.Scores[0])

	var found bool
	for _, e := range last.Events {
		found = found || e.Type == "SetFound"
	}
	assert.True(t, found)

	_, state := call(t, handleGetGameState, nil)
	for _, e := range state.Events {
		assert.NotEqual(t, "SetFound", e.Type, "events are drained once")
	}
	assert.Equal(t, 1, state.State.Scores[0])
}

func TestSignalRejectsBadSlot(t *testing.T) {
	setup(t)
	call(t, handleStartGame, map[string]any{"players": 1})

	res, _ := call(t, handleSignal, map[string]any{"slot": 12})
	assert.True(t, res.IsError)
	res, _ = call(t, handleSignal, map[string]any{})
	assert.True(t, res.IsError)
}

func TestEndGameReportsScores(t *testing.T) {
	setup(t)
	call(t, handleStartGame, map[string]any{"players": 3})

	res, end := call(t, handleEndGame, nil)
	require.False(t, res.IsError)
	assert.True(t, end.GameOver)
	assert.Equal(t, []int{0, 0, 0}, end.Scores)
	assert.Equal(t, []int{0, 1, 2}, end.Winners)
	assert.Contains(t, end.Result, "tie with 0 point(s)")
	assert.Nil(t, currentSession())
}

func TestPendingEventsAreCapped(t *testing.T) {
	var sess GameSession
	for i := 0; i < 4*maxPendingEvents; i++ {
		sess.appendEvent(net.EventView{Seq: i})
	}
	events := sess.drainEvents()
	require.Len(t, events, maxPendingEvents)
	assert.Equal(t, 3*maxPendingEvents, events[0].Seq, "oldest events are dropped first")
	assert.Equal(t, 4*maxPendingEvents-1, events[len(events)-1].Seq)
	assert.Empty(t, sess.drainEvents())
}
