package net

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/game"
	"github.com/peterkuimelis/setx/internal/log"
)

// LocalGame runs a whole table in this process. At most one seat is human:
// player 1 reads slot numbers from In. Display goes to Out.
type LocalGame struct {
	Config config.Config
	Rules  game.SetRules
	In     io.Reader
	Out    io.Writer
	Log    *logrus.Entry
}

// Run plays until the game ends or ctx is cancelled.
func (lg *LocalGame) Run(ctx context.Context) (game.Result, error) {
	if lg.Config.HumanPlayers > 1 {
		return game.Result{}, fmt.Errorf("local play supports one human player, got %d", lg.Config.HumanPlayers)
	}
	out := &lockedWriter{w: lg.Out}
	display := log.NewAsyncLogger(log.NewTextLogger(out), log.DefaultBacklog)

	c := game.NewController(game.TableConfig{
		Config: lg.Config,
		Rules:  lg.Rules,
		Logger: display,
		Log:    lg.Log,
	})

	if lg.Config.HumanPlayers == 1 && lg.In != nil {
		fmt.Fprintf(out, "You are P1 (%s). Type a slot number to mark or unmark it, s for the board, q to quit.\n",
			lg.Config.PlayerName(0))
		go readLocalInput(lg.In, out, c)
	}

	res, err := c.Run(ctx)
	plog := lg.Log
	if plog == nil {
		plog = log.Discard()
	}
	drainDisplays([]*log.AsyncLogger{display}, plog)
	if err != nil {
		return res, err
	}
	fmt.Fprintf(out, "Game over: %s\n", describeResult(res, lg.Config))
	return res, nil
}

func readLocalInput(in io.Reader, out io.Writer, c *game.Controller) {
	<-c.Ready()
	agent := c.Agent(0)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if c.Terminated() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "q", "quit":
			c.Terminate()
			return
		case "s", "state":
			renderLocked(out, BuildStateView(c, 0))
		default:
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > c.Board().Size() {
				fmt.Fprintf(out, "Enter a slot number between 1 and %d\n", c.Board().Size())
				continue
			}
			if !agent.Signal(n - 1) {
				if c.Terminated() {
					return
				}
				fmt.Fprintf(out, "! frozen for %.1fs\n", agent.FreezeRemaining().Seconds())
				continue
			}
			renderLocked(out, BuildStateView(c, 0))
		}
	}
}

// renderLocked renders the whole board in one write so it is not interleaved
// with event lines.
func renderLocked(w io.Writer, sv *StateView) {
	var buf bytes.Buffer
	RenderState(&buf, sv)
	w.Write(buf.Bytes())
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
