package net

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/game"
	"github.com/peterkuimelis/setx/internal/log"
)

// displayDrainTimeout bounds how long a finished game waits on a slow display.
var displayDrainTimeout = time.Second

// Server hosts one game. Every human seat is taken by a TCP client; the
// remaining seats are played by the computer.
type Server struct {
	Config config.Config
	Rules  game.SetRules
	Port   string
	Out    io.Writer // host display, nil for none
	Log    *logrus.Entry
}

// Run listens on Port and serves one game.
func (s *Server) Run(ctx context.Context) (game.Result, error) {
	ln, err := net.Listen("tcp", ":"+s.Port)
	if err != nil {
		return game.Result{}, fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	return s.Serve(ctx, ln)
}

// Serve waits on ln for one client per human seat, then runs the game until
// it ends, ctx is cancelled or a client leaves.
func (s *Server) Serve(ctx context.Context, ln net.Listener) (game.Result, error) {
	plog := s.Log
	if plog == nil {
		plog = log.Discard()
	}
	plog = plog.WithField("component", "server")
	cfg := s.Config
	cfg.PlayerNames = append([]string(nil), cfg.PlayerNames...)

	plog.WithFields(logrus.Fields{"addr": ln.Addr().String(), "seats": cfg.HumanPlayers}).Info("waiting for players")

	remotes, err := accept(ctx, ln, &cfg, plog)
	if err != nil {
		for _, rp := range remotes {
			rp.Close()
		}
		return game.Result{}, err
	}

	// Every sink is async: the table logs under its locks.
	var asyncs []*log.AsyncLogger
	if s.Out != nil {
		asyncs = append(asyncs, log.NewAsyncLogger(log.NewTextLogger(s.Out), log.DefaultBacklog))
	}
	for _, rp := range remotes {
		asyncs = append(asyncs, log.NewAsyncLogger(rp, log.DefaultBacklog))
	}
	sinks := make([]log.EventLogger, len(asyncs))
	for i, a := range asyncs {
		sinks[i] = a
	}

	c := game.NewController(game.TableConfig{
		Config: cfg,
		Rules:  s.Rules,
		Logger: log.NewMultiLogger(sinks...),
		Log:    s.Log,
	})

	for _, rp := range remotes {
		p := rp.Player()
		err := rp.SendWelcome(WelcomeView{
			Game:    c.ID.String(),
			Player:  p,
			Name:    cfg.PlayerName(p),
			Players: cfg.Players,
			Rows:    cfg.Rows,
			Columns: cfg.Columns,
		})
		if err != nil {
			plog.WithError(err).Warn("welcome failed")
		}
	}

	state := func(player int) *StateView { return BuildStateView(c, player) }

	g, gctx := errgroup.WithContext(ctx)
	var res game.Result
	g.Go(func() error {
		var err error
		res, err = c.Run(gctx)

		drainDisplays(asyncs, plog)
		text := describeResult(res, cfg)
		if err != nil {
			text = fmt.Sprintf("game aborted: %v", err)
		}
		for _, rp := range remotes {
			_ = rp.SendGameOver(res, text)
			rp.Close()
		}
		return err
	})
	for _, rp := range remotes {
		g.Go(func() error {
			select {
			case <-c.Ready():
			case <-gctx.Done():
			}
			err := rp.Serve(gctx, c.Agent(rp.Player()), state)
			// A departed client ends the game for everyone.
			c.Terminate()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

// drainDisplays flushes the display sinks, giving up on any that stay stuck
// past displayDrainTimeout. Closing the connections afterwards unblocks them.
func drainDisplays(asyncs []*log.AsyncLogger, plog *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), displayDrainTimeout)
	defer cancel()
	for _, a := range asyncs {
		if err := a.Shutdown(ctx); err != nil {
			plog.WithError(err).Warn("display did not drain")
		}
	}
}

// accept takes one connection per human seat, in seat order.
// A name sent in the handshake replaces the configured one.
func accept(ctx context.Context, ln net.Listener, cfg *config.Config, plog *logrus.Entry) ([]*RemotePlayer, error) {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var remotes []*RemotePlayer
	for p := 0; p < cfg.HumanPlayers; p++ {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return remotes, ctx.Err()
			}
			return remotes, fmt.Errorf("accept: %w", err)
		}
		rp := NewRemotePlayer(conn, p, plog)
		remotes = append(remotes, rp)

		name, err := rp.Join()
		if err != nil {
			return remotes, err
		}
		if name != "" {
			for len(cfg.PlayerNames) <= p {
				cfg.PlayerNames = append(cfg.PlayerNames, "")
			}
			cfg.PlayerNames[p] = name
		}
		plog.WithFields(logrus.Fields{"player": p, "name": cfg.PlayerName(p)}).Info("player joined")
	}
	return remotes, nil
}

// describeResult renders the final standings as one line.
func describeResult(res game.Result, cfg config.Config) string {
	if len(res.Winners) == 0 {
		return "no winner"
	}
	names := ""
	for i, w := range res.Winners {
		if i > 0 {
			names += ", "
		}
		names += cfg.PlayerName(w)
	}
	verb := "wins"
	if len(res.Winners) > 1 {
		verb = "tie"
	}
	out := fmt.Sprintf("%s %s with %d point(s)", names, verb, res.TopScore)
	if res.Interrupted {
		out += " (interrupted)"
	}
	return out
}
