package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/log"
	setxnet "github.com/peterkuimelis/setx/internal/net"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := os.Args[1]
	switch cmd {
	case "play":
		runPlay(ctx, os.Args[2:])
	case "host":
		runHost(ctx, os.Args[2:])
	case "join":
		runJoin(ctx, os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  setx play [--config FILE] [--players N] [--human]")
	fmt.Println("  setx host [--config FILE] [--port P] [--humans N]")
	fmt.Println("  setx join [--addr ADDR] [--name NAME]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  play    Run a table in this terminal, optionally with you as Player 1")
	fmt.Println("  host    Start a game server and wait for the human players to join")
	fmt.Println("  join    Connect to a game server")
}

// setup loads .env, the YAML config and the process logger.
func setup(path string) (config.Config, *logrus.Entry) {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger, err := log.NewProcessLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg, logrus.NewEntry(logger)
}

func runPlay(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	path := fs.String("config", "", "path to table YAML")
	players := fs.Int("players", 0, "number of players (overrides config)")
	human := fs.Bool("human", false, "play as Player 1 from the keyboard")
	fs.Parse(args)

	cfg, plog := setup(*path)
	if *players > 0 {
		cfg.Players = *players
	}
	if *human {
		cfg.HumanPlayers = 1
	}
	if err := cfg.Validate(); err != nil {
		plog.WithError(err).Fatal("invalid table")
	}

	lg := &setxnet.LocalGame{Config: cfg, Rules: cfg.Rules(), In: os.Stdin, Out: os.Stdout, Log: plog}
	if _, err := lg.Run(ctx); err != nil {
		plog.WithError(err).Fatal("game failed")
	}
}

func runHost(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("host", flag.ExitOnError)
	path := fs.String("config", "", "path to table YAML")
	port := fs.String("port", "9000", "TCP port to listen on")
	humans := fs.Int("humans", -1, "number of remote players (overrides config)")
	fs.Parse(args)

	cfg, plog := setup(*path)
	if *humans >= 0 {
		cfg.HumanPlayers = *humans
		if cfg.Players < cfg.HumanPlayers {
			cfg.Players = cfg.HumanPlayers
		}
	}
	if err := cfg.Validate(); err != nil {
		plog.WithError(err).Fatal("invalid table")
	}

	srv := &setxnet.Server{Config: cfg, Rules: cfg.Rules(), Port: *port, Out: os.Stdout, Log: plog}
	if _, err := srv.Run(ctx); err != nil {
		plog.WithError(err).Fatal("server failed")
	}
}

func runJoin(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	addr := fs.String("addr", "localhost:9000", "server address to connect to")
	name := fs.String("name", os.Getenv("USER"), "name shown to the other players")
	fs.Parse(args)

	if err := setxnet.Connect(ctx, *addr, *name, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
