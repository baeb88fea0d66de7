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
	"github.com/peterkuimelis/setx/internal/web"
)

func main() {
	port := flag.Int("port", 8080, "HTTP port to listen on")
	gameAddr := flag.String("game", "localhost:9000", "default game server offered to browsers")
	path := flag.String("config", "", "path to table YAML")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger, err := log.NewProcessLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(cfg, *gameAddr, logrus.NewEntry(logger).WithField("component", "web"))
	if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", *port)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
