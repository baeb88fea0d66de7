package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/peterkuimelis/setx/internal/config"
	"github.com/peterkuimelis/setx/internal/log"
	setxmcp "github.com/peterkuimelis/setx/internal/mcp"
)

func main() {
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
	// stdout carries the protocol
	logger, err := log.NewProcessLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	setxmcp.SetConfig(cfg)
	setxmcp.SetLogger(logrus.NewEntry(logger))

	s := server.NewMCPServer("setx", "1.0.0")
	setxmcp.RegisterTools(s)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
