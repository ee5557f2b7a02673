// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command teleclaude runs the daemon, plus a thin client surface for
// scripting against a running daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/instruktai/teleclaude/internal/app"
	"github.com/instruktai/teleclaude/internal/config"
	"github.com/instruktai/teleclaude/pkg/client"
)

// Version is set at build time.
var Version = "dev"

// Exit codes per the CLI contract.
const (
	exitOK        = 0
	exitInvalid   = 2
	exitTransient = 64
	exitFatal     = 70
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("teleclaude", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to teleclaude.hjson (auto-discovered if empty)")
	socketPath := fs.String("socket", "/tmp/teleclaude-api.sock", "Daemon API socket for client commands")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return exitInvalid
	}
	if *showVersion {
		fmt.Println("teleclaude", Version)
		return exitOK
	}

	rest := fs.Args()
	command := "serve"
	if len(rest) > 0 {
		command = rest[0]
		rest = rest[1:]
	}

	switch command {
	case "serve":
		return serve(*configPath, *debug)
	case "sessions":
		return listSessions(*socketPath, rest)
	case "send":
		return sendMessage(*socketPath, rest)
	case "help":
		usage(fs)
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		usage(fs)
		return exitInvalid
	}
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: teleclaude [flags] [serve|sessions|send|help]")
	fs.PrintDefaults()
}

func serve(configPath string, debug bool) int {
	if configPath == "" {
		found, err := config.NewLoader().FindConfig()
		if err == nil {
			configPath = found
		}
	}

	a, err := app.New(app.Options{ConfigPath: configPath, Debug: debug})
	if err != nil {
		fmt.Fprintln(os.Stderr, "teleclaude:", err)
		return exitInvalid
	}

	ctx := context.Background()
	if err := a.Initialize(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "teleclaude:", err)
		return exitFatal
	}
	if err := a.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "teleclaude:", err)
		return exitFatal
	}
	return exitOK
}

func listSessions(socketPath string, args []string) int {
	computer := ""
	if len(args) > 0 {
		computer = args[0]
	}

	c := client.NewUnix(socketPath)
	sessions, err := c.Sessions.List(context.Background(), computer)
	if err != nil {
		return clientError(err)
	}
	for _, s := range sessions {
		summary := s.LastSummary
		if summary == "" {
			summary = "-"
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", s.ID, s.Computer, s.Agent, s.Status, summary)
	}
	return exitOK
}

func sendMessage(socketPath string, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: teleclaude send <session-id> <text…>")
		return exitInvalid
	}
	sessionID := args[0]
	text := strings.Join(args[1:], " ")

	c := client.NewUnix(socketPath)
	if err := c.Sessions.Message(context.Background(), sessionID, text); err != nil {
		return clientError(err)
	}
	return exitOK
}

// clientError maps API errors to the exit-code contract: 2 invalid input,
// 64 transient (caller may retry), 70 fatal.
func clientError(err error) int {
	fmt.Fprintln(os.Stderr, "teleclaude:", err)

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "BAD_REQUEST", "NOT_FOUND":
			return exitInvalid
		case "TRANSIENT":
			return exitTransient
		}
		return exitFatal
	}
	// Connection-level failures are transient: the daemon may be restarting.
	return exitTransient
}
