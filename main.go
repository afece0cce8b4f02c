// parley - a terminal chat client for OpenAI-compatible APIs.
//
// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/parleydev/parley/internal/cli"
	"github.com/parleydev/parley/internal/config"
	"github.com/parleydev/parley/internal/model"
	chatui "github.com/parleydev/parley/internal/ui/chat"
)

// Version information (set at build time).
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	setupLogging()

	cmd, args := cli.Parse()

	switch cmd {
	case cli.CmdTUI:
		runTUI(args)
	case cli.CmdAsk:
		cli.HandleAsk(args)
	case cli.CmdChat:
		cli.HandleChat(args)
	case cli.CmdHistory:
		if err := cli.HandleHistory(args); err != nil {
			cli.Fatal(err)
		}
	case cli.CmdSpeak:
		if err := cli.HandleSpeak(args); err != nil {
			cli.Fatal(err)
		}
	case cli.CmdModels:
		if err := cli.HandleModels(args); err != nil {
			cli.Fatal(err)
		}
	case cli.CmdConfig:
		if err := cli.HandleConfig(args); err != nil {
			cli.Fatal(err)
		}
	case cli.CmdVersion:
		cli.HandleVersion()
	case cli.CmdHelp:
		cli.HandleHelp(args)
	}
}

// setupLogging sends the standard logger to a file; stray log lines would
// corrupt the TUI and pollute piped output.
func setupLogging() {
	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return
	}
	dir := filepath.Join(home, ".parley")
	if err := os.MkdirAll(dir, 0700); err != nil {
		log.SetOutput(os.Stderr)
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "parley.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(f)
}

// runTUI launches the interactive chat interface.
func runTUI(rawArgs []string) {
	args := cli.NewArgParser(rawArgs)
	cfg := cli.LoadConfig()

	client, err := cli.BuildClient(cfg, args)
	if err != nil {
		cli.Fatal(err)
	}
	store, err := cli.OpenStore(cfg)
	if err != nil {
		cli.Fatal(err)
	}
	index := cli.OpenSearchIndex(cfg, store)
	if index != nil {
		defer index.Close()
	}

	var conv *model.Conversation
	if id := args.Flag("resume"); id != "" {
		conv, err = store.Load(id)
		if err != nil {
			cli.Fatal(err)
		}
	}

	speaker := cli.BuildSpeaker(cfg)

	view := chatui.New(chatui.Options{
		Streamer:     client,
		Conversation: conv,
		Store:        store,
		Index:        index,
		Speaker:      speaker,
		Config:       cfg,
		AutoSpeak:    cfg.Speech.Enabled && cfg.Speech.AutoSpeak && speaker != nil,
	})

	program := tea.NewProgram(view, tea.WithAltScreen())

	// Reload config edits live; the new value is picked up on the next
	// send through the global config.
	watcher, err := config.NewWatcher(nil)
	if err == nil {
		if err := watcher.Watch(); err == nil {
			defer watcher.Close()
		}
	}

	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
