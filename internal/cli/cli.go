// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
)

// Version information (set at build time).
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// COMMANDS
// =============================================================================

// Command identifies a top-level CLI command.
type Command int

const (
	CmdTUI Command = iota // Default: interactive chat TUI
	CmdAsk
	CmdChat
	CmdHistory
	CmdSpeak
	CmdModels
	CmdConfig
	CmdVersion
	CmdHelp
)

// Parse reads os.Args and returns the command plus its remaining arguments.
func Parse() (Command, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return CmdTUI, nil
	}

	switch args[0] {
	case "ask":
		return CmdAsk, args[1:]
	case "chat":
		return CmdChat, args[1:]
	case "history":
		return CmdHistory, args[1:]
	case "speak":
		return CmdSpeak, args[1:]
	case "models":
		return CmdModels, args[1:]
	case "config":
		return CmdConfig, args[1:]
	case "version", "--version", "-V":
		return CmdVersion, nil
	case "help", "--help", "-h":
		return CmdHelp, args[1:]
	default:
		// Bare flags (e.g. --model) go to the TUI.
		if len(args[0]) > 0 && args[0][0] == '-' {
			return CmdTUI, args
		}
		fmt.Fprintf(os.Stderr, "unknown command %q; run 'parley help'\n", args[0])
		os.Exit(2)
		return CmdHelp, nil
	}
}

// HandleVersion prints version information.
func HandleVersion() {
	fmt.Printf("parley %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
}

// HandleHelp prints usage for the whole tool or one command.
func HandleHelp(args []string) {
	topic := ""
	if len(args) > 0 {
		topic = args[0]
	}
	switch topic {
	case "ask":
		fmt.Print(askUsage)
	case "chat":
		fmt.Print(chatUsage)
	case "history":
		fmt.Print(historyUsage)
	case "speak":
		fmt.Print(speakUsage)
	case "config":
		fmt.Print(configUsage)
	default:
		fmt.Print(mainUsage)
	}
}

const mainUsage = `parley - a terminal chat client for OpenAI-compatible APIs

Usage:
  parley                 Launch the interactive chat TUI
  parley ask <question>  Ask one question and print the reply
  parley chat            Plain line-based chat (no TUI)
  parley history         List, show, search, or delete conversations
  parley speak <text>    Synthesize text to speech and play it
  parley models          List models available on the API
  parley config          Show or edit configuration
  parley version         Print version information
  parley help [command]  Show help for a command

Environment:
  PARLEY_API_KEY         API key (overrides config)
  PARLEY_BASE_URL        API base URL
  PARLEY_MODEL           Chat model
`
