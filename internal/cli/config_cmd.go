// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/parleydev/parley/internal/config"
	"github.com/parleydev/parley/internal/secrets"
)

const configUsage = `parley config - show or edit configuration

Usage:
  parley config                 Show all settings
  parley config get <key>       Print one setting (dotted key, e.g. api.model)
  parley config set <key> <value>
  parley config set-key [api-key]   Store the API key encrypted at rest
                                    (prompts without echo when omitted)
  parley config path            Print the config file location

Examples:
  parley config set api.model gpt-4o
  parley config set speech.voice nova
  parley config set-key sk-...
`

// HandleConfig dispatches the config subcommands.
func HandleConfig(rawArgs []string) error {
	args := NewArgParser(rawArgs)
	cfg := LoadConfig()

	switch args.Subcommand() {
	case "", "show", "list":
		return configShow(cfg)
	case "get":
		return configGet(cfg, args)
	case "set":
		return configSet(cfg, args)
	case "set-key":
		return configSetKey(cfg, args)
	case "path":
		return configPath()
	default:
		fmt.Print(configUsage)
		return fmt.Errorf("unknown config subcommand %q", args.Subcommand())
	}
}

func configShow(cfg *config.Config) error {
	for _, key := range config.Keys() {
		if key == "api.key" {
			// Never print the key, sealed or not.
			if cfg.API.Key != "" {
				fmt.Printf("%-28s (set)\n", key)
			} else {
				fmt.Printf("%-28s (unset)\n", key)
			}
			continue
		}
		value, err := cfg.Get(key)
		if err != nil {
			continue
		}
		fmt.Printf("%-28s %s\n", key, value)
	}
	return nil
}

func configGet(cfg *config.Config, args *ArgParser) error {
	rest := args.PositionalAfterSubcommand()
	if len(rest) == 0 {
		return fmt.Errorf("config get requires a key")
	}
	value, err := cfg.Get(rest[0])
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func configSet(cfg *config.Config, args *ArgParser) error {
	rest := args.PositionalAfterSubcommand()
	if len(rest) < 2 {
		return fmt.Errorf("config set requires a key and a value")
	}
	if err := cfg.Set(rest[0], rest[1]); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", rest[0], rest[1])
	return nil
}

// configSetKey seals the API key before writing it to disk. Without an
// argument it prompts with echo disabled so the key never lands in shell
// history.
func configSetKey(cfg *config.Config, args *ArgParser) error {
	var apiKey string
	if rest := args.PositionalAfterSubcommand(); len(rest) > 0 {
		apiKey = rest[0]
	} else if IsTTY() {
		fmt.Fprint(os.Stderr, "API key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}
		apiKey = strings.TrimSpace(string(raw))
	}
	if apiKey == "" {
		return fmt.Errorf("config set-key requires the API key")
	}

	keyPath, err := secrets.DefaultKeyPath()
	if err != nil {
		return err
	}
	sealed, err := secrets.NewKeychain(keyPath).Seal(apiKey)
	if err != nil {
		return err
	}
	cfg.API.Key = sealed
	if err := config.Save(cfg); err != nil {
		return err
	}
	fmt.Println("API key stored (encrypted at rest)")
	return nil
}

func configPath() error {
	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	fmt.Println(filepath.Join(dir, "config.toml"))
	return nil
}
