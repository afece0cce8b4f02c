// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/parleydev/parley/internal/config"
	"github.com/parleydev/parley/internal/history"
	"github.com/parleydev/parley/internal/util"
)

const historyUsage = `parley history - manage stored conversations

Usage:
  parley history [list]            List conversations (newest first)
  parley history show <id>         Print one conversation
  parley history search <query>    Full-text search across messages
  parley history delete <id>       Delete one conversation
  parley history clear --confirm   Delete all conversations
  parley history reindex           Rebuild the search index

Flags:
  --json        Machine-readable output
  --limit N     Bound list/search results (default 20)
`

// HandleHistory dispatches the history subcommands.
func HandleHistory(rawArgs []string) error {
	args := NewArgParser(rawArgs)
	cfg := LoadConfig()

	store, err := OpenStore(cfg)
	if err != nil {
		return err
	}

	switch args.Subcommand() {
	case "", "list":
		return historyList(store, args)
	case "show":
		return historyShow(store, args)
	case "search":
		return historySearch(cfg, store, args)
	case "delete":
		return historyDelete(store, args)
	case "clear":
		return historyClear(store, args)
	case "reindex":
		return historyReindex(cfg, store)
	default:
		fmt.Print(historyUsage)
		return fmt.Errorf("unknown history subcommand %q", args.Subcommand())
	}
}

func historyList(store *history.Store, args *ArgParser) error {
	metas, err := store.List()
	if err != nil {
		return err
	}
	limit := args.FlagIntOrDefault("limit", 20)
	if len(metas) > limit {
		metas = metas[:limit]
	}

	if args.BoolFlag("json") {
		return json.NewEncoder(os.Stdout).Encode(metas)
	}
	if len(metas) == 0 {
		fmt.Println("no conversations yet")
		return nil
	}
	for _, meta := range metas {
		title := meta.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %s  %3d msgs  %s\n",
			util.ShortID(meta.ID),
			meta.UpdatedAt.Format("2006-01-02 15:04"),
			meta.MessageCount,
			util.TruncateRunes(title, 60),
		)
	}
	return nil
}

func historyShow(store *history.Store, args *ArgParser) error {
	id, err := resolveConversationID(store, args)
	if err != nil {
		return err
	}
	conv, err := store.Load(id)
	if err != nil {
		return err
	}

	if args.BoolFlag("json") {
		return json.NewEncoder(os.Stdout).Encode(conv)
	}

	fmt.Printf("# %s\n\n", conv.Title)
	for _, msg := range conv.Messages {
		fmt.Printf("[%s] %s\n%s\n\n",
			msg.Timestamp.Format("15:04"),
			msg.Role.DisplayName(),
			msg.Content,
		)
	}
	return nil
}

func historySearch(cfg *config.Config, store *history.Store, args *ArgParser) error {
	query := strings.Join(args.PositionalAfterSubcommand(), " ")
	if query == "" {
		return fmt.Errorf("search requires a query")
	}

	index := OpenSearchIndex(cfg, store)
	if index == nil {
		return fmt.Errorf("search index is disabled (history.search_index)")
	}
	defer index.Close()

	results, err := index.Search(query, args.FlagIntOrDefault("limit", 20))
	if err != nil {
		return err
	}

	if args.BoolFlag("json") {
		return json.NewEncoder(os.Stdout).Encode(results)
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%s  %-9s  %s\n    %s\n",
			util.ShortID(r.ConversationID),
			r.Role.DisplayName(),
			util.TruncateRunes(title, 50),
			util.TruncateRunes(r.Snippet, 100),
		)
	}
	return nil
}

func historyDelete(store *history.Store, args *ArgParser) error {
	id, err := resolveConversationID(store, args)
	if err != nil {
		return err
	}
	if err := store.Delete(id); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

func historyClear(store *history.Store, args *ArgParser) error {
	if !args.BoolFlag("confirm") {
		return fmt.Errorf("refusing to clear history without --confirm")
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Println("history cleared")
	return nil
}

func historyReindex(cfg *config.Config, store *history.Store) error {
	index := OpenSearchIndex(cfg, store)
	if index == nil {
		return fmt.Errorf("search index is disabled (history.search_index)")
	}
	defer index.Close()

	if err := index.Rebuild(store); err != nil {
		return err
	}
	fmt.Println("search index rebuilt")
	return nil
}

// resolveConversationID accepts a full ID or an unambiguous prefix.
func resolveConversationID(store *history.Store, args *ArgParser) (string, error) {
	rest := args.PositionalAfterSubcommand()
	if len(rest) == 0 {
		return "", fmt.Errorf("conversation ID required")
	}
	prefix := rest[0]

	if _, err := store.Load(prefix); err == nil {
		return prefix, nil
	}

	metas, err := store.List()
	if err != nil {
		return "", err
	}
	var match string
	for _, meta := range metas {
		if strings.HasPrefix(meta.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ID prefix %q is ambiguous", prefix)
			}
			match = meta.ID
		}
	}
	if match == "" {
		return "", history.ErrNotFound
	}
	return match, nil
}
