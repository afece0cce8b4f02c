// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/parleydev/parley/internal/api"
	"github.com/parleydev/parley/internal/ui/components"
	"github.com/parleydev/parley/internal/util"
)

const askUsage = `parley ask - ask a single question

Usage:
  parley ask [flags] <question>

Flags:
  -m, --model NAME    Use a specific model
  -f, --file FILE     Include file content with the question
  --system PROMPT     System prompt for this question
  --code              Print only the fenced code blocks of the reply
  --no-stream         Wait for the full reply instead of streaming
  --raw               Print raw markdown without rendering

Examples:
  parley ask "What is a goroutine?"
  parley ask --code "Write a quicksort in Go"
  parley ask -f main.go "Review this code"
`

// maxIncludeFileSize bounds --file content (50KB).
const maxIncludeFileSize = 50 * 1024

// HandleAsk sends one question and prints the reply.
func HandleAsk(rawArgs []string) {
	args := NewArgParser(rawArgs)
	question := strings.TrimSpace(strings.Join(args.Positional(), " "))
	if question == "" {
		fmt.Print(askUsage)
		os.Exit(2)
	}

	if file := args.Flag("file", "f"); file != "" {
		content, err := readIncludeFile(file)
		if err != nil {
			Fatal(err)
		}
		question = question + "\n\n```\n" + content + "\n```"
	}

	cfg := LoadConfig()
	client, err := BuildClient(cfg, args)
	if err != nil {
		Fatal(err)
	}

	messages := []api.ChatMessage{}
	if system := args.Flag("system"); system != "" {
		messages = append(messages, api.NewSystemMessage(system))
	}
	messages = append(messages, api.NewUserMessage(question))

	ctx := context.Background()
	var reply string

	if args.BoolFlag("no-stream") {
		resp, err := client.Chat(ctx, messages)
		if err != nil {
			Fatal(err)
		}
		reply = resp.GetContent()
	} else {
		reply, err = streamToStderrProgress(ctx, client, messages)
		if err != nil {
			Fatal(err)
		}
	}

	printReply(reply, args)
}

// streamToStderrProgress streams the reply while showing raw text progress
// on stderr, then returns the final content for rendering. When stdout is
// not a TTY the accumulated text goes straight through without rendering.
func streamToStderrProgress(ctx context.Context, client *api.Client, messages []api.ChatMessage) (string, error) {
	showProgress := IsStdoutTTY()
	var final string
	var printed int

	err := client.ChatStream(ctx, messages, func(ev api.StreamEvent) {
		final = ev.Content
		if !showProgress || ev.Done {
			return
		}
		// Each update carries the full buffer; print only the growth.
		if len(ev.Content) > printed {
			fmt.Fprint(os.Stderr, ev.Content[printed:])
			printed = len(ev.Content)
		}
	})
	if showProgress {
		fmt.Fprint(os.Stderr, "\r\033[2K")
		// Progress text is transient; clear the streamed lines by moving on.
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		var streamErr *api.StreamError
		if errors.As(err, &streamErr) && streamErr.Partial != "" {
			// Partial replies are still printed; the error goes to stderr.
			fmt.Fprintf(os.Stderr, "warning: stream interrupted: %v\n", streamErr.Err)
			return streamErr.Partial, nil
		}
		return "", err
	}
	return final, nil
}

// printReply renders the final reply per output flags.
func printReply(reply string, args *ArgParser) {
	if args.BoolFlag("code") {
		fences := components.ExtractFences(reply)
		if len(fences) == 0 {
			fmt.Fprintln(os.Stderr, "no code blocks in reply")
			return
		}
		for i, fence := range fences {
			if i > 0 {
				fmt.Println()
			}
			fmt.Println(fence.Code)
		}
		return
	}

	if args.BoolFlag("raw") || !IsStdoutTTY() {
		fmt.Println(reply)
		return
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(GlamourStyleName()),
		glamour.WithWordWrap(TerminalWidth()-2),
	)
	if err != nil {
		fmt.Println(reply)
		return
	}
	out, err := renderer.Render(reply)
	if err != nil {
		fmt.Println(reply)
		return
	}
	fmt.Print(out)
}

func readIncludeFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxIncludeFileSize {
		return "", fmt.Errorf("file %s exceeds %s limit", path, util.FormatBytes(maxIncludeFileSize))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
