// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// mscctl appends validated operator commands to a running daemon's control
// file, where they are picked up at the next iteration boundary.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hgfantasy/mscbot/pkg/watch"
)

func showHelp() {
	fmt.Printf("mscctl <control-file> <command> [argument]\n\n")
	fmt.Printf("  appends a control command to the daemon's command file\n\n")
	fmt.Printf("Commands:\n")
	fmt.Printf("  agent-enable NAME    activate a named agent\n")
	fmt.Printf("  agent-disable NAME   deactivate a named agent\n")
	fmt.Printf("  pause                suspend both loops\n")
	fmt.Printf("  resume               lift a pause\n")
	fmt.Printf("  stop                 shut the daemon down\n\n")
	fmt.Printf("Examples:\n")
	fmt.Printf("  mscctl commands.txt pause\n")
	fmt.Printf("  mscctl commands.txt agent-disable cleanup\n")

	os.Exit(1)
}

func main() {
	if len(os.Args) < 3 {
		showHelp()
	}

	file := os.Args[1]
	line := strings.Join(os.Args[2:], " ")

	cmd, err := watch.ParseCommand(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid command: %v\n", err)
		os.Exit(1)
	}

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening %s errored: %v\n", file, err)
		os.Exit(1)
	}

	if _, err := fmt.Fprintln(f, cmd.String()); err != nil {
		fmt.Fprintf(os.Stderr, "writing command errored: %v\n", err)
		_ = f.Close()
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing %s errored: %v\n", file, err)
		os.Exit(1)
	}

	fmt.Printf("queued: %s\n", cmd)
}
