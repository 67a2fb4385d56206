// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

// Package watch feeds operator commands from a control file into the engine.
// The file is watched with fsnotify, read line by line and cleared; commands
// are applied by the engine at iteration boundaries.
package watch

import (
	"fmt"
	"strings"
)

// Kind enumerates the known control commands.
type Kind string

const (
	// KindAgentEnable activates a named agent.
	KindAgentEnable Kind = "agent-enable"

	// KindAgentDisable deactivates a named agent.
	KindAgentDisable Kind = "agent-disable"

	// KindPause suspends both loops until a resume.
	KindPause Kind = "pause"

	// KindResume lifts a pause.
	KindResume Kind = "resume"

	// KindStop shuts the engine down.
	KindStop Kind = "stop"
)

// Command is one parsed control line.
type Command struct {
	Kind Kind

	// Arg is the agent name for the agent commands, empty otherwise.
	Arg string
}

func (c Command) String() string {
	if c.Arg == "" {
		return string(c.Kind)
	}
	return fmt.Sprintf("%s %s", c.Kind, c.Arg)
}

// ParseCommand parses one control file line. Surrounding whitespace is
// ignored, as are blank lines and lines starting with "#".
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return Command{}, fmt.Errorf("empty command")
	}

	switch kind := Kind(fields[0]); kind {
	case KindAgentEnable, KindAgentDisable:
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("%s expects exactly one agent name", kind)
		}
		return Command{Kind: kind, Arg: fields[1]}, nil

	case KindPause, KindResume, KindStop:
		if len(fields) != 1 {
			return Command{}, fmt.Errorf("%s expects no argument", kind)
		}
		return Command{Kind: kind}, nil

	default:
		return Command{}, fmt.Errorf("unknown command %s", fields[0])
	}
}
