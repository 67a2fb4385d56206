// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		command Command
		invalid bool
	}{
		{line: "agent-enable cleanup", command: Command{Kind: KindAgentEnable, Arg: "cleanup"}},
		{line: "  agent-disable   human ", command: Command{Kind: KindAgentDisable, Arg: "human"}},
		{line: "pause", command: Command{Kind: KindPause}},
		{line: "resume", command: Command{Kind: KindResume}},
		{line: "stop", command: Command{Kind: KindStop}},
		{line: "agent-enable", invalid: true},
		{line: "agent-enable a b", invalid: true},
		{line: "pause 5", invalid: true},
		{line: "self-destruct", invalid: true},
		{line: "", invalid: true},
		{line: "# a comment", invalid: true},
	}

	for _, test := range tests {
		cmd, err := ParseCommand(test.line)
		if test.invalid {
			assert.Error(t, err, test.line)
		} else {
			require.NoError(t, err, test.line)
			assert.Equal(t, test.command, cmd)
		}
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "pause", Command{Kind: KindPause}.String())
	assert.Equal(t, "agent-enable human", Command{Kind: KindAgentEnable, Arg: "human"}.String())
}

// collect drains commands until n arrived or the deadline hit.
func collect(t *testing.T, w *Watcher, n int) []Command {
	var cmds []Command
	deadline := time.After(5 * time.Second)

	for len(cmds) < n {
		select {
		case cmd := <-w.Commands():
			cmds = append(cmds, cmd)
		case <-deadline:
			t.Fatalf("received %d of %d commands", len(cmds), n)
		}
	}
	return cmds
}

func TestWatcherConsumesFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "watch")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	file := filepath.Join(dir, "commands.txt")

	w, err := New(file)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	content := "pause\nagent-disable cleanup\nbogus nonsense\nresume\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	cmds := collect(t, w, 3)
	assert.Equal(t, Command{Kind: KindPause}, cmds[0])
	assert.Equal(t, Command{Kind: KindAgentDisable, Arg: "cleanup"}, cmds[1])
	assert.Equal(t, Command{Kind: KindResume}, cmds[2])

	// The file must be cleared after consumption.
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(file)
		return err == nil && len(data) == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatcherConsumesExistingFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "watch")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	file := filepath.Join(dir, "commands.txt")
	require.NoError(t, os.WriteFile(file, []byte("stop\n"), 0644))

	w, err := New(file)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	cmds := collect(t, w, 1)
	assert.Equal(t, Command{Kind: KindStop}, cmds[0])
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir, err := os.MkdirTemp("", "watch")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	w, err := New(filepath.Join(dir, "commands.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("stop\n"), 0644))

	select {
	case cmd := <-w.Commands():
		t.Fatalf("unexpected command %v", cmd)
	case <-time.After(250 * time.Millisecond):
	}
}
