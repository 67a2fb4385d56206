// SPDX-FileCopyrightText: 2026 HGFantasy
//
// SPDX-License-Identifier: MIT

package watch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// commandBacklog bounds the command channel. A full backlog drops further
// commands with a warning instead of blocking the watcher.
const commandBacklog = 16

// Watcher observes one control file. On every create or write the file is
// consumed: read line by line, cleared, each valid line pushed as a Command.
type Watcher struct {
	file    string
	watcher *fsnotify.Watcher

	commands chan Command

	stopSyn chan struct{}
	stopAck chan struct{}
}

// New starts a Watcher on the given control file. The file's directory must
// exist; the file itself may appear later. Commands already present in the
// file are consumed immediately.
func New(file string) (w *Watcher, err error) {
	w = &Watcher{
		file:     filepath.Clean(file),
		commands: make(chan Command, commandBacklog),
		stopSyn:  make(chan struct{}),
		stopAck:  make(chan struct{}),
	}

	if w.watcher, err = fsnotify.NewWatcher(); err != nil {
		return nil, err
	}
	if err = w.watcher.Add(filepath.Dir(w.file)); err != nil {
		_ = w.watcher.Close()
		return nil, err
	}

	w.consume()
	go w.handler()

	return w, nil
}

// Commands returns the channel of parsed control commands.
func (w *Watcher) Commands() <-chan Command {
	return w.commands
}

func (w *Watcher) handler() {
	defer close(w.stopAck)

	for {
		select {
		case <-w.stopSyn:
			return

		case e, ok := <-w.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if filepath.Clean(e.Name) != w.file {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			w.consume()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}
			log.WithError(err).Warn("File watcher errored")
		}
	}
}

// consume reads and clears the control file, pushing each parsed command.
func (w *Watcher) consume() {
	data, err := os.ReadFile(w.file)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithField("file", w.file).WithError(err).Warn("Reading control file errored")
		}
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return
	}

	if err := os.WriteFile(w.file, []byte{}, 0644); err != nil {
		log.WithField("file", w.file).WithError(err).Warn("Clearing control file errored")
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			log.WithFields(log.Fields{
				"line":  line,
				"error": err,
			}).Warn("Dropping invalid control command")
			continue
		}

		select {
		case w.commands <- cmd:
			log.WithField("command", cmd).Info("Queued control command")
		default:
			log.WithField("command", cmd).Warn("Command backlog is full, dropping")
		}
	}
}

// Close stops the Watcher.
func (w *Watcher) Close() error {
	close(w.stopSyn)
	<-w.stopAck

	return w.watcher.Close()
}
