package main

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/martinemde/webpilot/agentloop"
)

// transcript prints session events as they arrive. Sync lets the console
// flush queued events before it prompts the user.
type transcript struct {
	out     io.Writer
	syncs   chan chan struct{}
	done    chan struct{}
	started atomic.Bool
}

func newTranscript(out io.Writer) *transcript {
	return &transcript{out: out, syncs: make(chan chan struct{}), done: make(chan struct{})}
}

// start consumes events until the channel is closed.
func (t *transcript) start(events <-chan agentloop.SessionEvent) {
	t.started.Store(true)
	go func() {
		defer close(t.done)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				t.print(ev)
			case ack := <-t.syncs:
				t.drain(events)
				close(ack)
			}
		}
	}()
}

// Sync returns once every event emitted before the call is printed.
func (t *transcript) Sync() {
	if !t.started.Load() {
		return
	}
	ack := make(chan struct{})
	select {
	case t.syncs <- ack:
		<-ack
	case <-t.done:
	}
}

// Wait blocks until the event channel is closed and drained.
func (t *transcript) Wait() {
	if t.started.Load() {
		<-t.done
	}
}

func (t *transcript) drain(events <-chan agentloop.SessionEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.print(ev)
		default:
			return
		}
	}
}

func (t *transcript) print(ev agentloop.SessionEvent) {
	if line := formatEvent(ev); line != "" {
		fmt.Fprintln(t.out, line)
	}
}
