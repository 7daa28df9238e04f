package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/martinemde/webpilot/agentloop"
	"github.com/martinemde/webpilot/memory"
)

func TestTranscriptSyncFlushesQueuedEvents(t *testing.T) {
	var out bytes.Buffer
	events := make(chan agentloop.SessionEvent, 8)
	events <- agentloop.SessionEvent{Kind: agentloop.EventAction, Rationale: "Ask which size.", Command: "ASK small or large?"}
	events <- agentloop.SessionEvent{Kind: agentloop.EventFeedback, Role: memory.RoleActuator, Content: "Action successful!"}

	tr := newTranscript(&out)
	tr.start(events)
	tr.Sync()

	got := out.String()
	if !strings.Contains(got, "> ASK small or large?") || !strings.Contains(got, "Action successful!") {
		t.Errorf("transcript after Sync = %q, want both queued events", got)
	}
	if strings.Index(got, "ASK small") > strings.Index(got, "Action successful!") {
		t.Errorf("events printed out of order: %q", got)
	}

	close(events)
	tr.Wait()
	tr.Sync() // returns once the transcript has stopped
}

func TestTranscriptSyncBeforeStart(t *testing.T) {
	tr := newTranscript(&bytes.Buffer{})
	tr.Sync()
	tr.Wait()
}
