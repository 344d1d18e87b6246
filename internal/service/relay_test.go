package service

import (
	"strings"
	"testing"
	"time"
)

func TestRelayDrainsLines(t *testing.T) {
	logs := NewLogBuffer(10)
	rl := NewRelay("stdout", 42, logs, testLogger())

	done := make(chan struct{}, 1)
	go rl.Drain(strings.NewReader("first\nsecond\n"), done)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not finish at EOF")
	}

	entries := logs.Last(10)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "first" || entries[1].Message != "second" {
		t.Errorf("unexpected messages: %+v", entries)
	}
	for _, e := range entries {
		if e.Stream != "stdout" {
			t.Errorf("stream = %q, want stdout", e.Stream)
		}
		if e.Level != "info" {
			t.Errorf("level = %q, want info", e.Level)
		}
	}
}

func TestRelayStderrLevel(t *testing.T) {
	logs := NewLogBuffer(10)
	rl := NewRelay("stderr", 42, logs, testLogger())

	done := make(chan struct{}, 1)
	rl.Drain(strings.NewReader("boom\n"), done)
	<-done

	entries := logs.Last(10)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Level != "error" || entries[0].Stream != "stderr" {
		t.Errorf("entry = %+v, want stderr/error", entries[0])
	}
}

func TestRelayEmptyStream(t *testing.T) {
	logs := NewLogBuffer(10)
	rl := NewRelay("stdout", 1, logs, testLogger())

	done := make(chan struct{}, 1)
	rl.Drain(strings.NewReader(""), done)
	<-done

	if n := len(logs.Last(10)); n != 0 {
		t.Errorf("got %d entries from empty stream, want 0", n)
	}
}
