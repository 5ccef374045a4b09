package log

import (
	"path/filepath"
	"testing"
	"time"

	"addonhost/internal/multipet"

	"github.com/google/go-cmp/cmp"
)

func TestEventLogger_RoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewEventLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	first := []multipet.Event{
		{Tick: 1, Session: "s", Kind: multipet.EventDetected, PetID: 7, Name: "Gabn", Slot: -1},
		{Tick: 2, Session: "s", Kind: multipet.EventSlotAssigned, PetID: 7, Name: "Gabn", Slot: 0},
	}
	for _, e := range first {
		l.Emit(e)
	}
	clock = clock.Add(2 * time.Minute)
	second := multipet.Event{Tick: 3, Session: "s", Kind: multipet.EventSessionReset, Slot: -1, Detail: "game_state"}
	if err := l.WriteEvent(second); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Err(); err != nil || l.Lost() != 0 {
		t.Fatalf("err=%v lost=%d", err, l.Lost())
	}

	files, err := EventFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{
		filepath.Join(dir, "events", "events-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "events", "events-2026-03-01-11.jsonl.zst"),
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}

	got, err := ReadEvents(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(first, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	got, err = ReadEvents(files[1])
	if err != nil || len(got) != 1 || got[0].Detail != "game_state" {
		t.Fatalf("second file: %v %v", got, err)
	}
}
