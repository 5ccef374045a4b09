package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"addonhost/internal/multipet"
	"addonhost/internal/multipet/tracking"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTemp(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_EventsAndSessions(t *testing.T) {
	idx := openTemp(t)
	ctx := context.Background()

	evs := []multipet.Event{
		{Tick: 1, Session: "a", Kind: multipet.EventDetected, PetID: 7, Name: "Gabn", Slot: -1},
		{Tick: 2, Session: "a", Kind: multipet.EventSlotAssigned, PetID: 7, Name: "Gabn", Slot: 0},
		{Tick: 2, Session: "a", Kind: multipet.EventDetected, PetID: 9, Name: "Xabn", Slot: -1},
		{Tick: 5, Session: "a", Kind: multipet.EventSessionReset, Slot: -1, Detail: "game_state"},
		{Tick: 9, Session: "b", Kind: multipet.EventDetected, PetID: 7, Name: "Gabn", Slot: -1},
	}
	for _, e := range evs {
		idx.Emit(e)
	}
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	got, err := idx.Events(ctx, EventQuery{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if diff := cmp.Diff(evs, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}

	got, err = idx.Events(ctx, EventQuery{PetID: 7, Limit: 2})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if diff := cmp.Diff([]multipet.Event{evs[1], evs[4]}, got); diff != "" {
		t.Fatalf("pet 7 newest two (-want +got):\n%s", diff)
	}

	got, err = idx.Events(ctx, EventQuery{Session: "a", Kind: multipet.EventDetected})
	if err != nil || len(got) != 2 {
		t.Fatalf("session filter: %v %v", got, err)
	}

	sessions, err := idx.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	want := []Session{
		{ID: "a", FirstTick: 1, LastTick: 5, Events: 4, EndCause: "game_state"},
		{ID: "b", FirstTick: 9, LastTick: 9, Events: 1},
	}
	if diff := cmp.Diff(want, sessions); diff != "" {
		t.Fatalf("sessions (-want +got):\n%s", diff)
	}
}

func TestSQLiteIndex_RecordSnapshot(t *testing.T) {
	idx := openTemp(t)
	ctx := context.Background()

	st := multipet.State{Tick: 40, Session: "s"}
	a := tracking.New(5, 1)
	a.Resolve(0x1000, "Gabn")
	a.Slot = 2
	st.Pets = []tracking.Entity{a, tracking.New(6, 1)}

	idx.RecordSnapshot("/data/snapshots/40.snap.zst", st)
	if err := idx.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	recs, err := idx.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records=%+v", recs)
	}
	r := recs[0]
	if r.Path != "/data/snapshots/40.snap.zst" || r.Tick != 40 || r.Pets != 2 || r.Slotted != 1 || r.Session != "s" {
		t.Fatalf("record=%+v", r)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent}

	s.Emit(multipet.Event{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", multipet.State{})

	st := s.Stats()
	if st.DropEventTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_EmitAfterCloseIsDropped(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idx.Emit(multipet.Event{Tick: 1})
	if err := idx.Sync(context.Background()); err != nil {
		t.Fatalf("Sync after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
