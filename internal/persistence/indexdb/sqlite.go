// Package indexdb keeps a queryable SQLite index of the tracking event
// journal. The JSONL journal stays the source of truth; the index may drop
// events when its writer falls behind.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"addonhost/internal/multipet"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvents    atomic.Uint64
	dropSnapshots atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
	reqSync
)

type req struct {
	kind reqKind

	event    multipet.Event
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Tick       uint64
	Session    string
	Path       string
	Pets       int
	Slotted    int
	RecordedAt string
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropEventTotal    uint64
	DropSnapshotTotal uint64
}

const defaultQueue = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, defaultQueue)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session TEXT PRIMARY KEY,
			first_tick INTEGER NOT NULL,
			last_tick INTEGER NOT NULL,
			events INTEGER NOT NULL,
			end_cause TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			pet_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			slot INTEGER NOT NULL,
			detail TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_pet_tick ON events(pet_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			tick INTEGER NOT NULL,
			session TEXT NOT NULL,
			pets INTEGER NOT NULL,
			slotted INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Emit queues e without blocking. It makes SQLiteIndex a multipet.EventSink.
func (s *SQLiteIndex) Emit(e multipet.Event) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqEvent, event: e}:
	default:
		s.dropEvents.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, st multipet.State) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:       st.Tick,
		Session:    st.Session,
		Path:       path,
		Pets:       len(st.Pets),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, p := range st.Pets {
		if p.HasSlot() {
			r.Slotted++
		}
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshots.Add(1)
	}
}

// Sync blocks until everything queued before it is committed.
func (s *SQLiteIndex) Sync(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqSync, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvents.Load(),
		DropSnapshotTotal: s.dropSnapshots.Load(),
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT INTO events(session,tick,kind,pet_id,name,slot,detail) VALUES(?,?,?,?,?,?,?)`)
	touchSession, _ := s.db.Prepare(`INSERT INTO sessions(session,first_tick,last_tick,events) VALUES(?,?,?,1)
		ON CONFLICT(session) DO UPDATE SET last_tick=excluded.last_tick, events=events+1`)
	endSession, _ := s.db.Prepare(`UPDATE sessions SET end_cause=? WHERE session=?`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,tick,session,pets,slotted,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, touchSession, endSession, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	handle := func(r req) {
		if r.kind == reqSync {
			commit()
			close(r.done)
			return
		}
		begin()
		if tx == nil {
			return
		}
		switch r.kind {
		case reqEvent:
			e := r.event
			if insertEvent == nil {
				return
			}
			if _, err := tx.Stmt(insertEvent).Exec(e.Session, int64(e.Tick), string(e.Kind), int64(e.PetID), e.Name, e.Slot, e.Detail); err != nil {
				rollback()
				return
			}
			opCount++
			if e.Session == "" || touchSession == nil {
				break
			}
			if _, err := tx.Stmt(touchSession).Exec(e.Session, int64(e.Tick), int64(e.Tick)); err != nil {
				rollback()
				return
			}
			opCount++
			if e.Kind == multipet.EventSessionReset && endSession != nil {
				if _, err := tx.Stmt(endSession).Exec(e.Detail, e.Session); err != nil {
					rollback()
					return
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				return
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(sn.Path, int64(sn.Tick), sn.Session, sn.Pets, sn.Slotted, sn.RecordedAt); err != nil {
				rollback()
				return
			}
			opCount++
		}
		flushIfNeeded()
	}

	// Commit idle transactions so readers sharing the single connection are not starved.
	idle := time.NewTicker(commitMaxWait)
	defer idle.Stop()
	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			handle(r)
		case <-idle.C:
			flushIfNeeded()
		}
	}
}

// EventQuery filters Events. Zero fields match everything.
type EventQuery struct {
	Session string
	PetID   uint32
	Kind    multipet.EventKind
	// Limit keeps the newest Limit rows; 0 means no limit.
	Limit int
}

// Events returns matching events oldest first.
func (s *SQLiteIndex) Events(ctx context.Context, q EventQuery) ([]multipet.Event, error) {
	var (
		where []string
		args  []any
	)
	if q.Session != "" {
		where = append(where, "session=?")
		args = append(args, q.Session)
	}
	if q.PetID != 0 {
		where = append(where, "pet_id=?")
		args = append(args, int64(q.PetID))
	}
	if q.Kind != "" {
		where = append(where, "kind=?")
		args = append(args, string(q.Kind))
	}
	query := `SELECT session,tick,kind,pet_id,name,slot,detail FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []multipet.Event
	for rows.Next() {
		var (
			e     multipet.Event
			kind  string
			tick  int64
			petID int64
		)
		if err := rows.Scan(&e.Session, &tick, &kind, &petID, &e.Name, &e.Slot, &e.Detail); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		e.Kind = multipet.EventKind(kind)
		e.PetID = uint32(petID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type Session struct {
	ID        string
	FirstTick uint64
	LastTick  uint64
	Events    int
	EndCause  string
}

// Sessions lists indexed sessions in the order they started.
func (s *SQLiteIndex) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session,first_tick,last_tick,events,COALESCE(end_cause,'') FROM sessions ORDER BY first_tick, session`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			ss          Session
			first, last int64
		)
		if err := rows.Scan(&ss.ID, &first, &last, &ss.Events, &ss.EndCause); err != nil {
			return nil, err
		}
		ss.FirstTick = uint64(first)
		ss.LastTick = uint64(last)
		out = append(out, ss)
	}
	return out, rows.Err()
}

type SnapshotRecord struct {
	Path       string
	Tick       uint64
	Session    string
	Pets       int
	Slotted    int
	RecordedAt string
}

func (s *SQLiteIndex) Snapshots(ctx context.Context) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path,tick,session,pets,slotted,recorded_at FROM snapshots ORDER BY recorded_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var (
			r    SnapshotRecord
			tick int64
		)
		if err := rows.Scan(&r.Path, &tick, &r.Session, &r.Pets, &r.Slotted, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		out = append(out, r)
	}
	return out, rows.Err()
}
