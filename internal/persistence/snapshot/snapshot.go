// Package snapshot writes and reads zstd-compressed dumps of the tracker state.
//
// File format: one JSON header line, then the gob-encoded Snapshot.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"addonhost/internal/multipet"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	Session   string `json:"session,omitempty"`
	Tick      uint64 `json:"tick"`
	CreatedAt string `json:"created_at"`
}

type Snapshot struct {
	Header Header         `json:"header"`
	State  multipet.State `json:"state"`
}

var ErrVersion = errors.New("snapshot: unsupported version")

func WriteSnapshot(path string, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 32*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

// ReadHeader returns only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 32*1024)
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// Recorder is told about every dump written. *indexdb.SQLiteIndex satisfies it.
type Recorder interface {
	RecordSnapshot(path string, st multipet.State)
}

// Dumper writes state dumps under Dir. It implements multipet.StateDumper.
type Dumper struct {
	Dir      string
	Recorder Recorder
	Now      func() time.Time
}

func (d *Dumper) Dump(st multipet.State) (string, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	path := filepath.Join(d.Dir, fileName(st))
	snap := Snapshot{
		Header: Header{
			Version:   Version,
			Session:   st.Session,
			Tick:      st.Tick,
			CreatedAt: now().UTC().Format(time.RFC3339Nano),
		},
		State: st,
	}
	if err := WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	if d.Recorder != nil {
		d.Recorder.RecordSnapshot(path, st)
	}
	return path, nil
}

func fileName(st multipet.State) string {
	session := st.Session
	if len(session) > 8 {
		session = session[:8]
	}
	if session == "" {
		session = "nosession"
	}
	return fmt.Sprintf("%s-%010d.snap.zst", session, st.Tick)
}

// Latest returns the most recently modified dump in dir.
func Latest(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.snap.zst"))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("snapshot: no dumps in %s", dir)
	}
	type fm struct {
		path string
		mod  time.Time
	}
	var list []fm
	for _, p := range files {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		list = append(list, fm{p, fi.ModTime()})
	}
	if len(list) == 0 {
		return "", fmt.Errorf("snapshot: no readable dumps in %s", dir)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].mod.Equal(list[j].mod) {
			return list[i].path < list[j].path
		}
		return list[i].mod.Before(list[j].mod)
	})
	return list[len(list)-1].path, nil
}
