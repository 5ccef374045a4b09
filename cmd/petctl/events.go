package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"addonhost/internal/multipet"
	"addonhost/internal/persistence/indexdb"
	persistlog "addonhost/internal/persistence/log"
)

var eventsOpts struct {
	fromJournal bool
	session     string
	pet         uint32
	kind        string
	limit       int
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List tracking events",
	Long: `List tracking events from the SQLite index, or straight from the
JSONL journal with --journal (the journal never drops events).`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List indexed tracking sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	f := eventsCmd.Flags()
	f.BoolVar(&eventsOpts.fromJournal, "journal", false, "read the journal instead of the index")
	f.StringVar(&eventsOpts.session, "session", "", "only this session id")
	f.Uint32Var(&eventsOpts.pet, "pet", 0, "only this pet id")
	f.StringVar(&eventsOpts.kind, "kind", "", "only this event kind")
	f.IntVar(&eventsOpts.limit, "limit", 50, "newest N events (0 for all)")
}

func indexPath() string { return filepath.Join(dataDir, "index", "events.db") }

func runEvents(cmd *cobra.Command, _ []string) error {
	q := indexdb.EventQuery{
		Session: eventsOpts.session,
		PetID:   eventsOpts.pet,
		Kind:    multipet.EventKind(eventsOpts.kind),
		Limit:   eventsOpts.limit,
	}
	var (
		evs []multipet.Event
		err error
	)
	if eventsOpts.fromJournal {
		evs, err = journalEvents(dataDir, q)
	} else {
		evs, err = indexEvents(cmd.Context(), indexPath(), q)
	}
	if err != nil {
		return err
	}
	printEvents(cmd.OutOrStdout(), evs)
	return nil
}

func indexEvents(ctx context.Context, path string, q indexdb.EventQuery) ([]multipet.Event, error) {
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return idx.Events(ctx, q)
}

// journalEvents applies q to the decoded journal files.
func journalEvents(dir string, q indexdb.EventQuery) ([]multipet.Event, error) {
	files, err := persistlog.EventFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no journal files under %s", filepath.Join(dir, "events"))
	}
	var out []multipet.Event
	for _, f := range files {
		evs, err := persistlog.ReadEvents(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(f), err)
		}
		for _, e := range evs {
			if matches(e, q) {
				out = append(out, e)
			}
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func matches(e multipet.Event, q indexdb.EventQuery) bool {
	if q.Session != "" && e.Session != q.Session {
		return false
	}
	if q.PetID != 0 && e.PetID != q.PetID {
		return false
	}
	if q.Kind != "" && e.Kind != q.Kind {
		return false
	}
	return true
}

func printEvents(w io.Writer, evs []multipet.Event) {
	if len(evs) == 0 {
		fmt.Fprintln(w, "no events")
		return
	}
	for _, e := range evs {
		line := fmt.Sprintf("%8d  %-18s", e.Tick, e.Kind)
		if e.PetID != 0 {
			line += fmt.Sprintf("  pet=%d", e.PetID)
		}
		if e.Name != "" {
			line += fmt.Sprintf(" %q", e.Name)
		}
		if e.Slot >= 0 {
			line += fmt.Sprintf("  slot=%d", e.Slot)
		}
		if e.Detail != "" {
			line += "  (" + e.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func runSessions(cmd *cobra.Command, _ []string) error {
	idx, err := indexdb.OpenSQLite(indexPath())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()
	sessions, err := idx.Sessions(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return nil
	}
	for _, s := range sessions {
		end := s.EndCause
		if end == "" {
			end = "open"
		}
		fmt.Fprintf(w, "%s  ticks %d-%d  events=%d  end=%s\n", s.ID, s.FirstTick, s.LastTick, s.Events, end)
	}
	return nil
}
