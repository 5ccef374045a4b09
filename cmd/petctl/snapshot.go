package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"addonhost/internal/multipet"
	"addonhost/internal/persistence/snapshot"
)

var snapshotJSON bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [path]",
	Short: "Print a state dump (latest under <data>/snapshots by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			p, err := snapshot.Latest(filepath.Join(dataDir, "snapshots"))
			if err != nil {
				return err
			}
			path = p
		}
		snap, err := snapshot.ReadSnapshot(path)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		w := cmd.OutOrStdout()
		if snapshotJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		printSnapshot(w, path, snap)
		return nil
	},
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "print the dump as JSON")
}

func printSnapshot(w io.Writer, path string, snap snapshot.Snapshot) {
	st := snap.State
	fmt.Fprintf(w, "snapshot v%d %s\n", snap.Header.Version, filepath.Base(path))
	fmt.Fprintf(w, "tick=%d session=%s created=%s\n", st.Tick, st.Session, snap.Header.CreatedAt)
	fmt.Fprintf(w, "owner=%d ui_pet=%d directory=%d needs_resolve=%v\n", st.OwnerID, st.PrimaryID, st.DirectorySize, st.NeedsResolve)
	fmt.Fprintf(w, "pets (%d):\n", len(st.Pets))
	for _, p := range st.Pets {
		state := "unresolved"
		switch {
		case p.HasSlot():
			state = fmt.Sprintf("slot %d", p.Slot)
		case p.Resolved():
			state = "resolved"
		}
		fmt.Fprintf(w, "  %-24s id=%-6d %-14s %s\n", p.Name, p.ID, multipet.ClassName(p.OwnerTag), state)
	}
	fmt.Fprintln(w, "xtarget:")
	for i, s := range st.Slots {
		if s.IsDefault() {
			continue
		}
		fmt.Fprintf(w, "  [%2d] type=%s id=%d name=%q\n", i, s.Type, s.SpawnID, s.Name)
	}
}
