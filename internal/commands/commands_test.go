package commands

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistry_Dispatch(t *testing.T) {
	var out Buffer
	r := NewRegistry(&out)
	var gotArgs string
	if err := r.Add("/pets", func(args string, c Chat) {
		gotArgs = args
		c.Printf("listing %d", 2)
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Add("PETS", func(string, Chat) {}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate: %v", err)
	}

	if !r.Dispatch("  /Pets   all  ") {
		t.Fatalf("expected match")
	}
	if gotArgs != "all" {
		t.Fatalf("args=%q", gotArgs)
	}
	if diff := cmp.Diff([]string{"listing 2"}, out.Lines); diff != "" {
		t.Fatalf("output (-want +got):\n%s", diff)
	}

	for _, line := range []string{"/who", "pets", ""} {
		if r.Dispatch(line) {
			t.Fatalf("%q should fall through", line)
		}
	}

	if !r.Remove("pets") || r.Dispatch("/pets") {
		t.Fatalf("remove did not unregister")
	}
}
