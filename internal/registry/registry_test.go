package registry

import (
	"testing"

	"callmgr/internal/fsnode"
)

func testNode(host string) *fsnode.Node {
	return fsnode.New(fsnode.Identity{Host: host, Instance: "freeswitch"}, nil, fsnode.Options{}, fsnode.Deps{}, nil)
}

func TestRegisterLookupDeregister(t *testing.T) {
	r := New()
	n := testNode("fs1.example.com")

	r.Register(n)
	if r.Count() != 1 {
		t.Fatalf("count: got %d, want 1", r.Count())
	}

	got, ok := r.Lookup("freeswitch@fs1.example.com")
	if !ok || got != n {
		t.Fatalf("lookup failed")
	}
	if _, ok := r.Lookup("freeswitch@fs9.example.com"); ok {
		t.Fatalf("unknown key must miss")
	}

	r.Deregister("freeswitch@fs1.example.com")
	if r.Count() != 0 {
		t.Fatalf("count after deregister: got %d, want 0", r.Count())
	}
}

func TestSiblingsExcludesSelf(t *testing.T) {
	r := New()
	r.Register(testNode("fs1.example.com"))
	r.Register(testNode("fs2.example.com"))
	r.Register(testNode("fs3.example.com"))

	siblings := r.Siblings("freeswitch@fs1.example.com")
	if len(siblings) != 2 {
		t.Fatalf("siblings: got %d, want 2", len(siblings))
	}

	// An unknown key excludes nothing.
	if got := r.Siblings("freeswitch@fs9.example.com"); len(got) != 3 {
		t.Fatalf("siblings: got %d, want 3", len(got))
	}
}

func TestReregisterReplaces(t *testing.T) {
	r := New()
	first := testNode("fs1.example.com")
	second := testNode("fs1.example.com")

	r.Register(first)
	r.Register(second)

	if r.Count() != 1 {
		t.Fatalf("count: got %d, want 1", r.Count())
	}
	got, _ := r.Lookup("freeswitch@fs1.example.com")
	if got != second {
		t.Fatalf("expected the newer controller")
	}
}
