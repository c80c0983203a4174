package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNanoID_Length(t *testing.T) {
	for _, length := range []int{8, 12, 16, 24} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
	}
}

func TestNanoID_Alphabet(t *testing.T) {
	id := NanoID(100)()
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			t.Fatalf("NanoID: unexpected character %q in %q", c, id)
		}
	}
}

func TestHex(t *testing.T) {
	for _, n := range []int{1, 7, 8, 32} {
		id := Hex(n)()
		if len(id) != n {
			t.Fatalf("Hex(%d): got %q", n, id)
		}
		if strings.Trim(id, "0123456789abcdef") != "" {
			t.Fatalf("Hex(%d): non-hex character in %q", n, id)
		}
	}
}

func TestNodeID_Format(t *testing.T) {
	id := NodeID()
	if !strings.HasPrefix(id, "node-") || len(id) != len("node-")+8 {
		t.Fatalf("NodeID: got %q", id)
	}
}

func TestActorID_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		id := ActorID()
		if !strings.HasPrefix(id, "actor-") {
			t.Fatalf("ActorID: missing prefix in %q", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("ActorID: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestSession_IsUUIDv7(t *testing.T) {
	id := Session()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if u.Version() != 7 {
		t.Fatalf("Session: version %d in %q", u.Version(), id)
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("s")
	if a, b := gen(), gen(); a != "s1" || b != "s2" {
		t.Fatalf("Sequence: got %q, %q", a, b)
	}
}
