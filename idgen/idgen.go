// Package idgen generates the identifiers used across canvas: session ids
// (shared in links and QR codes), per-tab actor ids and layout node ids.
//
// Constructors accept a Generator so tests can swap in deterministic ids.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// NanoID returns a Generator that produces base-36 IDs of the given length.
func NanoID(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// Hex returns a Generator of lowercase hex strings with n characters.
func Hex(n int) Generator {
	return func() string {
		buf := make([]byte, (n+1)/2)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		return hex.EncodeToString(buf)[:n]
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so session rows cluster by creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a deterministic Generator ("prefix1", "prefix2", ...).
// Intended for tests.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s%d", prefix, n.Add(1))
	}
}

var (
	// Session generates session ids.
	Session Generator = UUIDv7()
	// Actor generates per-client-instance ids.
	Actor Generator = Prefixed("actor-", NanoID(12))
	// Node generates layout node ids in the "node-1a2b3c4d" form.
	Node Generator = Prefixed("node-", Hex(8))
)

// ActorID produces a fresh actor id. Each editor tab calls this once.
func ActorID() string { return Actor() }

// NodeID produces a fresh layout node id.
func NodeID() string { return Node() }
