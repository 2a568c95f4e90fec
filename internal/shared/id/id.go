// Package id provides centralized ID generation for the gateway.
//
// Connection ids are prefixed ULIDs ("conn_01H..."): lexicographically
// sortable by accept time, which keeps session listings and log lines in
// order without a separate timestamp.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ConnectionID identifies one client connection and its session.
type ConnectionID string

// ConnectionPrefix marks connection ids in logs.
const ConnectionPrefix = "conn"

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewConnectionID generates a new connection ID
func NewConnectionID() ConnectionID {
	return ConnectionID(Default().GenerateWithPrefix(ConnectionPrefix))
}

func (id ConnectionID) String() string { return string(id) }
