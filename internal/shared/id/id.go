// Package id provides centralized ID generation for the engine.
//
// ULIDs are used for every identity the engine hands out: lexicographic
// sortability gives the renderer a stable creation order to fall back on,
// and type-specific prefixes (el_*, lis_*, inv_*, batch_*) keep logs
// readable when operations from several invocations interleave.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ElementID identifies an element node created by a script.
type ElementID string

// ListenerID identifies a registered event listener.
type ListenerID string

// InvocationID identifies one orchestrator run.
type InvocationID string

// BatchID identifies a flushed operation batch.
type BatchID string

const (
	ElementPrefix    = "el"
	ListenerPrefix   = "lis"
	InvocationPrefix = "inv"
	BatchPrefix      = "batch"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator with secure entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewElementID generates a new element ID.
func NewElementID() ElementID {
	return ElementID(Default().GenerateWithPrefix(ElementPrefix))
}

// NewListenerID generates a new listener ID.
func NewListenerID() ListenerID {
	return ListenerID(Default().GenerateWithPrefix(ListenerPrefix))
}

// NewInvocationID generates a new invocation ID.
func NewInvocationID() InvocationID {
	return InvocationID(Default().GenerateWithPrefix(InvocationPrefix))
}

// NewBatchID generates a new batch ID.
func NewBatchID() BatchID {
	return BatchID(Default().GenerateWithPrefix(BatchPrefix))
}

func (id ElementID) String() string    { return string(id) }
func (id ListenerID) String() string   { return string(id) }
func (id InvocationID) String() string { return string(id) }
func (id BatchID) String() string      { return string(id) }

// IsValid checks if an ID string is a valid ULID (ignoring any prefix).
func IsValid(id string) bool {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '_' {
			id = id[i+1:]
			break
		}
	}
	_, err := ulid.Parse(id)
	return err == nil
}
