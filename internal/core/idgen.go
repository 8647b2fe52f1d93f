package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// IDGenerator supplies record ids and per-series certificate sequence
// numbers. Injecting it keeps certificate numbers collision-free under
// concurrent issuance and makes tests reproducible.
type IDGenerator interface {
	NewID() string
	// NextSequence returns the next monotonic value for a named series,
	// starting at 1.
	NextSequence(series string) int
}

// RandomIDGenerator issues random hex ids with an in-process sequence table.
type RandomIDGenerator struct {
	mu   sync.Mutex
	seqs map[string]int
}

// NewRandomIDGenerator constructs the default generator.
func NewRandomIDGenerator() *RandomIDGenerator {
	return &RandomIDGenerator{seqs: make(map[string]int)}
}

// NewID returns a 32-character random hex identifier.
func (g *RandomIDGenerator) NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// NextSequence returns the next value for the series.
func (g *RandomIDGenerator) NextSequence(series string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seqs[series]++
	return g.seqs[series]
}

// SequenceIDGenerator issues deterministic ids for tests.
type SequenceIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
	seqs   map[string]int
}

// NewSequenceIDGenerator constructs a deterministic generator. Ids are
// prefix-0001, prefix-0002, ...
func NewSequenceIDGenerator(prefix string) *SequenceIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDGenerator{prefix: prefix, seqs: make(map[string]int)}
}

// NewID returns the next deterministic identifier.
func (g *SequenceIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%04d", g.prefix, g.next)
}

// NextSequence returns the next value for the series.
func (g *SequenceIDGenerator) NextSequence(series string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seqs[series]++
	return g.seqs[series]
}
