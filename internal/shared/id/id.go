// Package id provides centralized ID generation for tilerelay.
//
// ULIDs are used wherever an ID ends up in a file name or a log line that
// benefits from time ordering (artifacts, trace spans, job runs). They are
// lexicographically sortable and carry millisecond timestamps, and the
// random component keeps two IDs minted in the same millisecond distinct.
//
// Connection IDs are random UUIDs: they are only ever used to correlate log
// lines for a single socket.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ArtifactID identifies a persisted scaled image
type ArtifactID string

// JobID identifies one run of the local tile pipeline
type JobID string

// TraceID identifies a request flow across relay and scale service
type TraceID string

// SpanID identifies a single traced operation
type SpanID string

// ConnID identifies one accepted or dialled connection
type ConnID string

const (
	ArtifactPrefix = "art"
	JobPrefix      = "job"
	TracePrefix    = "trace"
	SpanPrefix     = "span"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
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
		entropy: rand.Reader,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	return g.GenerateAt(time.Now())
}

// GenerateAt creates a new ULID carrying the given timestamp
func (g *Generator) GenerateAt(t time.Time) ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ArtifactIDAt creates an artifact ID whose ULID carries timestamp t
func (g *Generator) ArtifactIDAt(t time.Time) ArtifactID {
	return ArtifactID(fmt.Sprintf("%s_%s", ArtifactPrefix, g.GenerateAt(t)))
}

// NewJobID generates a new job ID
func NewJobID() JobID {
	return JobID(Default().GenerateWithPrefix(JobPrefix))
}

// NewTraceID generates a new trace ID
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

// NewConnID generates a random connection ID
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

func (id ArtifactID) String() string { return string(id) }

// ULID returns the ID without its prefix
func (id ArtifactID) ULID() string {
	return strings.TrimPrefix(string(id), ArtifactPrefix+"_")
}

func (id JobID) String() string   { return string(id) }
func (id TraceID) String() string { return string(id) }
func (id SpanID) String() string  { return string(id) }
func (id ConnID) String() string  { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
