package translate

import (
	"strings"
	"unicode"

	"github.com/translatekit/chatbridge/tools/glossary"
)

// Status is the lifecycle state of a translation job.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusChunkFailed Status = "chunk_failed"
	StatusCompleted   Status = "completed"
	StatusAborted     Status = "aborted"
)

// Request is one end-to-end document translation request.
type Request struct {
	Text         string
	SurfaceURL   string
	PromptPrefix string
	Glossary     []glossary.Entry
}

// Job tracks one document translation decomposed into ordered chunks.
// Mutated only by the orchestrator; not persisted (the caller owns
// durable storage of results).
type Job struct {
	ID           string
	Chunks       []string
	CurrentIndex int
	Accumulated  strings.Builder
	Status       Status
}

// ChunkResult records the outcome of one chunk, immutable once appended
// to the job's accumulated output.
type ChunkResult struct {
	Text      string
	Succeeded bool
	Attempts  int
}

// EventType discriminates orchestrator progress events.
type EventType int

const (
	// EventProgress carries cumulative output after a handled chunk.
	EventProgress EventType = iota
	// EventChunkError reports a chunk that exhausted recovery; the job
	// continues.
	EventChunkError
	// EventEnd is terminal and carries the full accumulated text.
	EventEnd
	// EventFatal is terminal: the job aborted outside the per-chunk
	// retry envelope.
	EventFatal
)

// Event is one orchestrator progress emission. Events arrive strictly
// in chunk order; exactly one terminal event (End or Fatal) closes a
// job that was successfully started.
type Event struct {
	Type     EventType
	Partial  string
	Chunk    int
	Total    int
	Progress float64
	Final    string
	Err      error
}

// ErrorMarker is the literal marker embedded in the output wherever a
// chunk exhausted its recovery retries.
const ErrorMarker = "TRANSLATION ERROR FOR THIS SECTION"

// wordWeight counts words for progress weighting: each Han rune counts
// as one word, and each whitespace-delimited run of other characters
// counts as one. Chapter-sized CJK chunks therefore weight progress
// proportionally instead of counting as a single token.
func wordWeight(s string) int {
	words := 0
	inWord := false
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Han, r):
			words++
			inWord = false
		case unicode.IsSpace(r):
			inWord = false
		default:
			if !inWord {
				words++
				inWord = true
			}
		}
	}
	return words
}
