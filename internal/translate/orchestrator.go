package translate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/translatekit/chatbridge/config"
	"github.com/translatekit/chatbridge/tools/chunker"
	"github.com/translatekit/chatbridge/tools/glossary"
)

// Surface abstracts the browser-driven chat surface so the orchestrator
// can be exercised with a fake in tests.
type Surface interface {
	// Open acquires the session, opens a dedicated page, navigates to
	// the chat surface and authenticates. The returned page is owned by
	// the job and closed on every exit path.
	Open(ctx context.Context, surfaceURL string) (SurfacePage, error)
}

// SurfacePage is the job's dedicated page. Submit runs the chunk
// submission protocol; Recover reloads and re-authenticates between the
// orchestrator's retry cycles.
type SurfacePage interface {
	Submit(ctx context.Context, chunk, promptPrefix string) (string, error)
	Recover(ctx context.Context) error
	Close()
}

// Orchestrator drives whole-document jobs chunk by chunk, strictly in
// source order, and emits progress events. A single chunk failure never
// aborts the job: after one reload+reauth+retry cycle the chunk is
// recorded as a visible error block and the job continues.
type Orchestrator struct {
	surface Surface
	cfg     config.TranslateConfig
	settle  time.Duration
	logger  *log.Logger

	// chunk is swappable for tests; defaults to the chunker collaborator.
	chunk func(text string) []string
}

func NewOrchestrator(surface Surface, cfg config.TranslateConfig, settle time.Duration) *Orchestrator {
	cfg = cfg.Normalize()
	if settle <= 0 {
		settle = time.Second
	}
	return &Orchestrator{
		surface: surface,
		cfg:     cfg,
		settle:  settle,
		logger:  log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
		chunk: func(text string) []string {
			return chunker.Chunk(text, chunker.Options{MaxChars: cfg.MaxChunkChars})
		},
	}
}

// Run starts a job and returns its ordered event stream. The channel is
// closed after the terminal event. Cancelling ctx aborts the job and
// closes the page.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 4)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, req Request, events chan<- Event) {
	job := &Job{ID: uuid.NewString(), Status: StatusPending}

	job.Chunks = o.chunk(req.Text)
	if len(job.Chunks) == 0 {
		o.fatal(ctx, events, job, fmt.Errorf("nothing to translate after segmentation"))
		return
	}
	if len(req.Glossary) > 0 {
		for i, c := range job.Chunks {
			job.Chunks[i] = glossary.Apply(c, req.Glossary)
		}
	}

	page, err := o.surface.Open(ctx, req.SurfaceURL)
	if err != nil {
		o.fatal(ctx, events, job, fmt.Errorf("chat surface unavailable: %w", err))
		return
	}
	defer page.Close()

	job.Status = StatusRunning
	totalWords := 0
	for _, c := range job.Chunks {
		totalWords += wordWeight(c)
	}
	if totalWords == 0 {
		totalWords = 1
	}

	processedWords := 0
	for i, chunk := range job.Chunks {
		if ctx.Err() != nil {
			job.Status = StatusAborted
			jobsTotal.WithLabelValues(string(StatusAborted)).Inc()
			o.logger.Printf("job %s aborted at chunk %d/%d", job.ID, i+1, len(job.Chunks))
			return
		}
		job.CurrentIndex = i

		res := o.handleChunk(ctx, page, chunk, req.PromptPrefix)
		if job.Accumulated.Len() > 0 {
			job.Accumulated.WriteString("\n\n")
		}
		job.Accumulated.WriteString(res.Text)

		processedWords += wordWeight(chunk)
		progress := float64(processedWords) / float64(totalWords) * 100

		if !res.Succeeded {
			job.Status = StatusChunkFailed
			if !o.emit(ctx, events, Event{
				Type:  EventChunkError,
				Chunk: i,
				Total: len(job.Chunks),
				Err:   fmt.Errorf("chunk %d failed after recovery; its section is marked in the output", i+1),
			}) {
				return
			}
		}
		if !o.emit(ctx, events, Event{
			Type:     EventProgress,
			Partial:  job.Accumulated.String(),
			Chunk:    i,
			Total:    len(job.Chunks),
			Progress: progress,
		}) {
			return
		}
	}

	job.Status = StatusCompleted
	jobsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	o.emit(ctx, events, Event{Type: EventEnd, Final: job.Accumulated.String(), Total: len(job.Chunks)})
}

// handleChunk runs the submission protocol for one chunk, with the
// orchestrator's recovery cycle: on failure, reload + reauthenticate,
// settle, and retry the same chunk exactly once more. A still-failing
// chunk becomes a clearly delimited error block; garbled output is
// always visibly marked, never silently dropped.
func (o *Orchestrator) handleChunk(ctx context.Context, page SurfacePage, chunk, promptPrefix string) ChunkResult {
	start := time.Now()
	defer func() { chunkSeconds.Observe(time.Since(start).Seconds()) }()

	reply, err := page.Submit(ctx, chunk, promptPrefix)
	if err == nil {
		chunksTotal.WithLabelValues("ok").Inc()
		return ChunkResult{Text: reply, Succeeded: true, Attempts: 1}
	}
	o.logger.Printf("chunk failed (%v), recovering page", err)

	if rerr := page.Recover(ctx); rerr != nil {
		o.logger.Printf("recovery failed: %v", rerr)
		chunksTotal.WithLabelValues("failed").Inc()
		return ChunkResult{Text: o.errorBlock(chunk), Attempts: 1}
	}
	select {
	case <-ctx.Done():
		chunksTotal.WithLabelValues("aborted").Inc()
		return ChunkResult{Text: o.errorBlock(chunk), Attempts: 1}
	case <-time.After(o.settle):
	}

	reply, err = page.Submit(ctx, chunk, promptPrefix)
	if err == nil {
		chunksTotal.WithLabelValues("recovered").Inc()
		return ChunkResult{Text: reply, Succeeded: true, Attempts: 2}
	}
	o.logger.Printf("chunk failed again after recovery: %v", err)
	chunksTotal.WithLabelValues("failed").Inc()
	return ChunkResult{Text: o.errorBlock(chunk), Attempts: 2}
}

func (o *Orchestrator) errorBlock(chunk string) string {
	preview := chunk
	if runes := []rune(preview); len(runes) > o.cfg.ErrorPreviewChars {
		preview = string(runes[:o.cfg.ErrorPreviewChars]) + "..."
	}
	return fmt.Sprintf("--- %s ---\n%s", ErrorMarker, preview)
}

func (o *Orchestrator) fatal(ctx context.Context, events chan<- Event, job *Job, err error) {
	job.Status = StatusAborted
	jobsTotal.WithLabelValues("fatal").Inc()
	o.emit(ctx, events, Event{Type: EventFatal, Err: err})
}

// emit delivers an event unless the job was cancelled; it reports
// whether the job should keep going.
func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
