package engine

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/sindano/internal/domain"
	"github.com/jkaninda/sindano/internal/sandbox"
)

// DocumentSource is the external document-retrieval collaborator.
// It is consumed once per pipeline run — never cached, never retried here.
type DocumentSource interface {
	Read(ctx context.Context, identity string) (string, error)
}

// RunRecorder persists patch-run audit records. Recording is best-effort:
// a recorder failure is logged, never surfaced into the outcome.
type RunRecorder interface {
	Record(ctx context.Context, run *domain.PatchRun) error
}

// Outcome is the full result record of one document's pipeline run.
// It is always returned, never thrown; an empty Errors list means clean.
type Outcome struct {
	Identity       string
	Original       string // Pre-patch text, retained only when PreserveOriginal is set.
	Patched        string
	MarkersFound   int
	PatchesApplied int
	Result         any    // Value of the last top-level expression, nil if none.
	Output         string // Captured default-console output.
	Errors         []string
	Duration       time.Duration
}

// OK reports whether the run completed without any recorded error.
func (o *Outcome) OK() bool { return len(o.Errors) == 0 }

// Config holds engine-level defaults.
type Config struct {
	// DefaultTimeout bounds sandbox execution when the spec sets none.
	DefaultTimeout time.Duration
}

// Engine runs the scan → plan → apply → execute pipeline over documents
// retrieved by identity. All non-execution stages are pure over immutable
// inputs; each pipeline run owns its document snapshot, marker list and
// plan exclusively.
type Engine struct {
	source         DocumentSource
	sandbox        sandbox.Sandbox
	defaultTimeout time.Duration
	logger         *slog.Logger

	runs    RunRecorder  // nil = audit disabled
	metrics *Metrics     // nil = metrics disabled
	tracer  trace.Tracer // nil = tracing disabled

	// Randomness for decoys and shuffling. Guarded because parallel batch
	// runs plan concurrently; injectable so tests can pin a permutation.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an Engine. A nil logger discards log output.
func New(source DocumentSource, sbx sandbox.Sandbox, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Engine{
		source:         source,
		sandbox:        sbx,
		defaultTimeout: timeout,
		logger:         logger,
		rng:            rand.New(rand.NewSource(cryptoSeed())),
	}
}

// WithRunRecorder enables patch-run audit persistence.
func (e *Engine) WithRunRecorder(r RunRecorder) *Engine {
	e.runs = r
	return e
}

// WithMetrics enables Prometheus metrics.
func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// WithTracer enables OpenTelemetry spans around pipeline stages.
func (e *Engine) WithTracer(t trace.Tracer) *Engine {
	e.tracer = t
	return e
}

// WithRand replaces the random source used for decoys and shuffling.
func (e *Engine) WithRand(rng *rand.Rand) *Engine {
	e.rng = rng
	return e
}

// Scan loads a document and reports its marker occurrences.
func (e *Engine) Scan(ctx context.Context, identity string) (ScanResult, error) {
	content, err := e.source.Read(ctx, identity)
	if err != nil {
		return ScanResult{}, fmt.Errorf("loading document %q: %w", identity, err)
	}
	return Scan(content), nil
}

// RunWithPatches runs the full pipeline for one document. Every stage
// failure is recorded in the outcome; the returned error is non-nil only
// for a malformed spec.
func (e *Engine) RunWithPatches(ctx context.Context, identity string, spec PatchSpec, caps map[string]any) (*Outcome, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return e.runPipeline(ctx, identity, spec, caps), nil
}

// BatchProcess runs the pipeline independently for each identity. One
// entry's failure is invisible to its siblings; the result mapping always
// contains every identity.
//
// Entries run sequentially so that a shared capability set (e.g. one output
// channel for the whole batch) observes a deterministic interleaving.
func (e *Engine) BatchProcess(ctx context.Context, identities []string, spec PatchSpec, caps map[string]any) (map[string]*Outcome, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.BatchSize.Observe(float64(len(identities)))
	}

	outcomes := make(map[string]*Outcome, len(identities))
	for _, identity := range identities {
		outcomes[identity] = e.runPipeline(ctx, identity, spec, caps)
	}
	return outcomes, nil
}

// BatchProcessParallel runs pipeline instances concurrently with a bounded
// worker pool. Each document MUST get an independently-scoped capability set
// through capsFor — sharing a mutable capability object across concurrent
// executions is not supported. A nil capsFor exposes only the defaults.
func (e *Engine) BatchProcessParallel(ctx context.Context, identities []string, spec PatchSpec, capsFor func(identity string) map[string]any, workers int) (map[string]*Outcome, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 4
	}
	if e.metrics != nil {
		e.metrics.BatchSize.Observe(float64(len(identities)))
	}

	type entry struct {
		identity string
		outcome  *Outcome
	}

	sem := make(chan struct{}, workers)
	results := make(chan entry, len(identities))
	var wg sync.WaitGroup

	for _, identity := range identities {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var caps map[string]any
			if capsFor != nil {
				caps = capsFor(id)
			}
			results <- entry{identity: id, outcome: e.runPipeline(ctx, id, spec, caps)}
		}(identity)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make(map[string]*Outcome, len(identities))
	for res := range results {
		outcomes[res.identity] = res.outcome
	}
	return outcomes, nil
}

// runPipeline drives one document through
// Loaded → Scanned → Planned → Patched → {Executed | Failed}.
// Strictly linear, no retry, no backtracking.
func (e *Engine) runPipeline(ctx context.Context, identity string, spec PatchSpec, caps map[string]any) *Outcome {
	start := time.Now()
	outcome := &Outcome{Identity: identity}

	if e.metrics != nil {
		e.metrics.ActiveRuns.Inc()
		defer e.metrics.ActiveRuns.Dec()
	}
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "pipeline.run",
			trace.WithAttributes(attribute.String("document.identity", identity)))
		defer span.End()
	}
	defer func() {
		outcome.Duration = time.Since(start)
		e.recordRun(ctx, outcome)
	}()

	// Loaded.
	content, err := e.source.Read(ctx, identity)
	if err != nil {
		e.logger.Warn("document load failed",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("failed to load document: %v", err))
		e.countRun("load_error")
		return outcome
	}
	if spec.PreserveOriginal {
		outcome.Original = content
	}

	// Scanned.
	scan := Scan(content)
	outcome.MarkersFound = scan.Count
	if e.metrics != nil {
		e.metrics.MarkersFound.Observe(float64(scan.Count))
	}
	if scan.Count == 0 {
		outcome.Patched = content // Returned unmodified, character for character.
		outcome.Errors = append(outcome.Errors, ErrNoMarkers.Error())
		e.countRun("no_markers")
		return outcome
	}

	// Planned.
	e.rngMu.Lock()
	plan := BuildPlan(scan.Count, spec, e.rng)
	e.rngMu.Unlock()

	// Patched.
	patched, applied := Apply(content, plan)
	outcome.Patched = patched
	outcome.PatchesApplied = applied
	if e.metrics != nil {
		e.metrics.PatchesApplied.Add(float64(applied))
	}
	e.logger.Debug("document patched",
		slog.String("identity", identity),
		slog.Int("markers", scan.Count),
		slog.Int("applied", applied),
		slog.Int("plan_size", len(plan)),
	)

	// Executed | Failed.
	timeout := spec.Timeout()
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	res, err := e.sandbox.Execute(ctx, sandbox.Request{
		Source:       patched,
		Capabilities: caps,
		Timeout:      timeout,
	})
	if err != nil {
		outcome.Errors = append(outcome.Errors, err.Error())
		e.countRun(executionStatus(err))
		if e.metrics != nil {
			e.metrics.ExecutionsTotal.WithLabelValues(executionStatus(err)).Inc()
		}
		return outcome
	}

	outcome.Result = res.Value
	outcome.Output = res.Output
	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues("ok").Inc()
		e.metrics.ExecutionDuration.Observe(res.Duration.Seconds())
	}
	e.countRun("ok")
	return outcome
}

// recordRun persists the audit record, best-effort.
func (e *Engine) recordRun(ctx context.Context, outcome *Outcome) {
	if e.runs == nil {
		return
	}
	run := &domain.PatchRun{
		ID:             uuid.New(),
		Identity:       outcome.Identity,
		MarkersFound:   outcome.MarkersFound,
		PatchesApplied: outcome.PatchesApplied,
		Executed:       outcome.PatchesApplied > 0 && executionReached(outcome),
		Errors:         outcome.Errors,
		DurationMs:     outcome.Duration.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.runs.Record(ctx, run); err != nil {
		e.logger.Warn("failed to record patch run",
			slog.String("identity", outcome.Identity),
			slog.String("error", err.Error()),
		)
	}
}

// executionReached reports whether the pipeline got past the patch stage.
func executionReached(o *Outcome) bool {
	for _, desc := range o.Errors {
		if desc == ErrNoMarkers.Error() {
			return false
		}
	}
	return o.Patched != ""
}

func executionStatus(err error) string {
	var fault *sandbox.FaultError
	switch {
	case errors.Is(err, sandbox.ErrExecutionTimeout):
		return "timeout"
	case errors.As(err, &fault):
		return "fault"
	default:
		return "error"
	}
}

func (e *Engine) countRun(status string) {
	if e.metrics != nil {
		e.metrics.RunsTotal.WithLabelValues(status).Inc()
	}
}

// cryptoSeed seeds the default random source from the OS entropy pool.
func cryptoSeed() int64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
