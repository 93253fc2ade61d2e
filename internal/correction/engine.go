// Package correction is Proofline's incremental sentence-correction engine.
//
// An [Engine] watches a document through change notifications, detects that a
// sentence was just completed, asks an [oracle.Oracle] for its corrected form,
// relocates the sentence in the document (which may have kept changing during
// the round-trip), splices the correction in and briefly highlights the words
// that changed.
//
// Every state transition runs on a single loop goroutine that consumes an
// event channel. Timers and the oracle call only post events back to it, so
// the at-most-one-cycle rule is enforced in exactly one place, the [Gate].
//
//	Idle ──terminator──▶ Debouncing ──timer──▶ Requesting ──result──▶ Patching ──release──▶ Idle
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/proofline/internal/observe"
	"github.com/MrWong99/proofline/internal/sentence"
	"github.com/MrWong99/proofline/pkg/editor"
	"github.com/MrWong99/proofline/pkg/oracle"
)

// State is the engine's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateDebouncing
	StateRequesting
	StatePatching
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateRequesting:
		return "requesting"
	case StatePatching:
		return "patching"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Settings are the engine tunables. They can be changed on a running engine
// with [Engine.Apply].
type Settings struct {
	// Debounce is how long the document must stay quiet after a sentence was
	// completed before it is sent.
	Debounce time.Duration

	// Cooldown is the minimum time between the release of one cycle and the
	// start of the next.
	Cooldown time.Duration

	// ReleaseDelay keeps the gate closed for a moment after a cycle resolved
	// so change events caused by the correction itself settle first.
	ReleaseDelay time.Duration

	// HighlightDuration is how long changed words stay marked.
	HighlightDuration time.Duration

	// Palette maps change kinds to mark tags.
	Palette Palette
}

// DefaultSettings returns the tunables used when no option overrides them.
func DefaultSettings() Settings {
	return Settings{
		Debounce:          600 * time.Millisecond,
		Cooldown:          1200 * time.Millisecond,
		ReleaseDelay:      200 * time.Millisecond,
		HighlightDuration: time.Second,
		Palette:           DefaultPalette,
	}
}

// Option configures an [Engine].
type Option func(*Engine)

// WithSettings replaces all tunables at once.
func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.settings.Debounce = d }
}

// WithCooldown sets the gap enforced between cycles.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) { e.settings.Cooldown = d }
}

// WithReleaseDelay sets the settle time before the gate reopens.
func WithReleaseDelay(d time.Duration) Option {
	return func(e *Engine) { e.settings.ReleaseDelay = d }
}

// WithHighlightDuration sets how long changed words stay marked.
func WithHighlightDuration(d time.Duration) Option {
	return func(e *Engine) { e.settings.HighlightDuration = d }
}

// WithPalette sets the highlight tags.
func WithPalette(p Palette) Option {
	return func(e *Engine) { e.settings.Palette = p }
}

// WithEnabled sets the initial value of the correction toggle. Default: true.
func WithEnabled(on bool) Option {
	return func(e *Engine) { e.enabled.Store(on) }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine runs correction cycles for one editor surface. Create one per
// editing session with [New], call [Engine.Start], feed it with
// [Engine.OnDocumentChanged] and [Engine.Close] it with the editor.
type Engine struct {
	surface    editor.Surface
	oracle     oracle.Oracle
	oracleName string

	settings Settings
	log      *slog.Logger
	metrics  *observe.Metrics

	set      *CorrectedSet
	gate     *Gate
	patcher  *Patcher
	debounce debouncer

	events  chan any
	state   atomic.Int32
	enabled atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
	stopped   chan struct{}
	wg        sync.WaitGroup

	// Owned by the loop goroutine.
	snapshot      string
	pending       string
	hasPending    bool
	lastSubmitted string
	cycle         *cycle
}

// cycle is one submitted sentence on its way through the engine.
type cycle struct {
	id       string
	sentence sentence.Sentence
	started  time.Time
	ctx      context.Context
	span     trace.Span
	log      *slog.Logger
	outcome  string
	err      error // failure recorded on the span
}

// finish closes the cycle's span with its outcome.
func (c *cycle) finish() {
	c.span.SetAttributes(attribute.String("outcome", c.outcome))
	observe.EndSpan(c.span, c.err)
}

type (
	changedEvent  struct{ text string }
	debounceEvent struct{ gen uint64 }
	oracleEvent   struct {
		c         *cycle
		corrected string
		err       error
		took      time.Duration
	}
	releaseEvent  struct{ c *cycle }
	unmarkEvent   struct{ marks []editor.Span }
	settingsEvent struct{ s Settings }
	enabledEvent  struct{ on bool }
)

// New creates an engine bound to surface and o. It does nothing until
// [Engine.Start] is called.
func New(surface editor.Surface, o oracle.Oracle, opts ...Option) *Engine {
	e := &Engine{
		surface:    surface,
		oracle:     o,
		oracleName: oracle.NameOf(o),
		settings:   DefaultSettings(),
		log:        slog.Default(),
		set:        NewCorrectedSet(),
		events:     make(chan any, 64),
		stopped:    make(chan struct{}),
	}
	e.enabled.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	e.gate = NewGate(e.settings.Cooldown)
	e.patcher = NewPatcher(e.settings.Palette)
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Start launches the event loop. The engine stops when ctx is cancelled or
// [Engine.Close] is called. Calling Start more than once has no effect.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		context.AfterFunc(ctx, e.cancel)
		go e.run()
	})
}

// Close stops the engine, discards pending work and waits for the loop and
// any outstanding oracle call to return. Marks still on the surface are left
// alone. Close is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		e.debounce.Stop()
		e.startOnce.Do(func() { close(e.stopped) })
		<-e.stopped
		e.wg.Wait()
		e.state.Store(int32(StateClosed))
	})
}

// Done is closed once the engine loop has exited, either through
// [Engine.Close], cancellation of the Start context, or because the editor
// surface went away.
func (e *Engine) Done() <-chan struct{} { return e.stopped }

// OnDocumentChanged notifies the engine that the user edited the document.
// fullText is the document's plain text after the edit. It never blocks on
// the oracle and may be called from any goroutine.
func (e *Engine) OnDocumentChanged(fullText string) {
	if !e.enabled.Load() {
		return
	}
	e.post(changedEvent{text: fullText})
}

// SetEnabled turns correction on or off. Turning it off cancels a pending
// debounce, and a correction that is in flight is discarded when it returns.
func (e *Engine) SetEnabled(on bool) {
	e.enabled.Store(on)
	e.post(enabledEvent{on: on})
}

// Enabled reports the correction toggle.
func (e *Engine) Enabled() bool { return e.enabled.Load() }

// Apply replaces the tunables of a running engine. The new values take
// effect from the next transition that uses them.
func (e *Engine) Apply(s Settings) {
	e.post(settingsEvent{s: s})
}

// State returns the current state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Corrected returns the sentences judged so far, sorted.
func (e *Engine) Corrected() []string { return e.set.Sentences() }

// Records returns the corrections applied so far, in order.
func (e *Engine) Records() []Record { return e.set.Records() }

func (e *Engine) post(ev any) {
	select {
	case e.events <- ev:
	case <-e.ctx.Done():
	}
}

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

func (e *Engine) run() {
	defer close(e.stopped)
	defer e.discard()

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.events:
			switch ev := ev.(type) {
			case changedEvent:
				e.onChanged(ev.text)
			case debounceEvent:
				e.onDebounce(ev.gen)
			case oracleEvent:
				e.onResult(ev)
			case releaseEvent:
				e.onRelease(ev.c)
			case unmarkEvent:
				e.onUnmark(ev.marks)
			case settingsEvent:
				e.onSettings(ev.s)
			case enabledEvent:
				e.onEnabled(ev.on)
			}
		}
	}
}

// discard drops everything the loop still holds. Runs when the loop exits.
func (e *Engine) discard() {
	e.debounce.Stop()
	e.snapshot, e.pending, e.hasPending = "", "", false
	if c := e.cycle; c != nil {
		if c.outcome == "" {
			e.metrics.RecordCycle(c.ctx, observe.OutcomeDiscarded)
			c.outcome = observe.OutcomeDiscarded
		}
		c.finish()
		e.cycle = nil
	}
	e.setState(StateIdle)
}

// alive checks the surface and shuts the engine down once it is gone.
func (e *Engine) alive() bool {
	if e.surface.IsAlive() {
		return true
	}
	e.log.Debug("editor gone, stopping correction engine")
	e.cancel()
	return false
}

func (e *Engine) onChanged(text string) {
	if !e.enabled.Load() || !e.alive() {
		return
	}
	if !sentence.EndsWithTerminator(text) {
		return
	}
	if e.gate.InFlight() {
		// Looked at again once the running cycle is released.
		e.pending, e.hasPending = text, true
		return
	}
	e.snapshot = text
	delay := max(e.settings.Debounce, e.gate.Remaining(time.Now()))
	e.debounce.Reset(delay, func(gen uint64) { e.post(debounceEvent{gen: gen}) })
	e.setState(StateDebouncing)
}

func (e *Engine) onDebounce(gen uint64) {
	if !e.debounce.Current(gen) {
		return
	}
	e.debounce.clear(gen)
	e.setState(StateIdle)

	text := e.snapshot
	e.snapshot = ""
	if !e.enabled.Load() || !e.alive() {
		return
	}
	if !e.gate.Admit(time.Now()) {
		e.log.Debug("correction gate closed, skipping")
		return
	}
	s, ok := sentence.Segment(text)
	if !ok {
		return
	}
	if e.set.Contains(s.Text) || s.Text == e.lastSubmitted {
		return
	}
	e.submit(s)
}

func (e *Engine) submit(s sentence.Sentence) {
	e.gate.Begin()
	e.lastSubmitted = s.Text

	id := uuid.NewString()
	ctx, span := observe.StartSpan(e.ctx, "correction.cycle",
		trace.WithAttributes(
			attribute.String("cycle", id),
			attribute.String("oracle", e.oracleName),
		),
	)
	c := &cycle{
		id:       id,
		sentence: s,
		started:  time.Now(),
		ctx:      ctx,
		span:     span,
		log:      observe.LoggerFrom(ctx, e.log).With("cycle", id),
	}
	e.cycle = c
	e.setState(StateRequesting)
	c.log.Debug("submitting sentence", "sentence", s.Text, "oracle", e.oracleName)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		start := time.Now()
		out, err := e.oracle.Correct(ctx, s.Text)
		e.post(oracleEvent{c: c, corrected: out, err: err, took: time.Since(start)})
	}()
}

func (e *Engine) onResult(ev oracleEvent) {
	c := ev.c
	if c != e.cycle {
		return
	}
	e.setState(StatePatching)

	status := "ok"
	if ev.err != nil {
		status = "error"
	}
	e.metrics.OracleDuration.Record(c.ctx, ev.took.Seconds())
	e.metrics.RecordOracleRequest(c.ctx, e.oracleName, status)

	outcome, err := e.resolve(c, ev)
	c.outcome = outcome
	e.metrics.RecordCycle(c.ctx, outcome)

	switch outcome {
	case observe.OutcomeCorrected:
		c.log.Info("sentence corrected", "took", ev.took)
	case observe.OutcomeUnchanged:
		c.log.Debug("sentence already correct")
	case observe.OutcomeFailed:
		c.log.Warn("correction failed", "err", err)
	default:
		c.log.Debug("correction abandoned", "outcome", outcome, "err", err)
	}
	if outcome == observe.OutcomeFailed {
		c.err = err
	}

	time.AfterFunc(e.settings.ReleaseDelay, func() { e.post(releaseEvent{c: c}) })
}

// resolve turns an oracle answer into a document edit and reports the
// outcome. It never returns an error to the editor; the error is only for
// logging.
func (e *Engine) resolve(c *cycle, ev oracleEvent) (string, error) {
	original := c.sentence.Text

	if ev.err != nil {
		e.metrics.RecordOracleError(c.ctx, e.oracleName, errorKind(ev.err))
		return observe.OutcomeFailed, fmt.Errorf("%w: %w", ErrTransportUnavailable, ev.err)
	}
	if !e.enabled.Load() || !e.alive() {
		return observe.OutcomeDiscarded, nil
	}

	corrected := strings.TrimSpace(ev.corrected)
	if corrected == "" {
		return observe.OutcomeFailed, fmt.Errorf("%w: %w", ErrTransportUnavailable, oracle.ErrEmptyResult)
	}
	if corrected == original {
		e.set.Add(original)
		return observe.OutcomeUnchanged, nil
	}

	full := e.surface.PlainText()
	m, ok := Locate(full, original)
	if !ok {
		return observe.OutcomeNotFound, ErrPositionNotFound
	}

	p, err := e.patcher.Apply(e.surface, full, original, corrected, m)
	switch {
	case err == nil:
	case errors.Is(err, ErrStaleDocument):
		return observe.OutcomeStale, err
	case errors.Is(err, ErrPositionNotFound):
		return observe.OutcomeNotFound, err
	case errors.Is(err, editor.ErrClosed):
		e.cancel()
		return observe.OutcomeDiscarded, err
	default:
		return observe.OutcomeFailed, err
	}

	e.set.Record(Record{Original: original, Corrected: corrected})
	for _, ch := range p.Changes {
		e.metrics.RecordHighlights(c.ctx, string(ch.Kind), 1)
	}
	if len(p.Marks) > 0 {
		marks := p.Marks
		time.AfterFunc(e.settings.HighlightDuration, func() { e.post(unmarkEvent{marks: marks}) })
	}
	return observe.OutcomeCorrected, nil
}

func (e *Engine) onRelease(c *cycle) {
	if c != e.cycle {
		return
	}
	e.gate.Release(time.Now())
	e.cycle = nil
	e.setState(StateIdle)
	e.metrics.CycleDuration.Record(c.ctx, time.Since(c.started).Seconds(),
		metric.WithAttributes(attribute.String("outcome", c.outcome)))
	c.finish()

	if e.hasPending {
		text := e.pending
		e.pending, e.hasPending = "", false
		e.onChanged(text)
	}
}

func (e *Engine) onUnmark(marks []editor.Span) {
	if !e.surface.IsAlive() {
		return
	}
	// Edits since the patch may have shortened the document.
	n := utf8.RuneCountInString(e.surface.PlainText())
	for _, m := range marks {
		from, to := min(m.From, n), min(m.To, n)
		if err := e.surface.RemoveMark(from, to, m.Tag); err != nil {
			e.log.Debug("failed to remove highlight", "from", from, "to", to, "err", err)
		}
	}
}

func (e *Engine) onSettings(s Settings) {
	e.settings = s
	e.gate.SetCooldown(s.Cooldown)
	e.patcher.SetPalette(s.Palette)
	e.log.Debug("correction settings applied",
		"debounce", s.Debounce,
		"cooldown", s.Cooldown,
		"release_delay", s.ReleaseDelay,
		"highlight", s.HighlightDuration,
	)
}

func (e *Engine) onEnabled(on bool) {
	if on {
		return
	}
	e.debounce.Stop()
	e.snapshot, e.pending, e.hasPending = "", "", false
	if e.State() == StateDebouncing {
		e.setState(StateIdle)
	}
}

// errorKind buckets oracle errors for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
