package correction

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/proofline/internal/observe"
	"github.com/MrWong99/proofline/pkg/editor/memdoc"
	"github.com/MrWong99/proofline/pkg/editor/mock"
	oraclemock "github.com/MrWong99/proofline/pkg/oracle/mock"
)

// testMetrics returns metrics that record nowhere.
func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// fastOptions shrinks every delay so tests run in milliseconds.
func fastOptions(t *testing.T) []Option {
	return []Option{
		WithDebounce(20 * time.Millisecond),
		WithCooldown(30 * time.Millisecond),
		WithReleaseDelay(10 * time.Millisecond),
		WithHighlightDuration(60 * time.Millisecond),
		WithMetrics(testMetrics(t)),
	}
}

// startEngine creates and starts an engine bound to doc and wires the
// document's change notifications into it.
func startEngine(t *testing.T, doc *memdoc.Document, o *oraclemock.Oracle, opts ...Option) *Engine {
	t.Helper()
	e := New(doc, o, append(fastOptions(t), opts...)...)
	e.Start(context.Background())
	doc.OnChange(e.OnDocumentChanged)
	t.Cleanup(e.Close)
	return e
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// typeChars types s one character at a time.
func typeChars(t *testing.T, doc *memdoc.Document, s string) {
	t.Helper()
	for _, r := range s {
		if err := doc.Type(string(r)); err != nil {
			t.Fatalf("Type: %v", err)
		}
	}
}

func TestEngine_HeGoToSchool(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	o := &oraclemock.Oracle{Responses: map[string]string{
		"He go to school.": "He goes to school.",
	}}
	e := startEngine(t, doc, o)

	typeChars(t, doc, "He go to school.")

	waitFor(t, "correction", func() bool { return doc.PlainText() == "He goes to school." })
	if got := doc.MarkedText(); !slices.Equal(got, []string{"goes"}) {
		t.Errorf("marked = %q, want [goes]", got)
	}

	waitFor(t, "highlight removal", func() bool { return len(doc.Marks()) == 0 })
	waitFor(t, "idle", func() bool { return e.State() == StateIdle })

	want := []string{"He go to school.", "He goes to school."}
	if got := e.Corrected(); !slices.Equal(got, want) {
		t.Errorf("Corrected = %q, want %q", got, want)
	}
	if got := o.CallCount(); got != 1 {
		t.Errorf("oracle calls = %d, want 1", got)
	}
	if recs := e.Records(); len(recs) != 1 || recs[0].Original != "He go to school." {
		t.Errorf("Records = %+v", recs)
	}
}

func TestEngine_OneRequestPerBurst(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	o := &oraclemock.Oracle{}
	e := startEngine(t, doc, o, WithDebounce(80*time.Millisecond))

	// Several sentences completed inside one debounce window.
	typeChars(t, doc, "First one. Second one! Third one?")

	waitFor(t, "oracle call", func() bool { return o.CallCount() == 1 })
	time.Sleep(150 * time.Millisecond)
	if got := o.Calls(); !slices.Equal(got, []string{"Third one?"}) {
		t.Errorf("oracle calls = %q, want only the last sentence", got)
	}
	waitFor(t, "idle", func() bool { return e.State() == StateIdle })
}

func TestEngine_UnchangedMakesNoEdits(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("She goes to school.")
	o := &oraclemock.Oracle{}
	e := New(s, o, fastOptions(t)...)
	e.Start(context.Background())
	t.Cleanup(e.Close)

	e.OnDocumentChanged(s.PlainText())

	waitFor(t, "sentence judged", func() bool { return len(e.Corrected()) == 1 })
	if n := len(s.ReplaceCalls()); n != 0 {
		t.Errorf("ReplaceRange called %d times, want 0", n)
	}
	if n := len(s.AddMarkCalls()); n != 0 {
		t.Errorf("AddMark called %d times, want 0", n)
	}
	if got := e.Corrected(); !slices.Equal(got, []string{"She goes to school."}) {
		t.Errorf("Corrected = %q", got)
	}

	// The same sentence is never sent again.
	waitFor(t, "idle", func() bool { return e.State() == StateIdle })
	time.Sleep(40 * time.Millisecond)
	e.OnDocumentChanged(s.PlainText())
	time.Sleep(80 * time.Millisecond)
	if got := o.CallCount(); got != 1 {
		t.Errorf("oracle calls = %d, want 1", got)
	}
}

func TestEngine_FiltersShortAndBoilerplate(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	o := &oraclemock.Oracle{}
	startEngine(t, doc, o)

	typeChars(t, doc, "Hi.")
	time.Sleep(60 * time.Millisecond)
	typeChars(t, doc, "\nDear Sam,\n")
	time.Sleep(60 * time.Millisecond)
	typeChars(t, doc, "Thanks for everything.")
	time.Sleep(100 * time.Millisecond)

	if got := o.CallCount(); got != 0 {
		t.Errorf("oracle calls = %d (%q), want 0", got, o.Calls())
	}
}

func TestEngine_NoTerminatorNoRequest(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	o := &oraclemock.Oracle{}
	e := startEngine(t, doc, o)

	typeChars(t, doc, "He go to school")
	time.Sleep(80 * time.Millisecond)
	if got := o.CallCount(); got != 0 {
		t.Errorf("oracle calls = %d, want 0", got)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %v, want idle", e.State())
	}
}

func TestEngine_DriftWhileInFlight(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	gate := make(chan struct{})
	o := &oraclemock.Oracle{
		Gate:      gate,
		Responses: map[string]string{"He go to school.": "He goes to school."},
	}
	e := startEngine(t, doc, o)

	typeChars(t, doc, "He go to school.")
	waitFor(t, "request in flight", func() bool { return e.State() == StateRequesting })

	typeChars(t, doc, " And then we")
	close(gate)

	waitFor(t, "correction", func() bool { return doc.PlainText() == "He goes to school. And then we" })
}

func TestEngine_NotFoundAbandons(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	gate := make(chan struct{})
	o := &oraclemock.Oracle{
		Gate:      gate,
		Responses: map[string]string{"He go to school.": "He goes to school."},
	}
	e := startEngine(t, doc, o)

	typeChars(t, doc, "He go to school.")
	waitFor(t, "request in flight", func() bool { return e.State() == StateRequesting })

	if err := doc.SetText("Something else entirely"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	close(gate)

	waitFor(t, "cycle end", func() bool { return e.State() == StateIdle })
	if got := doc.PlainText(); got != "Something else entirely" {
		t.Errorf("text = %q, document was modified", got)
	}
	if n := len(e.Corrected()); n != 0 {
		t.Errorf("Corrected has %d entries after abandonment, want 0", n)
	}
}

func TestEngine_OracleFailureLeavesText(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	o := &oraclemock.Oracle{Err: errors.New("connection refused")}
	e := startEngine(t, doc, o)

	typeChars(t, doc, "He go to school.")
	waitFor(t, "oracle call", func() bool { return o.CallCount() == 1 })
	waitFor(t, "idle", func() bool { return e.State() == StateIdle })

	if got := doc.PlainText(); got != "He go to school." {
		t.Errorf("text = %q after failure", got)
	}
	if n := len(e.Corrected()); n != 0 {
		t.Errorf("Corrected has %d entries after failure, want 0", n)
	}

	// The failed sentence is not resubmitted straight away.
	time.Sleep(40 * time.Millisecond)
	typeChars(t, doc, "\n")
	time.Sleep(100 * time.Millisecond)
	if got := o.CallCount(); got != 1 {
		t.Errorf("oracle calls = %d, want 1", got)
	}
}

func TestEngine_Disabled(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	o := &oraclemock.Oracle{}
	e := startEngine(t, doc, o, WithEnabled(false))

	typeChars(t, doc, "He go to school.")
	time.Sleep(80 * time.Millisecond)
	if got := o.CallCount(); got != 0 {
		t.Fatalf("oracle calls while disabled = %d, want 0", got)
	}

	e.SetEnabled(true)
	if !e.Enabled() {
		t.Fatal("Enabled = false after SetEnabled(true)")
	}
	typeChars(t, doc, " She go home.")
	waitFor(t, "oracle call", func() bool { return o.CallCount() == 1 })
	if got := o.Calls()[0]; got != "She go home." {
		t.Errorf("submitted %q, want %q", got, "She go home.")
	}
}

func TestEngine_DisableCancelsDebounce(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	o := &oraclemock.Oracle{}
	e := startEngine(t, doc, o, WithDebounce(60*time.Millisecond))

	typeChars(t, doc, "He go to school.")
	waitFor(t, "debouncing", func() bool { return e.State() == StateDebouncing })
	e.SetEnabled(false)

	time.Sleep(150 * time.Millisecond)
	if got := o.CallCount(); got != 0 {
		t.Errorf("oracle calls = %d after disabling, want 0", got)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %v, want idle", e.State())
	}
}

func TestEngine_EditorDestroyedWhileInFlight(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("He go to school.")
	gate := make(chan struct{})
	o := &oraclemock.Oracle{
		Gate:      gate,
		Responses: map[string]string{"He go to school.": "He goes to school."},
	}
	e := New(s, o, fastOptions(t)...)
	e.Start(context.Background())
	t.Cleanup(e.Close)

	e.OnDocumentChanged(s.PlainText())
	waitFor(t, "request in flight", func() bool { return o.CallCount() == 1 })

	s.Kill()
	close(gate)

	select {
	case <-e.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after the editor went away")
	}
	if n := len(s.ReplaceCalls()); n != 0 {
		t.Errorf("ReplaceRange called %d times on a destroyed editor", n)
	}
	if e.State() != StateIdle {
		t.Errorf("state = %v, want idle", e.State())
	}
}

func TestEngine_CloseWhileInFlight(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	o := &oraclemock.Oracle{Gate: make(chan struct{})}
	e := New(doc, o, fastOptions(t)...)
	e.Start(context.Background())
	doc.OnChange(e.OnDocumentChanged)

	typeChars(t, doc, "He go to school.")
	waitFor(t, "request in flight", func() bool { return o.CallCount() == 1 })

	done := make(chan struct{})
	go func() {
		e.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on the in-flight request")
	}
	if e.State() != StateClosed {
		t.Errorf("state = %v, want closed", e.State())
	}
	// Further notifications are ignored.
	e.OnDocumentChanged("Another sentence here.")
}

func TestEngine_SentenceCompletedDuringCycleIsPickedUp(t *testing.T) {
	t.Parallel()

	doc := memdoc.New("")
	gate := make(chan struct{})
	o := &oraclemock.Oracle{
		Gate: gate,
		Responses: map[string]string{
			"He go to school.": "He goes to school.",
			"She go home.":     "She goes home.",
		},
	}
	startEngine(t, doc, o)

	typeChars(t, doc, "He go to school.")
	waitFor(t, "first request", func() bool { return o.CallCount() == 1 })

	typeChars(t, doc, " She go home.")
	close(gate)

	waitFor(t, "both corrections", func() bool {
		return doc.PlainText() == "He goes to school. She goes home."
	})
	if got := o.CallCount(); got != 2 {
		t.Errorf("oracle calls = %d, want 2", got)
	}
}

func TestEngine_ApplySettings(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("He go to school.")
	o := &oraclemock.Oracle{Responses: map[string]string{"He go to school.": "He goes to school."}}
	e := New(s, o, fastOptions(t)...)
	e.Start(context.Background())
	t.Cleanup(e.Close)

	settings := DefaultSettings()
	settings.Debounce = 10 * time.Millisecond
	settings.Cooldown = 10 * time.Millisecond
	settings.ReleaseDelay = 5 * time.Millisecond
	settings.HighlightDuration = 20 * time.Millisecond
	settings.Palette = Palette{Grammar: "red", Spelling: "blue"}
	e.Apply(settings)

	e.OnDocumentChanged(s.PlainText())
	waitFor(t, "mark", func() bool { return len(s.AddMarkCalls()) == 1 })
	if got := s.AddMarkCalls()[0].Tag; got != "red" {
		t.Errorf("mark tag = %q, want red", got)
	}
	waitFor(t, "unmark", func() bool { return len(s.RemoveMarkCalls()) == 1 })
	if got, want := s.RemoveMarkCalls()[0], s.AddMarkCalls()[0]; got != want {
		t.Errorf("removed %+v, want %+v", got, want)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{
		StateIdle:       "idle",
		StateDebouncing: "debouncing",
		StateRequesting: "requesting",
		StatePatching:   "patching",
		StateClosed:     "closed",
		State(42):       "state(42)",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}

func TestEngine_UnmarkAfterDocumentShrank(t *testing.T) {
	t.Parallel()

	s := mock.NewSurface("I went out. He go to school.")
	o := &oraclemock.Oracle{Responses: map[string]string{"He go to school.": "He goes to school."}}
	e := New(s, o, fastOptions(t)...)
	e.Start(context.Background())
	t.Cleanup(e.Close)

	e.OnDocumentChanged(s.PlainText())
	waitFor(t, "mark", func() bool { return len(s.AddMarkCalls()) == 1 })
	if got := s.AddMarkCalls()[0]; got.From != 15 || got.To != 19 {
		t.Fatalf("mark = %+v, want [15, 19)", got)
	}

	s.SetText("I went")

	waitFor(t, "unmark", func() bool { return len(s.RemoveMarkCalls()) == 1 })
	got := s.RemoveMarkCalls()[0]
	if got.From != 6 || got.To != 6 {
		t.Errorf("unmark = [%d, %d), want clamped to [6, 6)", got.From, got.To)
	}
	if got.Tag != s.AddMarkCalls()[0].Tag {
		t.Errorf("unmark tag = %q, want %q", got.Tag, s.AddMarkCalls()[0].Tag)
	}
}

// Not parallel: swaps the global tracer provider.
func TestEngine_FailedCycleSpanCarriesError(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	s := mock.NewSurface("He go to school.")
	o := &oraclemock.Oracle{Err: errors.New("connection refused")}
	e := New(s, o, fastOptions(t)...)
	e.Start(context.Background())
	t.Cleanup(e.Close)

	e.OnDocumentChanged(s.PlainText())
	waitFor(t, "cycle span", func() bool { return len(exp.GetSpans()) == 1 })

	span := exp.GetSpans()[0]
	if span.Name != "correction.cycle" {
		t.Errorf("span name = %q, want correction.cycle", span.Name)
	}
	if span.Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", span.Status.Code)
	}
	var outcome string
	for _, kv := range span.Attributes {
		if kv.Key == "outcome" {
			outcome = kv.Value.AsString()
		}
	}
	if outcome != observe.OutcomeFailed {
		t.Errorf("outcome attribute = %q, want %q", outcome, observe.OutcomeFailed)
	}
}
