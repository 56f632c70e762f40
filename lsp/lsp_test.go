// Copyright © 2024 The rapidls authors

package lsp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rapidls/rapidls/analysis"
	"github.com/rapidls/rapidls/metrics"
	"github.com/rapidls/rapidls/parser"
	"github.com/rapidls/rapidls/position"
	"github.com/rapidls/rapidls/rapidtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const testURI = "file:///robot/MainModule.mod"

// recorder captures the notifications a server sends.
type recorder struct {
	mu          sync.Mutex
	diagnostics []*protocol.PublishDiagnosticsParams
	logs        []*protocol.LogMessageParams
}

func (r *recorder) notify(method string, params any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch method {
	case protocol.ServerTextDocumentPublishDiagnostics:
		r.diagnostics = append(r.diagnostics, params.(*protocol.PublishDiagnosticsParams))
	case protocol.ServerWindowLogMessage:
		r.logs = append(r.logs, params.(*protocol.LogMessageParams))
	}
}

func (r *recorder) published() []*protocol.PublishDiagnosticsParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.PublishDiagnosticsParams(nil), r.diagnostics...)
}

func (r *recorder) logMessages() []*protocol.LogMessageParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.LogMessageParams(nil), r.logs...)
}

// capturingContext returns a context that records notifications.
func capturingContext() (*glsp.Context, *recorder) {
	rec := &recorder{}
	return &glsp.Context{Notify: rec.notify}, rec
}

// mockContext returns a minimal glsp.Context for testing.
func mockContext() *glsp.Context {
	return &glsp.Context{
		Notify: func(method string, params any) {},
	}
}

func openParams(uri, text string) *protocol.DidOpenTextDocumentParams {
	return &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: DefaultLanguageID,
			Version:    1,
			Text:       text,
		},
	}
}

func changeParams(uri string, version int32, text string) *protocol.DidChangeTextDocumentParams {
	return &protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
			Version:                protocol.Integer(version),
		},
		ContentChanges: []any{
			protocol.TextDocumentContentChangeEventWhole{Text: text},
		},
	}
}

// --- Document store tests ---

func TestDocumentStore(t *testing.T) {
	t.Run("Open", func(t *testing.T) {
		store := NewDocumentStore()
		doc := store.Open(testURI, "rapid", 1, "MODULE m\nENDMODULE")
		require.NotNil(t, doc)
		assert.Equal(t, "MODULE m\nENDMODULE", doc.Content)
		assert.Equal(t, "rapid", doc.LanguageID)
	})
	t.Run("Get", func(t *testing.T) {
		store := NewDocumentStore()
		store.Open(testURI, "rapid", 1, "MODULE m")
		got := store.Get(testURI)
		require.NotNil(t, got)
		assert.Equal(t, "MODULE m", got.Content)
		assert.Nil(t, store.Get("file:///nonexistent.mod"))
	})
	t.Run("Change", func(t *testing.T) {
		store := NewDocumentStore()
		store.Open(testURI, "rapid", 1, "MODULE m")
		changed := store.Change(testURI, 2, "MODULE n")
		assert.Equal(t, "MODULE n", changed.Content)
		assert.Equal(t, int32(2), changed.Version)
		assert.Equal(t, "rapid", changed.LanguageID, "language id survives changes")
	})
	t.Run("Change unknown", func(t *testing.T) {
		store := NewDocumentStore()
		doc := store.Change(testURI, 4, "MODULE m")
		assert.Empty(t, doc.LanguageID)
		assert.Same(t, doc, store.Get(testURI))
	})
	t.Run("Close", func(t *testing.T) {
		store := NewDocumentStore()
		store.Open(testURI, "rapid", 1, "MODULE m")
		store.Close(testURI)
		assert.Nil(t, store.Get(testURI))
	})
}

// --- Diagnostics tests ---

func TestDiagnosticsOnOpen_Success(t *testing.T) {
	s := New(WithParser(rapidtest.Success()))
	ctx, rec := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "MODULE m\nENDMODULE")))
	pubs := rec.published()
	require.Len(t, pubs, 1)
	assert.Equal(t, testURI, pubs[0].URI)
	assert.NotNil(t, pubs[0].Diagnostics)
	assert.Empty(t, pubs[0].Diagnostics)
	_, ok := s.diags.get(testURI)
	assert.False(t, ok, "success removes the set")
}

func TestDiagnosticsOnOpen_PositionedError(t *testing.T) {
	s := New(WithParser(rapidtest.Raw(`{"success":false,"errors":[{"message":"X","error_position":[3,7]}]}`)))
	ctx, rec := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "let a = b")))
	pubs := rec.published()
	require.Len(t, pubs, 1)
	require.Len(t, pubs[0].Diagnostics, 1)
	d := pubs[0].Diagnostics[0]
	assert.Equal(t, "X", d.Message)
	assert.Equal(t, protocol.DiagnosticSeverityError, *d.Severity)
	assert.Equal(t, "rapid", *d.Source)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 0, Character: 3},
		End:   protocol.Position{Line: 0, Character: 7},
	}, d.Range)
}

func TestDiagnosticsUnlocatedErrorCoversDocument(t *testing.T) {
	text := "MODULE m\n  VAR num x;\nENDMODULE"
	s := New(WithParser(rapidtest.Failure(rapidtest.Unlocated("User error: boom"))))
	ctx, rec := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, text)))
	pubs := rec.published()
	require.Len(t, pubs, 1)
	require.Len(t, pubs[0].Diagnostics, 1)
	r := pubs[0].Diagnostics[0].Range
	assert.Equal(t, protocol.Position{Line: 0, Character: 0}, r.Start)
	assert.Equal(t, protocol.Position{Line: 2, Character: 9}, r.End)
}

func TestDiagnosticsOnePerError(t *testing.T) {
	s := New(WithParser(rapidtest.Failure(
		rapidtest.At("first", 0, 6),
		rapidtest.At("second", 9, 12),
		rapidtest.Unlocated("third"),
	)))
	ctx, rec := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "MODULE m\nVAR")))
	pubs := rec.published()
	require.Len(t, pubs, 1)
	var messages []string
	for _, d := range pubs[0].Diagnostics {
		messages = append(messages, d.Message)
	}
	assert.Equal(t, []string{"first", "second", "third"}, messages)
}

func TestDiagnosticsReplacedOnChange(t *testing.T) {
	rp := &rapidtest.Recording{Parser: rapidtest.Failure(rapidtest.At("X", 0, 1))}
	s := New(WithParser(rp))
	ctx, rec := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "MODULE")))
	got, ok := s.diags.get(testURI)
	require.True(t, ok)
	require.Len(t, got, 1)

	rp.Set(rapidtest.Failure(rapidtest.At("Y", 1, 2), rapidtest.At("Z", 2, 3)))
	require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, 2, "MODULE m")))
	got, _ = s.diags.get(testURI)
	require.Len(t, got, 2, "the set is replaced, not merged")
	assert.Equal(t, "Y", got[0].Message)

	rp.Set(rapidtest.Success())
	require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, 3, "MODULE m\nENDMODULE")))
	_, ok = s.diags.get(testURI)
	assert.False(t, ok)

	pubs := rec.published()
	require.Len(t, pubs, 3)
	assert.Empty(t, pubs[2].Diagnostics, "success clears the document")
	assert.Equal(t, []string{"MODULE", "MODULE m", "MODULE m\nENDMODULE"}, rp.Texts())
}

func TestDiagnosticsKeptOnParserFailure(t *testing.T) {
	rp := &rapidtest.Recording{Parser: rapidtest.Failure(rapidtest.At("X", 3, 7))}
	s := New(WithParser(rp))
	ctx, rec := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "let a = b")))
	before, ok := s.diags.get(testURI)
	require.True(t, ok)

	for name, p := range map[string]parser.Parser{
		"invocation error": rapidtest.Failing(errors.New("module crashed")),
		"malformed json":   rapidtest.Raw(`{"success":false,"errors":[{"message":`),
		"unexpected shape": rapidtest.Raw(`{"success":false,"errors":[{"message":"X","error_position":"3-7"}]}`),
	} {
		t.Run(name, func(t *testing.T) {
			rp.Set(p)
			published := len(rec.published())
			require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, 2, "let a = c")))

			after, ok := s.diags.get(testURI)
			require.True(t, ok)
			assert.Equal(t, before, after, "diagnostics must be left untouched")
			assert.Len(t, rec.published(), published, "nothing is published")

			logs := rec.logMessages()
			require.NotEmpty(t, logs)
			last := logs[len(logs)-1]
			assert.Equal(t, protocol.MessageTypeError, last.Type)
			assert.Contains(t, last.Message, "Error parsing RAPID code")
		})
	}
}

func TestDiagnosticsMetrics(t *testing.T) {
	rp := &rapidtest.Recording{Parser: rapidtest.Failure(rapidtest.At("X", 0, 1), rapidtest.At("Y", 1, 2))}
	m := metrics.New(nil)
	s := New(WithParser(rp), WithMetrics(m))
	ctx := mockContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "MODULE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenDocuments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(metrics.OutcomeDiagnostics)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DiagnosticsLast))

	rp.Set(rapidtest.Failing(errors.New("module crashed")))
	require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, 2, "MODULE m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(metrics.OutcomeFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DiagnosticsLast), "a failed pass publishes nothing")

	rp.Set(rapidtest.Success())
	require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, 3, "MODULE m\nENDMODULE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(metrics.OutcomeClean)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DiagnosticsLast))

	require.NoError(t, s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	}))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenDocuments))
}

func TestDiagnosticsIgnoreOtherLanguages(t *testing.T) {
	rp := &rapidtest.Recording{}
	s := New(WithParser(rp))
	ctx, rec := capturingContext()

	params := openParams("file:///notes.txt", "MODULE m")
	params.TextDocument.LanguageID = "plaintext"
	require.NoError(t, s.textDocumentDidOpen(ctx, params))
	require.NoError(t, s.textDocumentDidChange(ctx, changeParams("file:///notes.txt", 2, "x")))
	assert.Equal(t, 0, rp.Calls())
	assert.Empty(t, rec.published())
}

func TestDiagnosticsChangeWithoutOpen(t *testing.T) {
	rp := &rapidtest.Recording{}
	s := New(WithParser(rp))
	ctx, _ := capturingContext()
	require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, 1, "MODULE m")))
	assert.Equal(t, 0, rp.Calls(), "unknown language id is not analysed")
}

func TestDiagnosticsCustomLanguageIDs(t *testing.T) {
	rp := &rapidtest.Recording{}
	s := New(WithParser(rp), WithLanguageIDs("rapid", "abb-rapid"))
	ctx, _ := capturingContext()
	params := openParams(testURI, "MODULE m")
	params.TextDocument.LanguageID = "abb-rapid"
	require.NoError(t, s.textDocumentDidOpen(ctx, params))
	assert.Equal(t, 1, rp.Calls())
}

func TestDiagnosticsOnClose_Cleared(t *testing.T) {
	s := New(WithParser(rapidtest.Failure(rapidtest.At("X", 0, 1))))
	ctx, rec := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "MODULE")))
	require.NoError(t, s.textDocumentDidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	}))
	pubs := rec.published()
	require.Len(t, pubs, 2)
	assert.Empty(t, pubs[1].Diagnostics, "close should clear diagnostics")
	assert.Nil(t, s.docs.Get(testURI), "document should be removed from store")
	_, ok := s.diags.get(testURI)
	assert.False(t, ok)
}

func TestDiagnosticsOnSave_Immediate(t *testing.T) {
	rp := &rapidtest.Recording{}
	s := New(WithParser(rp), WithDebounce(time.Hour))
	ctx, rec := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "MODULE m")))
	require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, 2, "MODULE n")))
	assert.Equal(t, 1, rp.Calls(), "change is debounced")

	before := len(rec.published())
	require.NoError(t, s.textDocumentDidSave(ctx, &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	}))
	assert.Greater(t, len(rec.published()), before, "save should trigger immediate diagnostics publish")
	assert.Equal(t, []string{"MODULE m", "MODULE n"}, rp.Texts())

	s.debounceMu.Lock()
	assert.Empty(t, s.debounce, "save cancels the pending pass")
	s.debounceMu.Unlock()
}

func TestDiagnosticsDebounceCoalesces(t *testing.T) {
	rp := &rapidtest.Recording{}
	s := New(WithParser(rp), WithDebounce(20*time.Millisecond))
	ctx, _ := capturingContext()

	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "M")))
	for i, text := range []string{"MO", "MOD", "MODULE"} {
		require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, int32(i+2), text)))
	}
	require.Eventually(t, func() bool { return rp.Calls() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"M", "MODULE"}, rp.Texts(), "only the last change is analysed")
}

func TestDiagnosticsStaleResultDropped(t *testing.T) {
	s := New()
	ctx, rec := capturingContext()
	s.captureNotify(ctx)

	doc := s.docs.Open(testURI, DefaultLanguageID, 1, "MODULE")
	var once sync.Once
	s.analyzer.Parser = parser.Func(func(context.Context, string) (string, error) {
		// Simulate a newer change arriving while the module runs.
		once.Do(func() { s.docs.Change(testURI, 2, "MODULE m") })
		return `{"success":false,"errors":[{"message":"late"}]}`, nil
	})
	s.analyzeAndPublish(doc)
	assert.Empty(t, rec.published())
	_, ok := s.diags.get(testURI)
	assert.False(t, ok)
}

func TestDiagnosticsNoParserLogs(t *testing.T) {
	s := New()
	ctx, rec := capturingContext()
	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "MODULE m")))
	assert.Empty(t, rec.published())
	require.Len(t, rec.logMessages(), 1)
	assert.Contains(t, rec.logMessages()[0].Message, "no parser configured")
}

func TestDiagnosticsUTF16Encoding(t *testing.T) {
	text := "! 😀\nVAR x"
	s := New(
		WithParser(rapidtest.Failure(rapidtest.At("X", 9, 10))),
		WithEncoding(position.UTF16),
		WithSource("rapid-wasm"),
	)
	ctx, rec := capturingContext()
	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, text)))
	pubs := rec.published()
	require.Len(t, pubs, 1)
	require.Len(t, pubs[0].Diagnostics, 1)
	d := pubs[0].Diagnostics[0]
	assert.Equal(t, protocol.Position{Line: 1, Character: 4}, d.Range.Start)
	assert.Equal(t, "rapid-wasm", *d.Source)
}

func TestAnalysisTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	s := New(WithParser(rapidtest.Success()), WithTracer(tp.Tracer("lsp-test")))
	ctx, _ := capturingContext()
	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "MODULE m")))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "rapid.analyze", spans[0].Name)
}

// --- Conversion tests ---

func TestToLSPDiagnostic(t *testing.T) {
	d := toLSPDiagnostic(analysis.Diagnostic{
		Severity: analysis.SeverityWarning,
		Source:   "rapid",
		Message:  "m",
		Range: position.Range{
			Start: position.Position{Line: 1, Character: 2},
			End:   position.Position{Line: 3, Character: 4},
		},
	})
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *d.Severity)
	assert.Equal(t, protocol.UInteger(1), d.Range.Start.Line)
	assert.Equal(t, protocol.UInteger(4), d.Range.End.Character)
}

func TestMapSeverity(t *testing.T) {
	assert.Equal(t, protocol.DiagnosticSeverityError, mapSeverity(analysis.SeverityError))
	assert.Equal(t, protocol.DiagnosticSeverityInformation, mapSeverity(analysis.SeverityInformation))
	assert.Equal(t, protocol.DiagnosticSeverityHint, mapSeverity(analysis.SeverityHint))
	assert.Equal(t, protocol.DiagnosticSeverityError, mapSeverity(analysis.Severity(0)))
}

func TestSafeUint(t *testing.T) {
	assert.Equal(t, protocol.UInteger(0), safeUint(-3))
	assert.Equal(t, protocol.UInteger(7), safeUint(7))
}

// --- Lifecycle tests ---

func TestExitHandler(t *testing.T) {
	s := New()
	var exitCode int
	var exitCalled bool
	s.exitFn = func(code int) {
		exitCode = code
		exitCalled = true
	}

	err := s.exit(mockContext())
	require.NoError(t, err)
	assert.True(t, exitCalled, "exit handler should call exitFn")
	assert.Equal(t, 0, exitCode, "exit should call with code 0")
}

func TestInitializeLifecycle(t *testing.T) {
	s := New()

	result, err := s.initialize(mockContext(), &protocol.InitializeParams{})
	require.NoError(t, err)

	initResult, ok := result.(protocol.InitializeResult)
	require.True(t, ok)
	require.NotNil(t, initResult.ServerInfo)
	assert.Equal(t, serverName, initResult.ServerInfo.Name)
	syncOpts, ok := initResult.Capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	require.True(t, ok)
	assert.Equal(t, protocol.TextDocumentSyncKindFull, *syncOpts.Change)
}

func TestInitializedLogsActivation(t *testing.T) {
	s := New()
	ctx, rec := capturingContext()
	require.NoError(t, s.initialized(ctx, &protocol.InitializedParams{}))
	logs := rec.logMessages()
	require.Len(t, logs, 1)
	assert.Equal(t, "RAPID language server is now active", logs[0].Message)
	assert.Equal(t, protocol.MessageTypeInfo, logs[0].Type)
}

func TestShutdownStopsTimers(t *testing.T) {
	rp := &rapidtest.Recording{}
	s := New(WithParser(rp), WithDebounce(30*time.Millisecond))
	ctx, _ := capturingContext()
	require.NoError(t, s.textDocumentDidOpen(ctx, openParams(testURI, "M")))
	require.NoError(t, s.textDocumentDidChange(ctx, changeParams(testURI, 2, "MO")))
	require.NoError(t, s.shutdown(ctx))
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, rp.Calls(), "pending pass was cancelled")
}
