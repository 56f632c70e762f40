// Copyright © 2024 The rapidls authors

// Package lsp implements a Language Server Protocol server that publishes
// RAPID diagnostics. Parsing is delegated to an external module; the server
// maps each parse result onto editor ranges and keeps one diagnostic set per
// open document.
package lsp

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rapidls/rapidls/analysis"
	"github.com/rapidls/rapidls/metrics"
	"github.com/rapidls/rapidls/parser"
	"github.com/rapidls/rapidls/position"
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	glspserver "github.com/tliron/glsp/server"
	"go.opentelemetry.io/otel/trace"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const serverName = "rapidls"

// Version is reported to clients in the initialize result.
var Version = "0.1.0"

// DefaultLanguageID is the language id of RAPID documents.
const DefaultLanguageID = "rapid"

// Server is the RAPID language server.
type Server struct {
	handler  protocol.Handler
	glspSrv  *glspserver.Server
	docs     *DocumentStore
	diags    *diagnosticCollection
	analyzer *analysis.Analyzer
	metrics  *metrics.Metrics
	log      commonlog.Logger

	languageIDs map[string]bool

	// Debouncer for didChange notifications. Zero delay analyses
	// synchronously.
	debounceDelay time.Duration
	debounceMu    sync.Mutex
	debounce      map[string]*time.Timer

	// Context for sending notifications (captured from latest request).
	notifyMu sync.Mutex
	notify   glsp.NotifyFunc

	// exitFn is called on the LSP exit notification. Defaults to os.Exit.
	// Overridable for testing.
	exitFn func(int)
}

// Option configures the LSP server.
type Option func(*Server)

// WithParser sets the external parser every analysis pass calls.
func WithParser(p parser.Parser) Option {
	return func(s *Server) { s.analyzer.Parser = p }
}

// WithEncoding sets the unit of the offsets the parser reports.
func WithEncoding(enc position.Encoding) Option {
	return func(s *Server) { s.analyzer.Encoding = enc }
}

// WithSource sets the source label stamped on published diagnostics.
func WithSource(source string) Option {
	return func(s *Server) { s.analyzer.Source = source }
}

// WithTracer records analysis spans on t instead of the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.analyzer.Tracer = t }
}

// WithDebounce delays analysis after didChange by d. Only the last change
// within the window is analysed.
func WithDebounce(d time.Duration) Option {
	return func(s *Server) { s.debounceDelay = d }
}

// WithLanguageIDs replaces the set of document language ids that are
// analysed.
func WithLanguageIDs(ids ...string) Option {
	return func(s *Server) {
		s.languageIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			s.languageIDs[id] = true
		}
	}
}

// WithMetrics records analysis passes and open documents in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger replaces the server log.
func WithLogger(l commonlog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a new RAPID LSP server.
func New(opts ...Option) *Server {
	s := &Server{
		docs:        NewDocumentStore(),
		analyzer:    &analysis.Analyzer{},
		log:         commonlog.GetLogger("rapidls.lsp"),
		languageIDs: map[string]bool{DefaultLanguageID: true},
		debounce:    make(map[string]*time.Timer),
		exitFn:      os.Exit,
	}
	s.diags = newDiagnosticCollection(s.sendNotification)
	for _, o := range opts {
		o(s)
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		Exit:        s.exit,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidSave:   s.textDocumentDidSave,
		TextDocumentDidClose:  s.textDocumentDidClose,
	}

	s.glspSrv = glspserver.NewServer(&s.handler, serverName, false)
	return s
}

// RunStdio starts the server using stdio transport.
func (s *Server) RunStdio() error {
	return s.glspSrv.RunStdio()
}

// RunTCP starts the server listening on the given address.
func (s *Server) RunTCP(addr string) error {
	return s.glspSrv.RunTCP(addr)
}

// initialize handles the LSP initialize request.
func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.captureNotify(ctx)

	if params.ClientInfo != nil {
		s.log.Infof("client: %s", params.ClientInfo.Name)
	}

	capabilities := s.handler.CreateServerCapabilities()

	// The parser always needs the whole text, so sync full documents.
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: boolPtr(false)},
	}

	version := Version
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &version,
		},
	}, nil
}

// initialized handles the initialized notification sent once the client
// has processed the initialize result.
func (s *Server) initialized(ctx *glsp.Context, _ *protocol.InitializedParams) error {
	s.captureNotify(ctx)
	s.logMessage(protocol.MessageTypeInfo, "RAPID language server is now active")
	return nil
}

// shutdown handles the LSP shutdown request.
func (s *Server) shutdown(_ *glsp.Context) error {
	s.debounceMu.Lock()
	for _, t := range s.debounce {
		t.Stop()
	}
	s.debounce = make(map[string]*time.Timer)
	s.debounceMu.Unlock()
	return nil
}

// exit handles the LSP exit notification by terminating the process.
func (s *Server) exit(_ *glsp.Context) error {
	s.exitFn(0)
	return nil
}

// setTrace handles the $/setTrace notification (required by some clients).
func (s *Server) setTrace(_ *glsp.Context, _ *protocol.SetTraceParams) error {
	return nil
}

// analysisContext is the context analysis passes run under. Notifications
// carry no cancellation, so passes are bounded by the parser's own timeout.
func (s *Server) analysisContext() context.Context {
	return context.Background()
}

// captureNotify stores the notification function from the context for
// async use (e.g., publishing diagnostics after a debounce).
func (s *Server) captureNotify(ctx *glsp.Context) {
	if ctx == nil || ctx.Notify == nil {
		return
	}
	s.notifyMu.Lock()
	s.notify = ctx.Notify
	s.notifyMu.Unlock()
}

// sendNotification sends a notification to the client.
func (s *Server) sendNotification(method string, params any) {
	s.notifyMu.Lock()
	fn := s.notify
	s.notifyMu.Unlock()
	if fn != nil {
		fn(method, params)
	}
}

func boolPtr(b bool) *bool {
	return &b
}
