// Copyright © 2024 The rapidls authors

package lsp

import (
	"fmt"
	"sync"
	"time"

	"github.com/rapidls/rapidls/analysis"
	"github.com/rapidls/rapidls/metrics"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// textDocumentDidOpen handles the textDocument/didOpen notification.
func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.captureNotify(ctx)
	doc := s.docs.Open(
		params.TextDocument.URI,
		params.TextDocument.LanguageID,
		int32(params.TextDocument.Version),
		params.TextDocument.Text,
	)
	s.metrics.SetOpenDocuments(s.docs.Len())
	s.analyzeAndPublish(doc)
	return nil
}

// textDocumentDidChange handles the textDocument/didChange notification.
func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	s.captureNotify(ctx)
	// With full sync, the last content change is the complete document.
	var content string
	for _, change := range params.ContentChanges {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			content = c.Text
		case protocol.TextDocumentContentChangeEvent:
			content = c.Text
		}
	}

	doc := s.docs.Change(
		params.TextDocument.URI,
		int32(params.TextDocument.Version),
		content,
	)

	if s.debounceDelay <= 0 {
		s.analyzeAndPublish(doc)
		return nil
	}

	// Debounce: delay analysis to avoid thrashing during rapid edits.
	s.debounceMu.Lock()
	if t, ok := s.debounce[doc.URI]; ok {
		t.Stop()
	}
	s.debounce[doc.URI] = time.AfterFunc(s.debounceDelay, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorf("analysis panic for %s: %v", doc.URI, r)
			}
		}()
		if d := s.docs.Get(doc.URI); d != nil {
			s.analyzeAndPublish(d)
		}
	})
	s.debounceMu.Unlock()
	return nil
}

// textDocumentDidSave handles the textDocument/didSave notification.
func (s *Server) textDocumentDidSave(ctx *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	s.captureNotify(ctx)
	// Cancel any pending debounce and publish immediately.
	s.cancelDebounce(params.TextDocument.URI)

	if doc := s.docs.Get(params.TextDocument.URI); doc != nil {
		s.analyzeAndPublish(doc)
	}
	return nil
}

// textDocumentDidClose handles the textDocument/didClose notification.
func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	s.captureNotify(ctx)
	s.cancelDebounce(params.TextDocument.URI)
	s.docs.Close(params.TextDocument.URI)
	s.metrics.SetOpenDocuments(s.docs.Len())
	s.diags.delete(params.TextDocument.URI)
	return nil
}

func (s *Server) cancelDebounce(uri string) {
	s.debounceMu.Lock()
	if t, ok := s.debounce[uri]; ok {
		t.Stop()
		delete(s.debounce, uri)
	}
	s.debounceMu.Unlock()
}

// shouldAnalyze reports whether doc is a RAPID document.
func (s *Server) shouldAnalyze(doc *Document) bool {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	return s.languageIDs[doc.LanguageID]
}

// analyzeAndPublish runs one analysis pass on a document and replaces its
// diagnostic set. If the pass fails the failure is logged and the previous
// diagnostics stay in place.
func (s *Server) analyzeAndPublish(doc *Document) {
	if !s.shouldAnalyze(doc) {
		return
	}
	content, version := doc.snapshot()
	start := time.Now()

	report, err := s.analyzer.Run(s.analysisContext(), doc.URI, content)
	if err != nil {
		s.metrics.ObservePass(metrics.OutcomeFailed, time.Since(start), 0)
		s.log.Errorf("%s: %s", doc.URI, err)
		s.logMessage(protocol.MessageTypeError, fmt.Sprintf("Error parsing RAPID code: %s", err))
		return
	}

	// A newer version may have been analysed while this pass ran.
	if _, current := doc.snapshot(); current != version || s.docs.Get(doc.URI) != doc {
		s.metrics.ObservePass(metrics.OutcomeStale, time.Since(start), 0)
		s.log.Debugf("%s: dropping result for stale version %d", doc.URI, version)
		return
	}

	if report.Success {
		s.metrics.ObservePass(metrics.OutcomeClean, time.Since(start), 0)
		s.diags.delete(doc.URI)
		return
	}
	diags := make([]protocol.Diagnostic, 0, len(report.Diagnostics))
	for _, d := range report.Diagnostics {
		diags = append(diags, toLSPDiagnostic(d))
	}
	s.metrics.ObservePass(metrics.OutcomeDiagnostics, time.Since(start), len(diags))
	s.diags.set(doc.URI, diags)
}

// logMessage reports msg on the client's log surface.
func (s *Server) logMessage(typ protocol.MessageType, msg string) {
	s.sendNotification(protocol.ServerWindowLogMessage, &protocol.LogMessageParams{
		Type:    typ,
		Message: msg,
	})
}

// toLSPDiagnostic converts an analysis.Diagnostic to an LSP Diagnostic.
func toLSPDiagnostic(d analysis.Diagnostic) protocol.Diagnostic {
	sev := mapSeverity(d.Severity)
	return protocol.Diagnostic{
		Range:    toLSPRange(d.Range),
		Severity: &sev,
		Source:   strPtr(d.Source),
		Message:  d.Message,
	}
}

// mapSeverity converts an analysis.Severity to a protocol.DiagnosticSeverity.
func mapSeverity(sev analysis.Severity) protocol.DiagnosticSeverity {
	switch sev {
	case analysis.SeverityError:
		return protocol.DiagnosticSeverityError
	case analysis.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case analysis.SeverityInformation:
		return protocol.DiagnosticSeverityInformation
	case analysis.SeverityHint:
		return protocol.DiagnosticSeverityHint
	default:
		return protocol.DiagnosticSeverityError
	}
}

func strPtr(s string) *string {
	return &s
}

// diagnosticCollection holds the published diagnostic set of each document.
// Every update replaces the whole set for its URI.
type diagnosticCollection struct {
	mu      sync.Mutex
	sets    map[string][]protocol.Diagnostic
	publish func(method string, params any)
}

func newDiagnosticCollection(publish func(method string, params any)) *diagnosticCollection {
	return &diagnosticCollection{
		sets:    make(map[string][]protocol.Diagnostic),
		publish: publish,
	}
}

// set replaces the diagnostics of uri and publishes them.
func (c *diagnosticCollection) set(uri string, diags []protocol.Diagnostic) {
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	c.mu.Lock()
	c.sets[uri] = diags
	c.send(uri, diags)
	c.mu.Unlock()
}

// delete removes the diagnostics of uri and publishes an empty set.
func (c *diagnosticCollection) delete(uri string) {
	c.mu.Lock()
	delete(c.sets, uri)
	c.send(uri, []protocol.Diagnostic{})
	c.mu.Unlock()
}

// get returns the current diagnostics of uri and whether a set exists.
func (c *diagnosticCollection) get(uri string) ([]protocol.Diagnostic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	diags, ok := c.sets[uri]
	return diags, ok
}

// send publishes under c.mu so notifications leave in update order.
func (c *diagnosticCollection) send(uri string, diags []protocol.Diagnostic) {
	c.publish(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	})
}
