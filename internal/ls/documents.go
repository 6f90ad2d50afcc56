package ls

import (
	contextpkg "context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/xojs/xo-language-server/internal/xo"
)

func (s *Server) didOpen(context *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	slog.Debug("didOpen", "uri", uri, "version", params.TextDocument.Version)

	doc := &document{
		uri:        uri,
		path:       uriToPath(uri),
		languageID: params.TextDocument.LanguageID,
		version:    params.TextDocument.Version,
		text:       params.TextDocument.Text,
	}
	s.state.mu.Lock()
	doc.folder = s.state.folderForLocked(doc.path)
	s.state.docs[uri] = doc
	s.state.mu.Unlock()

	s.queue.Submit(s.baseCtx, func(ctx contextpkg.Context) {
		_ = s.lintDocument(ctx, context, uri)
	})
	return nil
}

func (s *Server) didChange(context *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	if len(params.ContentChanges) == 0 {
		return nil
	}

	s.state.mu.Lock()
	doc, ok := s.state.docs[uri]
	if !ok {
		s.state.mu.Unlock()
		return nil
	}
	if params.TextDocument.Version < doc.version {
		tracked := doc.version
		s.state.mu.Unlock()
		slog.Debug("stale didChange dropped", "uri", uri, "version", params.TextDocument.Version, "tracked", tracked)
		return nil
	}
	text, ok := applyContentChanges(doc.text, params.ContentChanges)
	if !ok {
		s.state.mu.Unlock()
		return nil
	}
	doc.text = text
	doc.version = params.TextDocument.Version
	version := doc.version
	// Cached fixes were computed for the superseded text; an allFixes or
	// codeAction request arriving before the next lint cycle must not
	// see them.
	delete(s.state.fixes, uri)
	s.state.mu.Unlock()

	slog.Debug("didChange", "uri", uri, "version", version, "length", len(text))

	// The edit supersedes whatever was queued for this document.
	s.state.cancelPending(uri)

	s.debounce.Call(func() {
		s.queue.Submit(s.baseCtx, func(ctx contextpkg.Context) {
			current, ok := s.state.document(uri)
			if !ok || current.version != version {
				slog.Debug("superseded lint skipped", "uri", uri, "version", version)
				return
			}
			_ = s.lintDocument(ctx, context, uri)
		})
	})
	return nil
}

func (s *Server) didClose(context *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	slog.Debug("didClose", "uri", uri)

	s.state.cancelPending(uri)

	s.state.mu.Lock()
	var folder string
	if doc, ok := s.state.docs[uri]; ok {
		folder = doc.folder
	}
	delete(s.state.docs, uri)
	s.state.mu.Unlock()

	s.state.collectGarbage(uri, folder)

	// Always clear editor decorations, even for an untracked document.
	s.publishDiagnostics(context, uri, nil)
	return nil
}

// applyContentChanges folds incremental and whole-document change events
// into the mirrored text, in the order the client produced them.
func applyContentChanges(text string, changes []any) (string, bool) {
	current := text
	for _, change := range changes {
		switch value := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			current = value.Text
		case protocol.TextDocumentContentChangeEvent:
			if value.Range == nil {
				current = value.Text
				continue
			}
			current = applyRangeChange(current, *value.Range, value.Text)
		default:
			return current, false
		}
	}
	return current, true
}

func applyRangeChange(text string, r protocol.Range, replacement string) string {
	start := r.Start.IndexIn(text)
	end := r.End.IndexIn(text)
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	if start > len(text) {
		start = len(text)
	}
	if end > len(text) {
		end = len(text)
	}
	return text[:start] + replacement + text[end:]
}

// lintDocument runs the engine against uri's current snapshot, replaces
// the document's fix cache wholesale, and publishes diagnostics. It is
// only ever called from inside a queue task.
func (s *Server) lintDocument(ctx contextpkg.Context, context *glsp.Context, uri protocol.DocumentUri) error {
	doc, ok := s.state.document(uri)
	if !ok {
		return nil
	}

	cfg := s.configFor(context, doc.folder, uri)
	if !cfg.Enable {
		s.publishDiagnostics(context, uri, nil)
		return nil
	}

	report, err := s.runLint(ctx, context, doc, cfg, doc.text)
	if err != nil {
		slog.Error("lint failed", "uri", uri, "error", err)
		return err
	}

	diagnostics, fixes := convertReport(doc.text, report)

	// The mirror may have moved on while the engine ran; results for a
	// superseded snapshot are discarded to keep the fix cache and the
	// published diagnostics tied to one text version.
	s.state.mu.Lock()
	current, stillOpen := s.state.docs[uri]
	if !stillOpen || current.version != doc.version {
		s.state.mu.Unlock()
		slog.Debug("lint superseded", "uri", uri, "version", doc.version)
		return nil
	}
	s.state.fixes[uri] = fixes
	s.state.mu.Unlock()

	s.publishDiagnostics(context, uri, diagnostics)
	return nil
}

// runLint resolves the folder's engine and executes one lint pass with
// fix computation over the supplied text.
func (s *Server) runLint(ctx contextpkg.Context, context *glsp.Context, doc document, cfg Settings, text string) (*xo.Report, error) {
	engine, err := s.engineFor(ctx, context, doc.folder, cfg)
	if err != nil {
		return nil, err
	}
	return engine.Lint(ctx, xo.LintRequest{Path: doc.path, Text: text, Fix: true})
}

// engineFor resolves the engine serving folder, caching the resolution.
func (s *Server) engineFor(ctx contextpkg.Context, context *glsp.Context, folder string, cfg Settings) (xo.Engine, error) {
	entry := s.state.folderEntry(folder)

	s.state.mu.Lock()
	if entry.engine != nil {
		engine := entry.engine
		s.state.mu.Unlock()
		return engine, nil
	}
	if !entry.rootKnown {
		if root, ok := xo.FindRoot(folder); ok {
			entry.root = root
		} else {
			entry.root = folder
		}
		entry.rootKnown = true
	}
	root := entry.root
	s.state.mu.Unlock()

	engine, err := s.newResolver(cfg).Resolve(ctx, root)
	if err != nil {
		s.notifyResolutionError(context, folder, err)
		return nil, err
	}

	s.state.mu.Lock()
	entry.engine = engine
	s.state.mu.Unlock()
	return engine, nil
}

// notifyResolutionError surfaces a resolution failure to the user once
// per folder; repeats are only logged.
func (s *Server) notifyResolutionError(context *glsp.Context, folder string, err error) {
	var resErr *xo.ResolutionError
	if !errors.As(err, &resErr) {
		return
	}

	entry := s.state.folderEntry(folder)
	s.state.mu.Lock()
	shown := entry.errorNotified
	entry.errorNotified = true
	s.state.mu.Unlock()
	if shown {
		return
	}

	slog.Error("xo resolution failed", "folder", folder, "error", err)
	if context != nil && context.Notify != nil {
		context.Notify(protocol.ServerWindowShowMessage, protocol.ShowMessageParams{
			Type:    protocol.MessageTypeError,
			Message: fmt.Sprintf("Failed to resolve xo for %s. Make sure it is installed in the workspace or globally.", folder),
		})
	}
}

func (s *Server) publishDiagnostics(context *glsp.Context, uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	if context == nil || context.Notify == nil {
		return
	}
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	context.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// convertReport turns engine messages into protocol diagnostics and the
// document's replacement fix map.
func convertReport(text string, report *xo.Report) ([]protocol.Diagnostic, map[string]fix) {
	diagnostics := make([]protocol.Diagnostic, 0, len(report.Messages))
	fixes := make(map[string]fix)
	for _, msg := range report.Messages {
		diagnostic := messageToDiagnostic(msg)
		diagnostics = append(diagnostics, diagnostic)
		if msg.Fix == nil || msg.RuleID == "" {
			continue
		}
		key := fixKey(msg.RuleID, diagnostic.Range)
		fixes[key] = fix{
			ruleID: msg.RuleID,
			rng:    diagnostic.Range,
			edits: []protocol.TextEdit{{
				Range:   rangeAt(text, msg.Fix.Start, msg.Fix.End),
				NewText: msg.Fix.Text,
			}},
		}
	}
	return diagnostics, fixes
}

func messageToDiagnostic(msg xo.Message) protocol.Diagnostic {
	start := protocol.Position{Line: uinteger(msg.Line - 1), Character: uinteger(msg.Column - 1)}
	end := start
	if msg.EndLine > 0 {
		end = protocol.Position{Line: uinteger(msg.EndLine - 1), Character: uinteger(msg.EndColumn - 1)}
	}

	severity := protocol.DiagnosticSeverityError
	if msg.Severity == xo.SeverityWarning {
		severity = protocol.DiagnosticSeverityWarning
	}

	diagnostic := protocol.Diagnostic{
		Range:    protocol.Range{Start: start, End: end},
		Severity: &severity,
		Message:  msg.Message,
		Source:   &diagnosticSource,
	}
	if msg.RuleID != "" {
		diagnostic.Code = &protocol.IntegerOrString{Value: msg.RuleID}
	}
	return diagnostic
}

func uinteger(v int) protocol.UInteger {
	if v < 0 {
		v = 0
	}
	return protocol.UInteger(v)
}
