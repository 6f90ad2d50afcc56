package ls

import (
	contextpkg "context"
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// formatting serves textDocument/formatting by running the engine's fix
// pass. The fix-list edits are applied naively and the corrected text is
// re-linted; when the engine's own fixed output still differs from the
// naive application, a single minimal reconciling edit is returned
// instead of the fix list (the fix list under- or over-corrected
// relative to a full fix pass).
func (s *Server) formatting(context *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	uri := params.TextDocument.URI
	if _, ok := s.state.document(uri); !ok {
		return []protocol.TextEdit{}, nil
	}

	ctx, release := s.state.register(uri)
	defer release()

	result, err := s.queue.Enqueue(ctx, func(ctx contextpkg.Context) (any, error) {
		doc, ok := s.state.document(uri)
		if !ok {
			return []protocol.TextEdit{}, nil
		}
		cfg := s.configFor(context, doc.folder, uri)
		if !cfg.Enable || !cfg.FormatEnable {
			slog.Debug("formatting disabled", "uri", uri)
			return []protocol.TextEdit{}, nil
		}

		report, err := s.runLint(ctx, context, doc, cfg, doc.text)
		if err != nil {
			return nil, err
		}
		_, fixes := convertReport(doc.text, report)
		edits := mergeFixEdits(doc.text, fixes)
		if len(edits) == 0 && report.Output == "" {
			return []protocol.TextEdit{}, nil
		}

		applied := applyTextEdits(doc.text, edits)
		verify, err := s.runLint(ctx, context, doc, cfg, applied)
		if err != nil {
			return nil, err
		}
		authoritative := verify.Output
		if authoritative == "" {
			authoritative = applied
		}
		if authoritative != applied {
			slog.Debug("fix list diverged from fixed output", "uri", uri)
			return []protocol.TextEdit{minimalEdit(doc.text, authoritative)}, nil
		}
		return edits, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]protocol.TextEdit), nil
}
