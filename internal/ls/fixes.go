package ls

import (
	contextpkg "context"
	"fmt"
	"sort"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// fix is one diagnostic's resolution: the edits that remove it.
type fix struct {
	ruleID string
	rng    protocol.Range
	edits  []protocol.TextEdit
}

// fixKey derives a stable cache key from a diagnostic's identifying
// fields. Message text is deliberately excluded so the key survives
// message rewording between engine versions.
func fixKey(ruleID string, rng protocol.Range) string {
	return fmt.Sprintf("%s[%d,%d,%d,%d]",
		ruleID, rng.Start.Line, rng.Start.Character, rng.End.Line, rng.End.Character)
}

// diagnosticRule reads the rule identifier back out of a diagnostic the
// client round-tripped through a code action request.
func diagnosticRule(diagnostic protocol.Diagnostic) string {
	if diagnostic.Code == nil {
		return ""
	}
	if rule, ok := diagnostic.Code.Value.(string); ok {
		return rule
	}
	return fmt.Sprintf("%v", diagnostic.Code.Value)
}

// mergeFixEdits flattens a fix map into one ordered, non-overlapping
// edit list. When two fixes overlap, the one starting earlier wins.
func mergeFixEdits(text string, fixes map[string]fix) []protocol.TextEdit {
	var all []protocol.TextEdit
	for _, f := range fixes {
		all = append(all, f.edits...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		si, sj := all[i].Range.Start.IndexIn(text), all[j].Range.Start.IndexIn(text)
		if si != sj {
			return si < sj
		}
		return all[i].Range.End.IndexIn(text) < all[j].Range.End.IndexIn(text)
	})

	var merged []protocol.TextEdit
	lastEnd := -1
	for _, edit := range all {
		if edit.Range.Start.IndexIn(text) < lastEnd {
			continue
		}
		merged = append(merged, edit)
		lastEnd = edit.Range.End.IndexIn(text)
	}
	return merged
}

const methodAllFixes = "textDocument/xo/allFixes"

type allFixesParams struct {
	TextDocument protocol.TextDocumentIdentifier `json:"textDocument"`
}

type allFixesResult struct {
	DocumentVersion protocol.Integer    `json:"documentVersion"`
	Edits           []protocol.TextEdit `json:"edits"`
}

// allFixes serves the custom textDocument/xo/allFixes request: every
// cached fix for the document folded into one edit list, computing the
// fixes first if no lint cycle has run yet. A nil result signals that
// there is nothing to fix.
func (s *Server) allFixes(context *glsp.Context, params *allFixesParams) (*allFixesResult, error) {
	uri := params.TextDocument.URI
	if _, ok := s.state.document(uri); !ok {
		return nil, nil
	}

	ctx, release := s.state.register(uri)
	defer release()

	result, err := s.queue.Enqueue(ctx, func(ctx contextpkg.Context) (any, error) {
		s.state.mu.Lock()
		cached, linted := s.state.fixes[uri]
		s.state.mu.Unlock()

		if !linted {
			if err := s.lintDocument(ctx, context, uri); err != nil {
				return nil, err
			}
			s.state.mu.Lock()
			cached = s.state.fixes[uri]
			s.state.mu.Unlock()
		}

		doc, ok := s.state.document(uri)
		if !ok {
			return nil, nil
		}
		edits := mergeFixEdits(doc.text, cached)
		if len(edits) == 0 {
			return nil, nil
		}
		return &allFixesResult{DocumentVersion: doc.version, Edits: edits}, nil
	})
	if err != nil || result == nil {
		return nil, err
	}
	return result.(*allFixesResult), nil
}

// codeAction builds one quick fix per context diagnostic that has a
// cached fix. Missing diagnostics, an unknown document, or a cache miss
// degrade to an empty action list; editors issue these speculatively.
func (s *Server) codeAction(_ *glsp.Context, params *protocol.CodeActionParams) (any, error) {
	uri := params.TextDocument.URI
	if len(params.Context.Diagnostics) == 0 {
		return []protocol.CodeAction{}, nil
	}
	if _, ok := s.state.document(uri); !ok {
		return []protocol.CodeAction{}, nil
	}

	ctx, release := s.state.register(uri)
	defer release()

	return s.queue.Enqueue(ctx, func(_ contextpkg.Context) (any, error) {
		s.state.mu.Lock()
		cached := s.state.fixes[uri]
		s.state.mu.Unlock()

		kind := protocol.CodeActionKindQuickFix
		actions := []protocol.CodeAction{}
		for _, diagnostic := range params.Context.Diagnostics {
			rule := diagnosticRule(diagnostic)
			if rule == "" {
				continue
			}
			f, ok := cached[fixKey(rule, diagnostic.Range)]
			if !ok {
				continue
			}
			actions = append(actions, protocol.CodeAction{
				Title:       fmt.Sprintf("Fix this %s problem", rule),
				Kind:        &kind,
				Diagnostics: []protocol.Diagnostic{diagnostic},
				Edit: &protocol.WorkspaceEdit{
					Changes: map[protocol.DocumentUri][]protocol.TextEdit{uri: f.edits},
				},
			})
		}
		return actions, nil
	})
}
