// Package xo wraps the XO linter engine behind a small contract the
// language server consumes: resolve an engine for a workspace folder,
// lint document text, and read back messages with their fixes.
package xo

import (
	"context"
	"fmt"
)

// Message severities as reported by the engine (ESLint convention).
const (
	SeverityWarning = 1
	SeverityError   = 2
)

// Fix is a single replacement the engine proposes for one message.
// Start and End are byte offsets into the linted text.
type Fix struct {
	Start int
	End   int
	Text  string
}

// Message is one lint finding. Line and Column are 1-based; EndLine and
// EndColumn are zero when the engine reports no end position.
type Message struct {
	RuleID    string
	Severity  int
	Message   string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
	Fix       *Fix
}

// Report is the engine's result for one lint run. Output carries the
// engine's own fully fixed text when a fix pass was requested and the
// engine changed anything; otherwise it is empty.
type Report struct {
	Output   string
	Messages []Message
}

// LintRequest describes one lint run.
type LintRequest struct {
	// Path is the document's filesystem path, used by the engine for
	// configuration lookup. The text itself is supplied via Text.
	Path string
	Text string
	// Fix asks the engine to also compute its fixed output.
	Fix bool
}

// Engine lints document text for one resolved workspace folder.
type Engine interface {
	Lint(ctx context.Context, req LintRequest) (*Report, error)
}

// Resolver locates the engine installation serving a workspace folder.
type Resolver interface {
	Resolve(ctx context.Context, folder string) (Engine, error)
}

// ResolutionError reports that no engine could be located for a folder.
type ResolutionError struct {
	Folder string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve xo for %s: %v", e.Folder, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
