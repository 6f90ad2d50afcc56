package xo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"
)

// CLIEngine runs the xo executable and parses its JSON reporter output.
type CLIEngine struct {
	Bin  string
	Dir  string
	Args []string
}

func (e *CLIEngine) Lint(ctx context.Context, req LintRequest) (*Report, error) {
	args := []string{"--reporter=json", "--stdin", "--stdin-filename=" + req.Path}
	if req.Fix {
		args = append(args, "--fix-dry-run")
	}
	args = append(args, e.Args...)

	cmd := exec.CommandContext(ctx, e.Bin, args...)
	cmd.Dir = e.Dir
	cmd.Stdin = strings.NewReader(req.Text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// xo exits non-zero when it finds problems; only a run with no
	// report on stdout is treated as a failure.
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && stdout.Len() == 0 {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("xo %s: %s", e.Bin, msg)
	}

	report, perr := ParseReport(stdout.Bytes())
	if perr != nil {
		slog.Debug("unparseable xo output", "bin", e.Bin, "error", perr)
		return nil, perr
	}
	return report, nil
}

// ParseReport decodes an ESLint-format JSON report: an array of file
// results, each carrying messages and, after a fix pass, the fixed
// output text. Only the first result is meaningful for stdin runs.
func ParseReport(data []byte) (*Report, error) {
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("expected JSON report array, got %q", truncate(string(data), 120))
	}

	first := parsed.Get("0")
	report := &Report{Output: first.Get("output").String()}
	for _, raw := range first.Get("messages").Array() {
		msg := Message{
			RuleID:    raw.Get("ruleId").String(),
			Severity:  int(raw.Get("severity").Int()),
			Message:   raw.Get("message").String(),
			Line:      int(raw.Get("line").Int()),
			Column:    int(raw.Get("column").Int()),
			EndLine:   int(raw.Get("endLine").Int()),
			EndColumn: int(raw.Get("endColumn").Int()),
		}
		if fix := raw.Get("fix"); fix.Exists() {
			if span := fix.Get("range").Array(); len(span) == 2 {
				msg.Fix = &Fix{
					Start: int(span[0].Int()),
					End:   int(span[1].Int()),
					Text:  fix.Get("text").String(),
				}
			}
		}
		report.Messages = append(report.Messages, msg)
	}
	return report, nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
