package ls

import (
	"sort"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// minimalEdit computes the single smallest replacement turning original
// into fixed: the longest common prefix and suffix are trimmed and only
// the differing middle span is replaced. Applying the returned edit to
// original yields exactly fixed. Identical inputs produce an empty edit
// at the end of the text.
func minimalEdit(original, fixed string) protocol.TextEdit {
	prefix := commonPrefixLen(original, fixed)
	suffix := commonSuffixLen(original[prefix:], fixed[prefix:])

	return protocol.TextEdit{
		Range: protocol.Range{
			Start: positionAt(original, prefix),
			End:   positionAt(original, len(original)-suffix),
		},
		NewText: fixed[prefix : len(fixed)-suffix],
	}
}

func commonPrefixLen(a, b string) int {
	limit := min(len(a), len(b))
	i := 0
	for i < limit && a[i] == b[i] {
		i++
	}
	return i
}

// commonSuffixLen expects its arguments already trimmed of their common
// prefix, so the suffix can never overlap it.
func commonSuffixLen(a, b string) int {
	limit := min(len(a), len(b))
	j := 0
	for j < limit && a[len(a)-1-j] == b[len(b)-1-j] {
		j++
	}
	return j
}

// positionAt converts a byte offset into a protocol position. The
// character count is byte-based, not UTF-16 code units, so a line with
// multi-byte runes before the offset skews against clients using the
// protocol's default position encoding.
func positionAt(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	line := strings.Count(text[:offset], "\n")
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(offset - lineStart),
	}
}

// rangeAt converts a byte-offset span into a protocol range.
func rangeAt(text string, start, end int) protocol.Range {
	return protocol.Range{
		Start: positionAt(text, start),
		End:   positionAt(text, end),
	}
}

// applyTextEdits applies non-overlapping edits to text. Edits are
// applied back to front so earlier offsets stay valid.
func applyTextEdits(text string, edits []protocol.TextEdit) string {
	sorted := append([]protocol.TextEdit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Range.Start.IndexIn(text) > sorted[j].Range.Start.IndexIn(text)
	})
	for _, edit := range sorted {
		start := edit.Range.Start.IndexIn(text)
		end := edit.Range.End.IndexIn(text)
		if start < 0 || end < start || end > len(text) {
			continue
		}
		text = text[:start] + edit.NewText + text[end:]
	}
	return text
}
