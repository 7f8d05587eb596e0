package channel

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// threadMarker opens the first post of a multi-post thread.
	threadMarker = "🧵"
	// truncationMarker is appended when decorated text had to be cut to
	// fit the budget.
	truncationMarker = "…"
)

// ComposeThread splits poem text into post-sized chunks. Lines are packed
// greedily first-fit: a line joins the current chunk while the chunk plus
// a joining newline stays within budget, otherwise it opens the next
// chunk. A single line longer than the budget becomes its own oversized
// chunk rather than being split; DecorateChunk truncates it later.
// Budgets are counted in runes. An empty poem yields no chunks.
func ComposeThread(poem string, budget int) []string {
	if strings.TrimSpace(poem) == "" {
		return nil
	}

	var chunks []string
	var cur []string
	curLen := 0
	for _, line := range strings.Split(poem, "\n") {
		lineLen := utf8.RuneCountInString(line)
		add := lineLen
		if len(cur) > 0 {
			add++ // newline joining the previous line
		}
		if len(cur) > 0 && curLen+add > budget {
			chunks = append(chunks, strings.Join(cur, "\n"))
			cur = []string{line}
			curLen = lineLen
			continue
		}
		cur = append(cur, line)
		curLen += add
	}
	if len(cur) > 0 {
		last := strings.Join(cur, "\n")
		if strings.TrimSpace(last) != "" {
			chunks = append(chunks, last)
		}
	}
	return chunks
}

// DecorateChunk adds positional markers and the footer to one chunk.
// Threads of more than one post carry a position marker: the first post
// gets the thread opener, later posts a plain "i/N". The footer goes on
// the last post only. Decoration counts against the same budget as the
// text, so text is truncated with a visible marker when the decorated
// whole would not fit.
func DecorateChunk(chunk string, index, total int, footer string, budget int) string {
	var parts []string
	if total > 1 {
		if index == 0 {
			parts = append(parts, fmt.Sprintf("%s 1/%d", threadMarker, total))
		} else {
			parts = append(parts, fmt.Sprintf("%d/%d", index+1, total))
		}
	}
	if index == total-1 && footer != "" {
		parts = append(parts, footer)
	}

	decoration := ""
	if len(parts) > 0 {
		decoration = "\n\n" + strings.Join(parts, "\n")
	}

	text := chunk
	textLen := utf8.RuneCountInString(text)
	decoLen := utf8.RuneCountInString(decoration)
	if textLen+decoLen > budget {
		keep := budget - decoLen - utf8.RuneCountInString(truncationMarker)
		if keep < 0 {
			keep = 0
		}
		runes := []rune(text)
		if keep < len(runes) {
			text = strings.TrimRight(string(runes[:keep]), " \n") + truncationMarker
		}
	}
	return text + decoration
}
