package channel

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestComposeThread_SingleChunk(t *testing.T) {
	poem := strings.Repeat("a", 50) + "\n" + strings.Repeat("b", 50) + "\n" + strings.Repeat("c", 50)
	chunks := ComposeThread(poem, 290)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != poem {
		t.Errorf("chunk differs from poem")
	}
}

func TestComposeThread_OneChunkPerLine(t *testing.T) {
	// Two 50-char lines plus the joining newline exceed 80, so every
	// line opens its own chunk.
	lines := []string{strings.Repeat("a", 50), strings.Repeat("b", 50), strings.Repeat("c", 50)}
	chunks := ComposeThread(strings.Join(lines, "\n"), 80)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c != lines[i] {
			t.Errorf("chunk %d = %q, want line %d", i, c, i)
		}
	}
}

func TestComposeThread_Reassembly(t *testing.T) {
	poem := "line one\nline two\n\nline three\nline four"
	chunks := ComposeThread(poem, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if got := strings.Join(chunks, "\n"); got != poem {
		t.Errorf("reassembled = %q, want original poem", got)
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 20 {
			t.Errorf("chunk %d exceeds budget: %d runes", i, utf8.RuneCountInString(c))
		}
	}
}

func TestComposeThread_Empty(t *testing.T) {
	if got := ComposeThread("", 300); got != nil {
		t.Errorf("empty poem yielded %d chunks", len(got))
	}
	if got := ComposeThread("  \n\n  ", 300); got != nil {
		t.Errorf("whitespace poem yielded %d chunks", len(got))
	}
}

func TestComposeThread_NeverSplitsLine(t *testing.T) {
	line := strings.Repeat("x", 100)
	chunks := ComposeThread(line, 30)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1 (lines are never split)", len(chunks))
	}
	if chunks[0] != line {
		t.Errorf("oversized line was altered")
	}
}

func TestComposeThread_CountsRunes(t *testing.T) {
	// Two 5-rune emoji lines join within an 11-rune budget even though
	// they span far more bytes.
	line := strings.Repeat("🌊", 5)
	chunks := ComposeThread(line+"\n"+line, 11)
	if len(chunks) != 1 {
		t.Errorf("got %d chunks, want 1 (budget must count runes, not bytes)", len(chunks))
	}
}

func TestDecorateChunk_SinglePlain(t *testing.T) {
	got := DecorateChunk("small verse", 0, 1, "", 300)
	if got != "small verse" {
		t.Errorf("got %q, want undecorated text", got)
	}
}

func TestDecorateChunk_Markers(t *testing.T) {
	first := DecorateChunk("one", 0, 3, "", 300)
	if !strings.HasSuffix(first, "🧵 1/3") {
		t.Errorf("first chunk = %q, want thread opener suffix", first)
	}

	mid := DecorateChunk("two", 1, 3, "", 300)
	if !strings.HasSuffix(mid, "2/3") {
		t.Errorf("middle chunk = %q, want 2/3 suffix", mid)
	}
	if strings.Contains(mid, "🧵") {
		t.Error("continuation chunk should not carry the opener")
	}
}

func TestDecorateChunk_FooterOnLastOnly(t *testing.T) {
	footer := "chainverse.app"

	first := DecorateChunk("one", 0, 3, footer, 300)
	if strings.Contains(first, footer) {
		t.Error("footer must not appear on the first chunk")
	}

	last := DecorateChunk("three", 2, 3, footer, 300)
	if !strings.Contains(last, footer) {
		t.Error("footer missing from last chunk")
	}
	if !strings.Contains(last, "3/3") {
		t.Error("last chunk should still carry its marker")
	}
}

func TestDecorateChunk_SingleChunkGetsFooter(t *testing.T) {
	got := DecorateChunk("verse", 0, 1, "chainverse.app", 300)
	if !strings.Contains(got, "chainverse.app") {
		t.Error("single chunk is also the last chunk and should carry the footer")
	}
	if strings.Contains(got, "1/1") {
		t.Error("single chunk should not carry a position marker")
	}
}

func TestDecorateChunk_TruncatesToBudget(t *testing.T) {
	got := DecorateChunk(strings.Repeat("x", 300), 0, 2, "", 100)
	if n := utf8.RuneCountInString(got); n > 100 {
		t.Errorf("decorated length = %d runes, want <= 100", n)
	}
	if !strings.Contains(got, "…") {
		t.Error("truncated text must carry a visible marker")
	}
	if !strings.HasSuffix(got, "🧵 1/2") {
		t.Error("decoration must survive truncation")
	}
}

func TestDecorateChunk_NoTruncationWhenFits(t *testing.T) {
	got := DecorateChunk("short", 1, 2, "", 300)
	if strings.Contains(got, "…") {
		t.Errorf("unexpected truncation: %q", got)
	}
	if !strings.HasPrefix(got, "short") {
		t.Errorf("content altered: %q", got)
	}
}
