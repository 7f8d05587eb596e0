package derive

import (
	"fmt"

	"github.com/stellarlinkco/chainverse/internal/solana"
)

// Collect walks blocks in order and derives one keyword per entropy source,
// keeping only the first occurrence of each word. Word comparison is
// case-sensitive. Collection stops as soon as max keywords are gathered,
// even partway through a block's sources. If every block is exhausted with
// fewer than minRequired words, the partial list is returned together with
// ErrInsufficientKeywords.
func (d *Deriver) Collect(blocks []solana.Block, max, minRequired int) ([]Keyword, error) {
	return d.CollectWithSeen(blocks, max, minRequired, nil)
}

// CollectWithSeen behaves like Collect but treats the words in seen as
// already taken, so a resumed run never repeats a word from an earlier
// batch. seen is updated in place as words are accepted.
func (d *Deriver) CollectWithSeen(blocks []solana.Block, max, minRequired int, seen map[string]bool) ([]Keyword, error) {
	if seen == nil {
		seen = make(map[string]bool)
	}
	var out []Keyword
	for _, b := range blocks {
		for _, src := range Sources {
			if len(out) >= max {
				break
			}
			entropy := EntropyFor(b, src)
			if len(entropy) == 0 {
				continue
			}
			kw, err := d.FromBlock(b, src)
			if err != nil {
				continue
			}
			if seen[kw.Word] {
				continue
			}
			seen[kw.Word] = true
			out = append(out, kw)
		}
		if len(out) >= max {
			break
		}
	}
	if len(out) < minRequired {
		return out, fmt.Errorf("collected %d keywords, need %d: %w", len(out), minRequired, ErrInsufficientKeywords)
	}
	return out, nil
}

// Words returns just the word strings of the given keywords, in order.
func Words(keywords []Keyword) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = kw.Word
	}
	return out
}
