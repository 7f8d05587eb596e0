// Package derive turns Solana block entropy into dictionary words. A block
// hash is reduced to a 64-bit seed and the seed picks a word by modulo, so
// every observer of the chain derives the same words in the same order.
package derive

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"strings"

	"github.com/stellarlinkco/chainverse/internal/solana"
)

// Source identifies which part of a block a keyword's entropy came from.
type Source string

const (
	SourceBlockhash         Source = "blockhash"
	SourcePreviousBlockhash Source = "previous_blockhash"
	SourceTransaction       Source = "transaction"
)

// Sources lists every entropy source in derivation priority order. The
// order is part of the protocol: changing it changes which word wins when
// a collection run hits its cap mid-block.
var Sources = []Source{SourceBlockhash, SourcePreviousBlockhash, SourceTransaction}

var (
	// ErrInvalidEntropy is returned when a source yields no bytes to hash.
	ErrInvalidEntropy = errors.New("entropy is empty")
	// ErrInsufficientKeywords is returned when collection exhausts its
	// blocks before reaching the required minimum.
	ErrInsufficientKeywords = errors.New("insufficient keywords")
)

// Keyword is a single word derived from one block and one entropy source.
type Keyword struct {
	Word      string
	Slot      uint64
	Blockhash string
	BlockTime *int64
	WordIndex int
	Source    Source
}

// Deriver maps block entropy onto a fixed word list.
type Deriver struct {
	words []string
}

// NewDeriver builds a Deriver over the given flattened word list.
func NewDeriver(words []string) (*Deriver, error) {
	if len(words) == 0 {
		return nil, errors.New("word list is empty")
	}
	return &Deriver{words: words}, nil
}

// Derive hashes the entropy with SHA-256, takes the first 8 bytes of the
// digest as a little-endian uint64 and reduces it modulo the word count.
// Returns the word and its index.
func (d *Deriver) Derive(entropy []byte) (string, int, error) {
	if len(entropy) == 0 {
		return "", 0, ErrInvalidEntropy
	}
	sum := sha256.Sum256(entropy)
	seed := binary.LittleEndian.Uint64(sum[:8])
	idx := int(seed % uint64(len(d.words)))
	return d.words[idx], idx, nil
}

// EntropyFor returns the bytes a source contributes for a block. Sources
// absent from the block (empty hash, no sampled signatures) yield nil.
func EntropyFor(b solana.Block, src Source) []byte {
	switch src {
	case SourceBlockhash:
		return []byte(b.Blockhash)
	case SourcePreviousBlockhash:
		return []byte(b.PreviousBlockhash)
	case SourceTransaction:
		if len(b.Signatures) == 0 {
			return nil
		}
		return []byte(strings.Join(b.Signatures, ":"))
	}
	return nil
}

// FromBlock derives the keyword one source yields for a block.
func (d *Deriver) FromBlock(b solana.Block, src Source) (Keyword, error) {
	word, idx, err := d.Derive(EntropyFor(b, src))
	if err != nil {
		return Keyword{}, err
	}
	return Keyword{
		Word:      word,
		Slot:      b.Slot,
		Blockhash: b.Blockhash,
		BlockTime: b.BlockTime,
		WordIndex: idx,
		Source:    src,
	}, nil
}
