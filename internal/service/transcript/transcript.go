// Package transcript extracts text from provider responses and joins
// chunk transcripts in ordinal order.
package transcript

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"deepspeak/internal/service/stt"
)

// ErrNotContiguous is returned when pieces do not form ordinals 0..n-1.
var ErrNotContiguous = errors.New("transcript ordinals are not contiguous")

// Piece is the transcript of one chunk, or of the whole file at ordinal 0.
type Piece struct {
	Ordinal  int
	Response *stt.Response
	Text     string
}

// NewPiece extracts the transcript of resp into a Piece.
func NewPiece(ordinal int, resp *stt.Response) (Piece, error) {
	text, err := Extract(resp)
	if err != nil {
		return Piece{}, err
	}
	return Piece{Ordinal: ordinal, Response: resp, Text: text}, nil
}

// Extract returns the first alternative of the first channel.
func Extract(resp *stt.Response) (string, error) {
	return resp.FirstTranscript()
}

// Aggregate sorts pieces by ordinal and joins their text with a newline.
// Literal "\n" escape sequences in the text become real newlines.
func Aggregate(pieces []Piece) (string, error) {
	sorted := sortPieces(pieces)
	for i, p := range sorted {
		if p.Ordinal != i {
			return "", fmt.Errorf("%w: expected ordinal %d, got %d", ErrNotContiguous, i, p.Ordinal)
		}
	}
	return join(sorted), nil
}

// Prefix returns the longest run of pieces with ordinals 0..k-1 and k.
func Prefix(pieces []Piece) ([]Piece, int) {
	sorted := sortPieces(pieces)
	k := 0
	for k < len(sorted) && sorted[k].Ordinal == k {
		k++
	}
	return sorted[:k], k
}

// Join concatenates pieces in the order given.
func Join(pieces []Piece) string {
	return join(pieces)
}

func join(pieces []Piece) string {
	parts := make([]string, len(pieces))
	for i, p := range pieces {
		parts[i] = Normalize(p.Text)
	}
	return strings.Join(parts, "\n")
}

// Normalize replaces backslash-n sequences with newlines.
func Normalize(s string) string {
	return strings.ReplaceAll(s, `\n`, "\n")
}

func sortPieces(pieces []Piece) []Piece {
	sorted := append([]Piece(nil), pieces...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Ordinal < sorted[j].Ordinal
	})
	return sorted
}
