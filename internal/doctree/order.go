package doctree

import (
	"slices"
	"strings"
)

// Compare orders chunks by priority: higher source weight first, then earlier
// source order, then smaller file path, then smaller chunk id. Distinct chunks
// never compare equal.
func Compare(a, b Chunk) int {
	switch {
	case a.SourceWeight > b.SourceWeight:
		return -1
	case a.SourceWeight < b.SourceWeight:
		return 1
	}
	if a.SourceOrder != b.SourceOrder {
		if a.SourceOrder < b.SourceOrder {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.FilePath, b.FilePath); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// SortChunks sorts chunks in place by Compare.
func SortChunks(chunks []Chunk) {
	slices.SortStableFunc(chunks, Compare)
}
