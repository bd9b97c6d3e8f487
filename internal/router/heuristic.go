package router

import (
	"context"
	"regexp"
	"strings"

	"github.com/dgallion1/contextsynth/internal/doctree"
)

// minScore is the least overlap a slot needs before a chunk is placed in it.
const minScore = 2

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "into": {}, "is": {},
	"it": {}, "of": {}, "on": {}, "or": {}, "our": {}, "that": {}, "the": {}, "their": {},
	"then": {}, "there": {}, "these": {}, "this": {}, "to": {}, "we": {}, "with": {},
	"without": {}, "you": {}, "your": {},
}

var nonWord = regexp.MustCompile(`[^a-z0-9\s]`)

// Heuristic routes by word overlap between chunk text and slot headings. It
// makes no network calls and returns the same assignments for the same input.
type Heuristic struct{}

func NewHeuristic() Heuristic { return Heuristic{} }

type scoredSlot struct {
	id     string
	lower  string
	tokens []string
}

func (Heuristic) Route(ctx context.Context, chunks []doctree.Chunk, slots []doctree.Slot) ([]doctree.Assignment, error) {
	prepared := make([]scoredSlot, 0, len(slots))
	for _, s := range slots {
		heading := strings.TrimSpace(s.Heading)
		if heading == "" {
			continue
		}
		prepared = append(prepared, scoredSlot{
			id:     s.ID,
			lower:  strings.ToLower(heading),
			tokens: tokenize(heading),
		})
	}
	if len(prepared) == 0 {
		return nil, nil
	}

	var out []doctree.Assignment
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if id, ok := bestSlot(c, prepared); ok {
			out = append(out, doctree.Assignment{ChunkID: c.ID, SlotID: id})
		}
	}
	return out, nil
}

func bestSlot(c doctree.Chunk, slots []scoredSlot) (string, bool) {
	heading := strings.ToLower(c.Heading)
	for _, s := range slots {
		if s.lower == heading {
			return s.id, true
		}
	}

	combined := tokenSet(c.Heading + "\n" + c.Content)
	if len(combined) == 0 {
		return "", false
	}
	headingOnly := tokenSet(c.Heading)

	best, bestScore := -1, 0
	for i, s := range slots {
		if len(s.tokens) == 0 {
			continue
		}
		score := 0
		for _, tok := range s.tokens {
			if _, ok := combined[tok]; ok {
				score++
			}
			if _, ok := headingOnly[tok]; ok {
				score += 2
			}
		}
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < minScore {
		return "", false
	}
	return slots[best].id, true
}

// tokenize lowercases s, blanks out everything but ASCII letters, digits and
// whitespace, and keeps words of three or more letters that are not stop words.
// Repeated words are kept.
func tokenize(s string) []string {
	fields := strings.Fields(nonWord.ReplaceAllString(strings.ToLower(s), " "))
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	tokens := tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
