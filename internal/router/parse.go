package router

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/dgallion1/contextsynth/internal/doctree"
)

// Extraction names the strategy that recovered a JSON array from model output.
type Extraction string

const (
	ExtractNone    Extraction = ""
	ExtractDirect  Extraction = "direct"
	ExtractFenced  Extraction = "fenced"
	ExtractBracket Extraction = "bracket"
)

// ArrayResult is the outcome of ExtractJSONArray.
type ArrayResult struct {
	Via   Extraction
	Items []json.RawMessage
}

// OK reports whether any strategy produced an array.
func (r ArrayResult) OK() bool { return r.Via != ExtractNone }

var (
	fencedBlock  = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")
	bracketBlock = regexp.MustCompile(`(?s)\[.*\]`)
)

type strategy struct {
	via       Extraction
	candidate func(text string) (string, bool)
}

// strategies are tried in order; the first candidate that decodes to a JSON
// array wins.
var strategies = []strategy{
	{ExtractDirect, func(text string) (string, bool) { return text, true }},
	{ExtractFenced, func(text string) (string, bool) {
		m := fencedBlock.FindStringSubmatch(text)
		if m == nil || m[1] == "" {
			return "", false
		}
		return m[1], true
	}},
	{ExtractBracket, func(text string) (string, bool) {
		m := bracketBlock.FindString(text)
		return m, m != ""
	}},
}

// ExtractJSONArray recovers a JSON array from free-form model output: the whole
// reply, then a fenced code block, then the widest [...] substring.
func ExtractJSONArray(text string) ArrayResult {
	text = strings.TrimSpace(text)
	for _, s := range strategies {
		candidate, ok := s.candidate(text)
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &items); err != nil || items == nil {
			continue
		}
		return ArrayResult{Via: s.via, Items: items}
	}
	return ArrayResult{}
}

// assignmentsFrom keeps items that are objects with string chunkId and slotId
// fields naming a known chunk and slot.
func assignmentsFrom(items []json.RawMessage, chunks []doctree.Chunk, slots []doctree.Slot) []doctree.Assignment {
	chunkIDs := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		chunkIDs[c.ID] = struct{}{}
	}
	slotIDs := make(map[string]struct{}, len(slots))
	for _, s := range slots {
		slotIDs[s.ID] = struct{}{}
	}

	out := make([]doctree.Assignment, 0, len(items))
	for _, raw := range items {
		var item map[string]any
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		chunkID, ok1 := item["chunkId"].(string)
		slotID, ok2 := item["slotId"].(string)
		if !ok1 || !ok2 {
			continue
		}
		if _, ok := chunkIDs[chunkID]; !ok {
			continue
		}
		if _, ok := slotIDs[slotID]; !ok {
			continue
		}
		out = append(out, doctree.Assignment{ChunkID: chunkID, SlotID: slotID})
	}
	return out
}
