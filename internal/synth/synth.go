// Package synth merges routed chunks into the slots of a template.
package synth

import (
	"github.com/dgallion1/contextsynth/internal/doctree"
)

// FilledSlot is one routable template slot with the chunks routed to it.
type FilledSlot struct {
	SlotID        string          `json:"slot_id"`
	Heading       string          `json:"heading"`
	Level         int             `json:"level"`
	Primary       *doctree.Chunk  `json:"primary,omitempty"`
	Supplementary []doctree.Chunk `json:"supplementary"`
}

// Result is the merged document before rendering.
type Result struct {
	// Outline is every template heading in order, titles included.
	Outline []doctree.Heading `json:"outline"`
	// Slots holds the routable headings of Outline, in the same order.
	Slots   []FilledSlot    `json:"slots"`
	Orphans []doctree.Chunk `json:"orphans"`
	// Dropped counts assignments naming an unknown chunk or slot, or an
	// empty chunk.
	Dropped int `json:"dropped"`
}

// Filled returns the number of slots that received a primary chunk.
func (r Result) Filled() int {
	n := 0
	for _, s := range r.Slots {
		if s.Primary != nil {
			n++
		}
	}
	return n
}

// Slot returns the filled slot with the given id.
func (r Result) Slot(id string) (FilledSlot, bool) {
	for _, s := range r.Slots {
		if s.SlotID == id {
			return s, true
		}
	}
	return FilledSlot{}, false
}

// Synthesize places assigned chunks into their slots. Within a slot the
// highest ranked chunk (doctree.Compare) becomes primary and the rest are
// supplementary. Non-empty chunks left without a valid assignment are orphans.
func Synthesize(tmpl doctree.Template, chunks []doctree.Chunk, assignments []doctree.Assignment) Result {
	byID := make(map[string]doctree.Chunk, len(chunks))
	for _, c := range chunks {
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = c
		}
	}

	slots := tmpl.Slots()
	slotIdx := make(map[string]int, len(slots))
	for i, s := range slots {
		slotIdx[s.ID] = i
	}

	type pair struct{ chunk, slot string }
	seen := make(map[pair]bool, len(assignments))
	assigned := make(map[string]bool, len(assignments))
	perSlot := make([][]doctree.Chunk, len(slots))
	dropped := 0

	for _, a := range assignments {
		c, okChunk := byID[a.ChunkID]
		i, okSlot := slotIdx[a.SlotID]
		if !okChunk || !okSlot || c.IsEmpty() {
			dropped++
			continue
		}
		key := pair{a.ChunkID, a.SlotID}
		if seen[key] {
			continue
		}
		seen[key] = true
		assigned[c.ID] = true
		perSlot[i] = append(perSlot[i], c)
	}

	res := Result{
		Outline: tmpl.Headings,
		Slots:   make([]FilledSlot, 0, len(slots)),
		Dropped: dropped,
	}
	for _, h := range tmpl.Headings {
		if !h.Routable() {
			continue
		}
		fs := FilledSlot{SlotID: h.SlotID, Heading: h.Text, Level: h.Level, Supplementary: []doctree.Chunk{}}
		members := perSlot[slotIdx[h.SlotID]]
		doctree.SortChunks(members)
		if len(members) > 0 {
			primary := members[0]
			fs.Primary = &primary
			fs.Supplementary = append(fs.Supplementary, members[1:]...)
		}
		res.Slots = append(res.Slots, fs)
	}

	res.Orphans = []doctree.Chunk{}
	orphaned := make(map[string]bool)
	for _, c := range chunks {
		if c.IsEmpty() || assigned[c.ID] || orphaned[c.ID] {
			continue
		}
		orphaned[c.ID] = true
		res.Orphans = append(res.Orphans, c)
	}
	doctree.SortChunks(res.Orphans)
	return res
}
