// Package render turns a synthesis result into the output markdown document.
package render

import (
	"fmt"
	"strings"

	"github.com/dgallion1/contextsynth/internal/doctree"
	"github.com/dgallion1/contextsynth/internal/synth"
)

const (
	supplementaryMarker = "**Supplementary**"
	emptySlotNote       = "_No content routed to this slot._"
	orphansHeading      = "## Unassigned Content"
)

// Options controls optional parts of the rendered document.
type Options struct {
	Citations bool
}

// Render writes the template outline in order, filling every routable heading
// from res. The result always ends with exactly one newline.
func Render(res synth.Result, opts Options) string {
	var blocks []string

	slot := 0
	for _, h := range res.Outline {
		blocks = append(blocks, strings.Repeat("#", h.Level)+" "+h.Text)
		if !h.Routable() {
			continue
		}
		if slot >= len(res.Slots) {
			continue
		}
		blocks = append(blocks, slotBlocks(res.Slots[slot], opts)...)
		slot++
	}

	if len(res.Orphans) > 0 {
		blocks = append(blocks, "---", orphansHeading)
		for _, c := range res.Orphans {
			blocks = append(blocks, "### "+c.Heading, c.Content)
			if opts.Citations {
				blocks = append(blocks, Citation(c))
			}
		}
	}

	return strings.TrimRight(strings.Join(blocks, "\n\n"), "\n") + "\n"
}

func slotBlocks(s synth.FilledSlot, opts Options) []string {
	if s.Primary == nil {
		return []string{emptySlotNote}
	}

	blocks := []string{s.Primary.Content}
	if opts.Citations {
		blocks = append(blocks, Citation(*s.Primary))
	}
	if len(s.Supplementary) == 0 {
		return blocks
	}

	blocks = append(blocks, supplementaryMarker)
	for _, c := range s.Supplementary {
		body := c.Content
		if opts.Citations {
			body += "\n\n" + Citation(c)
		}
		blocks = append(blocks, quote(body))
	}
	return blocks
}

// Citation is the attribution line emitted under a chunk.
func Citation(c doctree.Chunk) string {
	return fmt.Sprintf("_Source: %s · %s_", c.SourceID, c.FilePath)
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
			continue
		}
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}
