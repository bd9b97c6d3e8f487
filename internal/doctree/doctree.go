package doctree

// File is one markdown file matched by a source pattern.
type File struct {
	SourceID     string  // Owning source id
	SourceWeight float64 // Weight in [0,1]
	SourceOrder  int     // Position of the source in the configured list
	Path         string  // Path relative to the run root, forward slashes
	Content      string  // Raw text
	Hash         string  // sha256 of Content
}

// Chunk is a heading-scoped slice of a File.
type Chunk struct {
	ID           string  `json:"chunk_id"`
	SourceID     string  `json:"source_id"`
	SourceWeight float64 `json:"source_weight"`
	SourceOrder  int     `json:"source_order"`
	FilePath     string  `json:"file_path"`
	Heading      string  `json:"heading"`
	Level        int     `json:"level"` // 0 for the implicit leading chunk, 1-6 otherwise
	Content      string  `json:"content"`
	ContentHash  string  `json:"content_hash"`
}

// IsEmpty reports whether the chunk carries no body text.
func (c Chunk) IsEmpty() bool {
	return c.Content == ""
}

// Heading is a single ATX heading of a template.
type Heading struct {
	Level  int    `json:"level"`
	Text   string `json:"heading"`
	SlotID string `json:"slot_id,omitempty"` // Empty only for level-1 titles
}

// Routable reports whether chunks may be assigned to this heading.
func (h Heading) Routable() bool {
	return h.Level > 1
}

// Slot is the router-facing view of a routable heading.
type Slot struct {
	ID      string `json:"slot_id"`
	Heading string `json:"heading"`
}

// Template is the ordered heading outline of a template document.
type Template struct {
	Headings []Heading
}

// Slots returns the routable headings in template order.
func (t *Template) Slots() []Slot {
	var slots []Slot
	for _, h := range t.Headings {
		if h.Routable() {
			slots = append(slots, Slot{ID: h.SlotID, Heading: h.Text})
		}
	}
	return slots
}

// Assignment maps a chunk to a slot.
type Assignment struct {
	ChunkID string `json:"chunkId"`
	SlotID  string `json:"slotId"`
}
