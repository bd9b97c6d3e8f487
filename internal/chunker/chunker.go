package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/contextsynth/internal/doctree"
)

// ImplicitHeading names the chunk holding content before the first heading.
const ImplicitHeading = "Document"

// Config controls chunking behavior.
type Config struct {
	StripFrontmatter bool // Drop a leading YAML front-matter block before splitting.
}

var (
	lineBreak   = regexp.MustCompile(`\r?\n`)
	headingLine = regexp.MustCompile(`^(#{1,6})\s+(.*)`)

	yamlFrontmatter = frontmatter.NewFormat("---", "---", yaml.Unmarshal)
)

// ChunkFiles splits every file, preserving file order.
func ChunkFiles(files []doctree.File, cfg Config) ([]doctree.Chunk, error) {
	var chunks []doctree.Chunk
	for _, f := range files {
		fc, err := ChunkFile(f, cfg)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, fc...)
	}
	return chunks, nil
}

// ChunkFile splits one file on ATX heading lines. Content before the first
// heading lands in an implicit level-0 chunk, which is only kept when it has a
// body or the file has no headings at all.
func ChunkFile(f doctree.File, cfg Config) ([]doctree.Chunk, error) {
	content := f.Content
	if cfg.StripFrontmatter {
		body, err := stripFrontmatter(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		content = body
	}

	var chunks []doctree.Chunk
	var buf []string
	heading, level, implicit := ImplicitHeading, 0, true

	emit := func() {
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		if body == "" && !implicit {
			return
		}
		chunks = append(chunks, newChunk(f, heading, level, body))
	}

	for _, line := range lineBreak.Split(content, -1) {
		m := headingLine.FindStringSubmatch(line)
		if m == nil {
			buf = append(buf, line)
			continue
		}
		if !implicit || hasText(buf) {
			emit()
		}
		heading, level, implicit = strings.TrimSpace(m[2]), len(m[1]), false
		buf = buf[:0]
	}
	emit()

	return chunks, nil
}

func newChunk(f doctree.File, heading string, level int, body string) doctree.Chunk {
	return doctree.Chunk{
		ID:           doctree.ChunkID(f.SourceID, f.Path, heading, body),
		SourceID:     f.SourceID,
		SourceWeight: f.SourceWeight,
		SourceOrder:  f.SourceOrder,
		FilePath:     f.Path,
		Heading:      heading,
		Level:        level,
		Content:      body,
		ContentHash:  doctree.ContentHashHex([]byte(body)),
	}
}

func hasText(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}

func stripFrontmatter(content string) (string, error) {
	var meta map[string]any
	body, err := frontmatter.Parse(strings.NewReader(content), &meta, yamlFrontmatter)
	if err != nil {
		return "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return string(body), nil
}
