package parser

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/contextsynth/internal/doctree"
)

// DefaultTemplate is used when a run configures no template.
//
//go:embed default_template.md
var DefaultTemplate []byte

// DefaultTemplateName labels the built-in template in logs and errors.
const DefaultTemplateName = "<built-in default template>"

// Template error kinds.
const (
	MissingSlotID   = "missing_slot_id"
	DuplicateSlotID = "duplicate_slot_id"
)

// TemplateError reports a heading that breaks the slot annotation rules.
type TemplateError struct {
	Kind    string
	Line    int
	Heading string // Raw heading text, annotation included
	SlotID  string
}

func (e *TemplateError) Error() string {
	switch e.Kind {
	case DuplicateSlotID:
		return fmt.Sprintf("template line %d: duplicate slot id %q", e.Line, e.SlotID)
	default:
		return fmt.Sprintf("template line %d: heading %q is missing a {#slotId} annotation", e.Line, e.Heading)
	}
}

var (
	slotAnnotation = regexp.MustCompile(`(?i)\s*\{#([a-z0-9][a-z0-9._-]*)\}\s*$`)
	atxPrefix      = regexp.MustCompile(`^#{1,6}[ \t]+$`)
)

// LoadTemplate reads and parses the template at path. An empty path selects
// the built-in default template.
func LoadTemplate(path string) (*doctree.Template, error) {
	if path == "" {
		return ParseTemplate(DefaultTemplate)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	tmpl, err := ParseTemplate(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tmpl, nil
}

// ParseTemplate extracts the ATX headings of a markdown template in document
// order. Headings inside code blocks, block quotes or lists are not part of
// the outline. Every heading below level 1 must carry a unique {#slotId}.
func ParseTemplate(src []byte) (*doctree.Template, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	tmpl := &doctree.Template{}
	seen := make(map[string]bool)

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		node, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		raw, line, ok := atxHeadingText(node, src)
		if !ok {
			return ast.WalkSkipChildren, nil
		}

		heading := doctree.Heading{Level: node.Level, Text: raw}
		if m := slotAnnotation.FindStringSubmatchIndex(raw); m != nil {
			heading.SlotID = raw[m[2]:m[3]]
			heading.Text = strings.TrimSpace(raw[:m[0]])
		}

		if heading.Level > 1 {
			if heading.SlotID == "" {
				return ast.WalkStop, &TemplateError{Kind: MissingSlotID, Line: line, Heading: raw}
			}
			norm := strings.ToLower(heading.SlotID)
			if seen[norm] {
				return ast.WalkStop, &TemplateError{Kind: DuplicateSlotID, Line: line, Heading: raw, SlotID: heading.SlotID}
			}
			seen[norm] = true
		}

		tmpl.Headings = append(tmpl.Headings, heading)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

// atxHeadingText returns the trimmed source text of an ATX heading that
// starts in column 0 of a top-level line, with its 1-based line number.
// Setext headings and nested headings report ok=false.
func atxHeadingText(node *ast.Heading, src []byte) (string, int, bool) {
	if _, top := node.Parent().(*ast.Document); !top {
		return "", 0, false
	}
	lines := node.Lines()
	if lines.Len() == 0 {
		return "", 0, false
	}
	seg := lines.At(0)
	lineStart := bytes.LastIndexByte(src[:seg.Start], '\n') + 1
	if !atxPrefix.Match(src[lineStart:seg.Start]) {
		return "", 0, false
	}
	return strings.TrimSpace(string(seg.Value(src))), lineOf(src, lineStart), true
}

func lineOf(src []byte, offset int) int {
	return bytes.Count(src[:offset], []byte("\n")) + 1
}
