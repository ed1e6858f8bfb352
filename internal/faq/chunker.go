package faq

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Chunk is one indexed piece of an FAQ document.
type Chunk struct {
	Text       string
	Source     string
	ChunkIndex int
	StudyID    string
}

const defaultMaxChunkSize = 1000

var sectionStartRe = regexp.MustCompile(`\n## `)

// splitOnSections splits text at positions where a "## " header starts a new
// line. Go's regexp has no lookahead, so the split is done manually.
func splitOnSections(content string) []string {
	var sections []string
	start := 0
	for _, loc := range sectionStartRe.FindAllStringIndex(content, -1) {
		sections = append(sections, content[start:loc[0]])
		start = loc[0] + 1 // keep the "## " with the following section
	}
	sections = append(sections, content[start:])
	return sections
}

// LoadAndChunk reads a .md or .txt document and splits it into chunks.
// Markdown is split on "## " section headers so each Q&A stays together;
// plain text is grouped by blank-line paragraphs up to maxChunkSize
// characters.
func LoadAndChunk(path, studyID string, maxChunkSize int) ([]Chunk, error) {
	if maxChunkSize <= 0 {
		maxChunkSize = defaultMaxChunkSize
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".md" && ext != ".txt" {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	content := string(raw)
	source := filepath.Base(path)

	var paragraphs []string
	markdownSections := ext == ".md" && strings.Contains(content, "\n## ")
	if markdownSections {
		paragraphs = markdownParagraphs(content)
	} else {
		paragraphs = strings.Split(content, "\n\n")
	}

	var clean []string
	for _, p := range paragraphs {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}

	var texts []string
	if markdownSections {
		// Each section is already a semantic unit; only split oversized ones.
		for _, p := range clean {
			if len(p) > maxChunkSize {
				texts = append(texts, splitLongText(p, maxChunkSize)...)
			} else {
				texts = append(texts, p)
			}
		}
	} else {
		texts = groupParagraphs(clean, maxChunkSize)
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{Text: text, Source: source, ChunkIndex: i, StudyID: studyID}
	}
	return chunks, nil
}

// markdownParagraphs splits markdown by ## headers, dropping a bare
// top-level title when one precedes the first section.
func markdownParagraphs(content string) []string {
	var out []string
	for _, section := range splitOnSections(content) {
		text := strings.TrimSpace(section)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "# ") {
			if idx := strings.Index(text, "\n## "); idx >= 0 {
				// Title followed by sections inside one split piece: drop
				// the title, keep the sections.
				for _, sub := range splitOnSections(text[idx+1:]) {
					if sub = strings.TrimSpace(sub); sub != "" {
						out = append(out, sub)
					}
				}
				continue
			}
			if !strings.Contains(text, "\n") {
				continue // lone document title
			}
		}
		out = append(out, text)
	}
	return out
}

// groupParagraphs packs paragraphs into chunks no longer than maxSize,
// splitting any single paragraph that exceeds it on its own.
func groupParagraphs(paragraphs []string, maxSize int) []string {
	var chunks []string
	current := ""

	for _, para := range paragraphs {
		if current != "" && len(current)+len(para)+1 > maxSize {
			chunks = append(chunks, strings.TrimSpace(current))
			current = ""
		}

		if len(para) > maxSize {
			if current != "" {
				chunks = append(chunks, strings.TrimSpace(current))
				current = ""
			}
			chunks = append(chunks, splitLongText(para, maxSize)...)
			continue
		}

		if current == "" {
			current = para
		} else {
			current += "\n" + para
		}
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}
	return chunks
}

// splitLongText splits text into pieces at word boundaries.
func splitLongText(text string, maxSize int) []string {
	var parts []string
	current := ""
	for _, word := range strings.Fields(text) {
		if current != "" && len(current)+len(word)+1 > maxSize {
			parts = append(parts, current)
			current = word
			continue
		}
		if current == "" {
			current = word
		} else {
			current += " " + word
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}
