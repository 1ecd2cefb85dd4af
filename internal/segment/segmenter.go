// Package segment splits job descriptions and resumes into section-sized chunks.
package segment

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultHeaders are the section headers recognised when none are configured.
var DefaultHeaders = []string{
	"responsibilities",
	"requirements",
	"qualifications",
	"duties",
	"experience",
	"skills",
	"about the role",
	"about you",
	"your role",
	"what you'll do",
	"what you will do",
	"what you'll need",
	"nice to have",
	"preferred qualifications",
}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// Segmenter is safe for concurrent use.
type Segmenter struct {
	headers []string
	header  *regexp.Regexp
}

// New builds a segmenter for the given header phrases. Matching is case
// insensitive; an empty list selects DefaultHeaders.
func New(headers []string) *Segmenter {
	phrases := normalizeHeaders(headers)
	if len(phrases) == 0 {
		phrases = normalizeHeaders(DefaultHeaders)
	}

	quoted := make([]string, 0, len(phrases))
	for _, phrase := range phrases {
		quoted = append(quoted, regexp.QuoteMeta(phrase))
	}

	// A header line holds nothing but the phrase and an optional colon or dash.
	pattern := `(?i)^\s*(?:` + strings.Join(quoted, "|") + `)\s*[:\-–—]*\s*$`

	return &Segmenter{
		headers: phrases,
		header:  regexp.MustCompile(pattern),
	}
}

// Headers returns the recognised phrases, longest first.
func (s *Segmenter) Headers() []string {
	return append([]string(nil), s.headers...)
}

// Segment splits text into ordered, non-empty chunks. Each recognised header
// line opens a chunk that runs to the next header; text before the first header
// forms a leading chunk. When fewer than two chunks come out, the text is split
// on blank lines instead.
func (s *Segmenter) Segment(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	var (
		chunks  []string
		current strings.Builder
	)

	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		if s.header.MatchString(strings.ReplaceAll(line, "’", "'")) {
			flush()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	if len(chunks) >= 2 {
		return chunks
	}

	return splitParagraphs(text)
}

func splitParagraphs(text string) []string {
	parts := paragraphBreak.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func normalizeHeaders(headers []string) []string {
	seen := make(map[string]struct{}, len(headers))
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}

	// Longer phrases first so "preferred qualifications" wins over "qualifications".
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	return out
}
