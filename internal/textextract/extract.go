// Package textextract reads plain text out of resume and posting files.
package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned for file types that cannot be read as text.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrNoText is returned when a document yields no text at all.
var ErrNoText = errors.New("no text extracted")

// File returns the text content of path based on its extension.
func File(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return PDF(data)
	case ".docx":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return DOCX(data)
	case ".txt", ".md", ".text":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// PDF extracts the text of every readable page. Pages are separated by a
// blank line. Unreadable pages are skipped.
func PDF(content []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			pages = append(pages, pageText)
		}
	}

	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n\n"), nil
}

// DOCX extracts the paragraph text of a Word document, one paragraph per line.
// Empty paragraphs are kept as blank lines.
func DOCX(content []byte) (string, error) {
	archive, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("reading docx: %w", err)
	}

	for _, file := range archive.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("reading docx: %w", err)
		}
		paragraphs, err := docxParagraphs(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("reading docx: %w", err)
		}

		text := strings.TrimSpace(strings.Join(paragraphs, "\n"))
		if text == "" {
			return "", ErrNoText
		}
		return text, nil
	}
	return "", errors.New("reading docx: word/document.xml not found")
}

// docxParagraphs walks document.xml and collects the text runs of every
// top-level paragraph. Table cells contribute their paragraphs in order.
func docxParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		depth      int
		inRun      int
		inText     bool
	)

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return paragraphs, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				depth++
			case "r":
				inRun++
			case "t":
				inText = inRun > 0
			case "tab":
				// w:tab also defines tab stops in paragraph properties.
				if inRun > 0 {
					current.WriteString("\t")
				}
			case "br", "cr":
				if inRun > 0 {
					current.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "r":
				inRun = max(0, inRun-1)
			case "p":
				depth = max(0, depth-1)
				if depth == 0 {
					paragraphs = append(paragraphs, strings.TrimSpace(current.String()))
					current.Reset()
				}
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
}
