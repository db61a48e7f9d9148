// Package document loads course documents into per-page text. PDF pages
// go through pdfcpu content extraction; plain text files use form feeds
// as page breaks.
package document

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Document is a loaded course document.
type Document struct {
	Title string
	Pages []string
}

// Load reads a document from disk. Supported: .pdf and .txt.
func Load(path string, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("document not found: %s", path)
	}

	var pages []string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err = loadPDF(path, logger)
	case ".txt":
		pages, err = loadText(path)
	default:
		return nil, fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("document has no pages: %s", path)
	}

	return &Document{
		Title: DeriveTitle(path),
		Pages: pages,
	}, nil
}

// DeriveTitle turns a filename into a course title.
func DeriveTitle(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

// loadText splits a plain text file on form feeds. A file without form
// feeds is a single page.
func loadText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	raw := strings.Split(string(data), "\f")
	pages := make([]string, 0, len(raw))
	for _, p := range raw {
		pages = append(pages, strings.TrimSpace(p))
	}
	// Trailing form feed produces an empty last page.
	for len(pages) > 0 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	return pages, nil
}

// loadPDF extracts page text via pdfcpu content streams.
func loadPDF(path string, logger *slog.Logger) ([]string, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "cram-extract-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := api.ExtractContentFile(path, tmpDir, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	byPage, err := collectContentFiles(tmpDir)
	if err != nil {
		return nil, err
	}

	pages := make([]string, count)
	for i := range pages {
		content, ok := byPage[i+1]
		if !ok {
			continue
		}
		pages[i] = DecodeContent(content)
	}

	logger.Debug("extracted PDF", "path", filepath.Base(path), "pages", count)
	return pages, nil
}

var pageNumPattern = regexp.MustCompile(`(\d+)\.txt$`)

// collectContentFiles maps extracted content files to page numbers by the
// numeric suffix pdfcpu puts in the filename.
func collectContentFiles(dir string) (map[int]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted content: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	byPage := make(map[int]string, len(names))
	for _, name := range names {
		m := pageNumPattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		page, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read extracted content: %w", err)
		}
		byPage[page] = string(data)
	}
	return byPage, nil
}

var (
	tjPattern    = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	tjArrPattern = regexp.MustCompile(`\[((?:[^\[\]\\]|\\.)*)\]\s*TJ`)
	strPattern   = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
	tdPattern    = regexp.MustCompile(`(?:T\*|Td|TD|ET)`)
)

// DecodeContent pulls the shown text out of a PDF content stream. Text
// positioning operators become line breaks; everything else is dropped.
// Good enough for text-layer PDFs; scanned pages come out empty.
func DecodeContent(stream string) string {
	var b strings.Builder

	// Process the stream in order so line breaks land between the right
	// strings. Walk operator by operator.
	lines := tdPattern.Split(stream, -1)
	for _, chunk := range lines {
		var parts []string
		for _, m := range tjPattern.FindAllStringSubmatch(chunk, -1) {
			parts = append(parts, unescapePDFString(m[1]))
		}
		for _, m := range tjArrPattern.FindAllStringSubmatch(chunk, -1) {
			var arr strings.Builder
			for _, s := range strPattern.FindAllStringSubmatch(m[1], -1) {
				arr.WriteString(unescapePDFString(s[1]))
			}
			if arr.Len() > 0 {
				parts = append(parts, arr.String())
			}
		}
		if len(parts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(parts, " "))
	}

	return strings.TrimSpace(b.String())
}

func unescapePDFString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '(', ')', '\\':
			b.WriteByte(s[i])
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
