package extractor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnreadable means the document holds no extractable text, typically
	// a scanned or image-only PDF.
	ErrUnreadable = errors.New("no readable text in document")
	// ErrUnsupported means the bytes are neither PDF, CSV nor text.
	ErrUnsupported = errors.New("unsupported document format")
)

// Kind is the container format of an uploaded statement.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindCSV  Kind = "csv"
	KindText Kind = "text"
)

// DetectKind sniffs the format from the content, using the file extension
// only to tell CSV from plain text.
func DetectKind(data []byte, filename string) (Kind, error) {
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return KindPDF, nil
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", ErrUnsupported
	}
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		return KindCSV, nil
	}
	return KindText, nil
}

// Extract turns document bytes into page text ready for layout detection.
func Extract(data []byte, filename string) ([]string, error) {
	kind, err := DetectKind(data, filename)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindPDF:
		return ExtractPDF(data)
	case KindCSV:
		return ExtractCSV(data)
	default:
		return ExtractPlainText(data)
	}
}

// ExtractCSV renders each CSV record as one tab-separated line so the
// column templates can read it like a tabular PDF row.
func ExtractCSV(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("extractor: csv: %w", err)
	}

	lines := make([]string, 0, len(records))
	for _, record := range records {
		for i := range record {
			record[i] = strings.TrimSpace(strings.ReplaceAll(record[i], "\t", " "))
		}
		line := strings.Join(record, "\t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, ErrUnreadable
	}
	return []string{strings.Join(lines, "\n")}, nil
}

// ExtractPlainText splits text on form feeds, the page break pdftotext and
// most text exports emit.
func ExtractPlainText(data []byte) ([]string, error) {
	text := strings.ReplaceAll(string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), "\r\n", "\n")
	var pages []string
	for _, page := range strings.Split(text, "\f") {
		if strings.TrimSpace(page) != "" {
			pages = append(pages, page)
		}
	}
	if len(pages) == 0 {
		return nil, ErrUnreadable
	}
	return pages, nil
}
