package extractor

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

const (
	// columnGap is the horizontal distance, in PDF units, treated as a column break.
	columnGap = 15.0

	minTextLen       = 50
	minPlainRatio    = 0.6
	plainPunctuation = ".,-/:;()'\"£$€%&@#!?+=*"
)

// statementWords appear on virtually every bank or card statement, in
// English or Malay.
var statementWords = regexp.MustCompile(`(?i)\b(?:bank|account|balance|baki|date|tarikh|payment|bayaran|statement|penyata|total|amount|credit|debit|transaction|card|kad|paid|opening|closing|transfer|page|period)\b`)

// layouts are the ledongthuc/pdf text paths in order of layout fidelity.
// The first readable result wins.
var layouts = []func(r *pdf.Reader) []string{
	readRows,
	readContent,
	readPagePlain,
	readDocumentPlain,
}

// ExtractPDF returns the text of each page of an in-memory PDF. Column
// breaks become tabs so tabular layouts survive extraction. Image-only
// PDFs yield ErrUnreadable.
func ExtractPDF(data []byte) (pages []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			pages, err = nil, fmt.Errorf("extractor: pdf: library panic: %v", rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("extractor: pdf: %w", err)
	}
	if r.NumPage() == 0 {
		return nil, fmt.Errorf("extractor: pdf: document has no pages")
	}

	for _, read := range layouts {
		if got := read(r); IsReadableText(got) {
			return got, nil
		}
	}
	return nil, ErrUnreadable
}

// IsReadableText reports whether extracted pages look like a statement:
// enough text, mostly plain ASCII and at least one statement word. Fonts
// with identity encodings decode to accented noise, which fails the ratio.
func IsReadableText(pages []string) bool {
	var chars, plain, length int
	for _, p := range pages {
		length += len(strings.TrimSpace(p))
		for _, r := range p {
			chars++
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) ||
				unicode.IsSpace(r) || strings.ContainsRune(plainPunctuation, r) {
				plain++
			}
		}
	}
	if length <= minTextLen || chars == 0 {
		return false
	}
	if float64(plain)/float64(chars) <= minPlainRatio {
		return false
	}
	return statementWords.MatchString(strings.Join(pages, " "))
}

// glyph is a positioned run of text on a page.
type glyph struct {
	x, w float64
	s    string
}

// joinRow renders one visual row, tab-separating runs further apart than
// columnGap.
func joinRow(row []glyph) string {
	var b strings.Builder
	for i, g := range row {
		if i > 0 {
			prev := row[i-1]
			if g.x-(prev.x+prev.w) > columnGap {
				b.WriteByte('\t')
			} else if prev.w > 0 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(g.s)
	}
	return strings.TrimSpace(b.String())
}

func eachPage(r *pdf.Reader, fn func(p pdf.Page) []string) []string {
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		var lines []string
		for _, l := range fn(p) {
			if l != "" {
				lines = append(lines, l)
			}
		}
		if len(lines) > 0 {
			pages = append(pages, strings.Join(lines, "\n"))
		}
	}
	return pages
}

// readRows uses the library's own row grouping, the best path for
// well-structured PDFs.
func readRows(r *pdf.Reader) []string {
	return eachPage(r, func(p pdf.Page) []string {
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			gs := make([]glyph, len(row.Content))
			for i, t := range row.Content {
				gs[i] = glyph{x: t.X, w: t.W, s: t.S}
			}
			lines = append(lines, joinRow(gs))
		}
		return lines
	})
}

// readContent buckets raw text objects by rounded Y, top of page first,
// and orders each bucket by X. Widths are unreliable here, so every run
// is measured from the previous run's start.
func readContent(r *pdf.Reader) []string {
	return eachPage(r, func(p pdf.Page) []string {
		buckets := make(map[int][]glyph)
		for _, t := range p.Content().Text {
			if strings.TrimSpace(t.S) == "" {
				continue
			}
			y := int(math.Round(t.Y))
			buckets[y] = append(buckets[y], glyph{x: t.X, s: t.S})
		}

		ys := make([]int, 0, len(buckets))
		for y := range buckets {
			ys = append(ys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(ys)))

		lines := make([]string, 0, len(ys))
		for _, y := range ys {
			row := buckets[y]
			sort.SliceStable(row, func(a, b int) bool { return row[a].x < row[b].x })
			lines = append(lines, joinRow(row))
		}
		return lines
	})
}

func readPagePlain(r *pdf.Reader) []string {
	return eachPage(r, func(p pdf.Page) []string {
		fonts := make(map[string]*pdf.Font)
		for _, name := range p.Fonts() {
			f := p.Font(name)
			fonts[name] = &f
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil
		}
		return []string{strings.TrimSpace(text)}
	})
}

func readDocumentPlain(r *pdf.Reader) []string {
	rd, err := r.GetPlainText()
	if err != nil {
		return nil
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return []string{text}
	}
	return nil
}
