package report

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashureev/inspectbot/internal/domain"
)

const (
	// Placeholder marks the paragraph the results table replaces.
	Placeholder = "[TABLE_PLACEHOLDER]"
	// FallbackLabel precedes the table when no placeholder is present.
	FallbackLabel = "Результаты проверки:"
)

// ErrNoBody is returned when the document XML has no w:body element.
var ErrNoBody = errors.New("document has no body")

var tableHeader = [4]string{"№", "Пункт проверки", "Соответствует", "Комментарий"}

// column widths in twentieths of a point
var columnWidths = [4]int{600, 4800, 1600, 2600}

// Row is one line of the results table.
type Row struct {
	Number   int
	Question string
	Answer   string
	Comment  string
}

// RowsFromItems converts inspection items into table rows. Absent answers
// and comments become blank cells.
func RowsFromItems(items []domain.Item) []Row {
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		row := Row{Number: it.Index + 1, Question: it.Question}
		if it.Answer != nil {
			row.Answer = string(*it.Answer)
		}
		if it.Comment != nil {
			row.Comment = *it.Comment
		}
		rows = append(rows, row)
	}
	return rows
}

// Renderer fills a report template with inspection results.
type Renderer struct {
	templatePath string
	title        string
}

// NewRenderer creates a renderer for the template at templatePath. title is
// used as the heading of the blank fallback document.
func NewRenderer(templatePath, title string) *Renderer {
	return &Renderer{templatePath: templatePath, title: title}
}

// LoadTemplate reads the configured template, falling back to a blank document
// when the file does not exist.
func (r *Renderer) LoadTemplate() (*Template, error) {
	return LoadTemplateFile(r.templatePath, r.title)
}

// Render returns a new .docx with the results table at the placeholder, or
// appended after FallbackLabel when the template has no placeholder.
func (r *Renderer) Render(tpl *Template, rows []Row) ([]byte, error) {
	if tpl == nil {
		return nil, fmt.Errorf("render: nil template")
	}
	doc := tpl.document
	l, err := scanDocument(doc, Placeholder)
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	var out bytes.Buffer
	out.Grow(len(doc) + 512*len(rows))
	switch {
	case l.placeholderStart >= 0:
		out.Write(doc[:l.placeholderStart])
		writeTable(&out, rows)
		if l.placeholderInCell {
			// a table cell must end with a paragraph
			out.WriteString(`<w:p/>`)
		}
		out.Write(doc[l.placeholderEnd:])
	case l.bodyEnd >= 0:
		slog.Warn("Table placeholder not found, appending table to end", "placeholder", Placeholder)
		at := l.bodyEnd
		if l.sectPrStart >= 0 {
			at = l.sectPrStart
		}
		out.Write(doc[:at])
		writeParagraph(&out, FallbackLabel, false)
		writeTable(&out, rows)
		out.Write(doc[at:])
	default:
		return nil, ErrNoBody
	}

	return tpl.pack(out.Bytes())
}

// layout holds byte offsets found while scanning document XML. -1 means absent.
type layout struct {
	placeholderStart  int64
	placeholderEnd    int64
	placeholderInCell bool
	sectPrStart       int64
	bodyEnd           int64
}

// scanDocument locates the first paragraph whose text contains marker, the
// body-level section properties, and the end of the body.
func scanDocument(doc []byte, marker string) (layout, error) {
	l := layout{placeholderStart: -1, placeholderEnd: -1, sectPrStart: -1, bodyEnd: -1}
	dec := xml.NewDecoder(bytes.NewReader(doc))

	var (
		depth, bodyDepth, paraDepth = 0, -1, -1
		cellDepth                   int
		paraStart                   int64
		paraInCell, inText          bool
		text                        strings.Builder
	)
	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return l, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "body":
				if bodyDepth < 0 {
					bodyDepth = depth
				}
			case "sectPr":
				if bodyDepth > 0 && depth == bodyDepth+1 {
					l.sectPrStart = start
				}
			case "tc":
				cellDepth++
			case "p":
				if paraDepth < 0 && l.placeholderStart < 0 {
					paraDepth = depth
					paraStart = start
					paraInCell = cellDepth > 0
					text.Reset()
				}
			case "t":
				if paraDepth >= 0 {
					inText = true
				}
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Space == wordNS {
				switch t.Name.Local {
				case "t":
					inText = false
				case "tc":
					cellDepth--
				case "p":
					if depth == paraDepth {
						if strings.Contains(text.String(), marker) {
							l.placeholderStart = paraStart
							l.placeholderEnd = dec.InputOffset()
							l.placeholderInCell = paraInCell
						}
						paraDepth = -1
					}
				case "body":
					if depth == bodyDepth {
						l.bodyEnd = start
					}
				}
			}
			depth--
		}
	}
	return l, nil
}

func writeTable(buf *bytes.Buffer, rows []Row) {
	buf.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/><w:tblBorders>`)
	for _, side := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		buf.WriteString(`<w:` + side + ` w:val="single" w:sz="4" w:space="0" w:color="auto"/>`)
	}
	buf.WriteString(`</w:tblBorders><w:tblLook w:val="04A0"/></w:tblPr><w:tblGrid>`)
	for _, w := range columnWidths {
		buf.WriteString(`<w:gridCol w:w="` + strconv.Itoa(w) + `"/>`)
	}
	buf.WriteString(`</w:tblGrid>`)

	writeRow(buf, tableHeader, true)
	for _, r := range rows {
		writeRow(buf, [4]string{strconv.Itoa(r.Number), r.Question, r.Answer, r.Comment}, false)
	}
	buf.WriteString(`</w:tbl>`)
}

func writeRow(buf *bytes.Buffer, cells [4]string, bold bool) {
	buf.WriteString(`<w:tr>`)
	for i, c := range cells {
		buf.WriteString(`<w:tc><w:tcPr><w:tcW w:w="` + strconv.Itoa(columnWidths[i]) + `" w:type="dxa"/></w:tcPr>`)
		writeParagraph(buf, c, bold)
		buf.WriteString(`</w:tc>`)
	}
	buf.WriteString(`</w:tr>`)
}

func writeParagraph(buf *bytes.Buffer, s string, bold bool) {
	buf.WriteString(`<w:p><w:r>`)
	if bold {
		buf.WriteString(`<w:rPr><w:b/></w:rPr>`)
	}
	writeText(buf, s)
	buf.WriteString(`</w:r></w:p>`)
}

func writeText(buf *bytes.Buffer, s string) {
	buf.WriteString(`<w:t xml:space="preserve">`)
	_ = xml.EscapeText(buf, []byte(s))
	buf.WriteString(`</w:t>`)
}
