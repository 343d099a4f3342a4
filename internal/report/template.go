// Package report renders inspection results into Word (.docx) documents.
package report

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

const documentPart = "word/document.xml"

// ContentType is the MIME type of rendered reports.
const ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ErrNotDocx is returned when a template is not a WordprocessingML package.
var ErrNotDocx = errors.New("template is not a docx package")

// part is one entry of the template zip, kept in original order.
type part struct {
	name   string
	method uint16
	data   []byte
}

// Template is a parsed .docx package. It is never mutated by rendering.
type Template struct {
	parts    []part
	document []byte
	// Fallback is true when the configured template was missing and a blank
	// document was generated instead.
	Fallback bool
}

// Document returns a copy of the main document XML.
func (t *Template) Document() []byte {
	return append([]byte(nil), t.document...)
}

// ParseTemplate reads a .docx package from memory.
func ParseTemplate(data []byte) (*Template, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDocx, err)
	}

	tpl := &Template{}
	for _, f := range zr.File {
		content, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		tpl.parts = append(tpl.parts, part{name: f.Name, method: f.Method, data: content})
		if f.Name == documentPart {
			tpl.document = content
		}
	}
	if tpl.document == nil {
		return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, documentPart)
	}
	return tpl, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			slog.Debug("Failed to close template entry", "name", f.Name, "error", closeErr)
		}
	}()
	return io.ReadAll(rc)
}

// LoadTemplateFile reads a template from disk. A missing file yields a blank
// document titled title with Fallback set; other read errors are returned.
func LoadTemplateFile(path, title string) (*Template, error) {
	if strings.TrimSpace(path) == "" {
		return BlankTemplate(title), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Report template not found, using blank document", "path", path)
		return BlankTemplate(title), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	tpl, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	return tpl, nil
}

// BlankTemplate builds a minimal document containing only a heading.
func BlankTemplate(title string) *Template {
	var doc bytes.Buffer
	doc.WriteString(xmlHeader)
	doc.WriteString(`<w:document xmlns:w="` + wordNS + `"><w:body>`)
	if title != "" {
		doc.WriteString(`<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:rPr><w:b/><w:sz w:val="32"/></w:rPr>`)
		writeText(&doc, title)
		doc.WriteString(`</w:r></w:p>`)
	}
	doc.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>` +
		`<w:pgMar w:top="1134" w:right="850" w:bottom="1134" w:left="1701" w:header="708" w:footer="708" w:gutter="0"/>` +
		`</w:sectPr></w:body></w:document>`)

	return &Template{
		parts: []part{
			{name: "[Content_Types].xml", method: zip.Deflate, data: []byte(contentTypesXML)},
			{name: "_rels/.rels", method: zip.Deflate, data: []byte(rootRelsXML)},
			{name: documentPart, method: zip.Deflate, data: doc.Bytes()},
		},
		document: doc.Bytes(),
		Fallback: true,
	}
}

const (
	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
	wordNS    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

	contentTypesXML = xmlHeader +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
		`</Types>`

	rootRelsXML = xmlHeader +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
		`</Relationships>`
)

// pack writes the template parts into a new zip, replacing the main document.
func (t *Template) pack(document []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range t.parts {
		data := p.data
		if p.name == documentPart {
			data = document
		}
		method := p.method
		if method != zip.Store {
			method = zip.Deflate
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: method})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close document: %w", err)
	}
	return buf.Bytes(), nil
}
