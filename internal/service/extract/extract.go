// Package extract pulls plain text out of uploaded documents so it can be
// fed to a language model as conversation context.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ledongthuc/pdf"
)

// Text extracts plain text from a document, dispatching on MIME type with
// the file extension as a fallback. Unrecognized binary formats yield an
// empty string rather than an error; the caller renders a placeholder.
func Text(data []byte, mime, originalName string) (string, error) {
	mime = strings.ToLower(mime)
	ext := strings.ToLower(filepath.Ext(originalName))

	switch {
	case strings.Contains(mime, "pdf") || ext == ".pdf":
		return pdfText(data)
	case strings.Contains(mime, "officedocument.wordprocessingml") || ext == ".docx":
		return docxText(data)
	case strings.Contains(mime, "html") || ext == ".html" || ext == ".htm":
		return htmlText(data)
	case strings.Contains(mime, "csv") || ext == ".csv":
		return csvText(data)
	case strings.HasPrefix(mime, "text/") || strings.Contains(mime, "json") ||
		ext == ".md" || ext == ".txt" || ext == ".json":
		return string(data), nil
	}

	return "", nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// docx structure, as far as text extraction cares: a zip archive holding
// word/document.xml, where paragraphs are <w:p> and text runs are <w:t>.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("open docx document: %w", err)
	}
	defer rc.Close()

	var out strings.Builder
	dec := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse docx document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}

	return out.String(), nil
}

func htmlText(data []byte) (string, error) {
	converter := md.NewConverter("", true, nil)
	text, err := converter.ConvertString(string(data))
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return text, nil
}

// csvText renders delimited text one record per line with cells joined by a
// single space-padded pipe, which survives model tokenization better than
// raw commas inside quoted cells.
func csvText(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	var out strings.Builder
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		out.WriteString(strings.Join(record, " | "))
		out.WriteByte('\n')
	}
	return out.String(), nil
}
