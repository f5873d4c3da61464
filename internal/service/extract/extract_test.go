package extract

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"crlf", "a\r\nb", "a\nb"},
		{"trims", "  hello  \n", "hello"},
		{"collapses runs of newlines", "a\n\n\n\n\n\nb", "a\n\n\nb"},
		{"keeps three newlines", "a\n\n\nb", "a\n\n\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	in := "line one\r\n\r\n\r\n\r\n\r\nline two  "
	first := Normalize(in)
	if got := Normalize(first); got != first {
		t.Errorf("Normalize is not idempotent: %q vs %q", got, first)
	}
}

func TestTextPlain(t *testing.T) {
	got, err := Text([]byte("hello world"), "text/plain", "notes.txt")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestTextJSON(t *testing.T) {
	got, err := Text([]byte(`{"a":1}`), "application/json", "data.json")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
}

func TestTextByExtensionFallback(t *testing.T) {
	got, err := Text([]byte("# title"), "application/octet-stream", "readme.md")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "# title" {
		t.Errorf("got %q", got)
	}
}

func TestTextUnknownFormat(t *testing.T) {
	got, err := Text([]byte{0x00, 0x01, 0x02}, "application/octet-stream", "blob.bin")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "" {
		t.Errorf("unknown format should yield empty text, got %q", got)
	}
}

func TestTextCSV(t *testing.T) {
	in := "name,age\n\"Doe, Jane\",30\n"
	got, err := Text([]byte(in), "text/csv", "people.csv")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	want := "name | age\nDoe, Jane | 30\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestTextHTML(t *testing.T) {
	in := "<html><body><h1>Title</h1><p>Some <b>bold</b> text.</p></body></html>"
	got, err := Text([]byte(in), "text/html", "page.html")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "bold") {
		t.Errorf("converted markdown missing content: %q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("html tags leaked into output: %q", got)
	}
}

func TestTextDOCX(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t></w:r><w:r><w:t> paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := f.Write([]byte(doc)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	got, err := Text(buf.Bytes(), "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "report.docx")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(got, "First paragraph.") {
		t.Errorf("missing first paragraph: %q", got)
	}
	if !strings.Contains(got, "Second paragraph.") {
		t.Errorf("runs within a paragraph should concatenate: %q", got)
	}
}

func TestTextDOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, _ := zw.Create("other.xml")
	f.Write([]byte("<x/>"))
	zw.Close()

	if _, err := Text(buf.Bytes(), "", "broken.docx"); err == nil {
		t.Error("expected error for docx without word/document.xml")
	}
}
