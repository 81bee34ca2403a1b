package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plainLines(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("alloy wheels\r\n\n  spare   tyre \nwheel nuts"), ".txt")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := []string{"alloy wheels", "spare tyre", "wheel nuts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	got, err := e.ExtractBytes([]byte("hello\x80world"), ".md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if len(got) != 1 || got[0] != "hello�world" {
		t.Errorf("got %q", got)
	}
}

func TestExtractBytes_sheetRows(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Alloy")
	f.SetCellValue("Sheet1", "B1", "wheels")
	f.SetCellValue("Sheet1", "A2", "Spare tyre")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := []string{"Alloy wheels", "Spare tyre"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtract_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.txt")
	if err := os.WriteFile(path, []byte("roof rack\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0] != "roof rack" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_nonexistent(t *testing.T) {
	if _, err := NewExtractor().Extract("/nonexistent/path/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestExtractBytes_unsupported(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("raw"), ".xyz")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}

func TestSupports(t *testing.T) {
	e := NewExtractor()
	if !e.Supports("/a/B.DOCX") || e.Supports("/a/b.pptx") {
		t.Error("Supports mismatch")
	}
	if got := e.Extensions(); got[0] != ".csv" || len(got) != 6 {
		t.Errorf("Extensions = %v", got)
	}
}

const docxNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func docxArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractBytes_docxParagraphs(t *testing.T) {
	body := `<w:document ` + docxNS + `><w:body>` +
		`<w:p w:rsidR="00A1"><w:pPr><w:jc w:val="left"/></w:pPr><w:r><w:t>Wheel</w:t></w:r><w:r><w:t xml:space="preserve"> nuts &amp; bolts</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Roof rack</w:t></w:r></w:p>` +
		`<w:p></w:p>` +
		`</w:body></w:document>`
	content := docxArchive(t, map[string]string{"word/document.xml": body})

	got, err := NewExtractor().ExtractBytes(content, ".docx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := []string{"Wheel nuts & bolts", "Roof rack"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_docxContentTypes(t *testing.T) {
	for _, override := range []string{
		`<Override PartName="/word/document2.xml" ContentType="` + docxMainType + `"/>`,
		`<Override ContentType="` + docxMainType + `" PartName="/word/document2.xml"/>`,
	} {
		content := docxArchive(t, map[string]string{
			"[Content_Types].xml": `<Types>` + override + `</Types>`,
			"word/document2.xml":  `<w:document ` + docxNS + `><w:body><w:p><w:r><w:t>moved body</w:t></w:r></w:p></w:body></w:document>`,
		})
		got, err := NewExtractor().ExtractBytes(content, ".docx")
		if err != nil {
			t.Fatalf("ExtractBytes: %v", err)
		}
		if len(got) != 1 || got[0] != "moved body" {
			t.Errorf("override %s: got %q", override, got)
		}
	}
}

func TestExtractBytes_docxErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip input")
	}
	content := docxArchive(t, map[string]string{"other.xml": "<x/>"})
	if _, err := e.ExtractBytes(content, ".docx"); err == nil {
		t.Error("expected error when body part is missing")
	}
}
