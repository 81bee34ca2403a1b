package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxBodyPath     = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	docxParagraph = regexp.MustCompile(`(?s)<w:p(?:\s[^>/]*)?>(.*?)</w:p>`)
	docxText      = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)
	docxOverride  = regexp.MustCompile(`<Override\s[^>]*>`)
	docxPartName  = regexp.MustCompile(`PartName="([^"]+)"`)
)

// docxRecords yields one record per paragraph. Runs inside a paragraph are
// concatenated since Word splits words across runs freely.
func docxRecords(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	bodyPath := docxBodyPath
	if types, err := readZipFile(zr, docxContentTypes); err == nil {
		if p := docxMainPart(string(types)); p != "" {
			bodyPath = p
		}
	}
	body, err := readZipFile(zr, bodyPath)
	if err != nil {
		return nil, fmt.Errorf("extract DOCX: %w", err)
	}

	var records []string
	for _, para := range docxParagraph.FindAllStringSubmatch(string(body), -1) {
		var b strings.Builder
		for _, run := range docxText.FindAllStringSubmatch(para[1], -1) {
			b.WriteString(html.UnescapeString(run[1]))
		}
		records = append(records, b.String())
	}
	return records, nil
}

// docxMainPart finds the main document part named in [Content_Types].xml,
// whatever the attribute order.
func docxMainPart(types string) string {
	for _, override := range docxOverride.FindAllString(types, -1) {
		if !strings.Contains(override, `ContentType="`+docxMainType+`"`) {
			continue
		}
		if m := docxPartName.FindStringSubmatch(override); m != nil {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return ""
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}
