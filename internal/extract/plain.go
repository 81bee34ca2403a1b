package extract

import (
	"strings"
	"unicode/utf8"
)

// plainRecords yields one record per line. Invalid UTF-8 is replaced.
func plainRecords(content []byte) ([]string, error) {
	text := string(content)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n"), nil
}
