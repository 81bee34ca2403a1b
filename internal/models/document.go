// Package models defines core data structures shared by the rewriter, the spelling
// classifier, and the engine that backs them.
package models

import "strings"

// Document is a corpus entry. Indexed documents supply the term statistics
// the spelling classifier reads.
type Document struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Reference string `json:"reference,omitempty"`
}

// SearchText returns the title and content joined by a space.
func (d *Document) SearchText() string {
	return strings.TrimSpace(d.Title + " " + d.Content)
}

// DocumentInput is the input for indexing a document. ID is generated when empty.
type DocumentInput struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Reference string `json:"reference,omitempty"`
}
