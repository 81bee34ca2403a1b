package models

// Token is one unit of analyzer output.
// Position is zero-based. PositionLength is the number of word slots the token
// covers; values above 1 mark a multi-word unit such as a shingle or a phrase synonym.
type Token struct {
	Text           string `json:"token"`
	StartOffset    int    `json:"start_offset"`
	EndOffset      int    `json:"end_offset"`
	Position       int    `json:"position"`
	PositionLength int    `json:"position_length,omitempty"`
}

// Span returns PositionLength, treating zero as a single slot.
func (t Token) Span() int {
	if t.PositionLength < 1 {
		return 1
	}
	return t.PositionLength
}
