package spelling

import "github.com/hyperjump/kotoba/internal/models"

// positionState is what the field variants say about one query word.
type positionState int

const (
	// no field knows the word
	stateMiss positionState = iota
	// present, but only above the cutoff
	stateStopword
	// under the cutoff on a core field, with no core field above it
	stateHit
	// a hit that core fields disagree on, or that only an extra field backs
	stateMixed
)

type judge struct {
	resp      *models.TermVectorsResponse
	divider   float64
	cutoff    float64
	allTokens bool
}

// tally reports whether any token at pos in fields is under (hit) or above
// (over) the cutoff.
func (j judge) tally(pos int, fields []string) (hit, over bool) {
	for _, field := range fields {
		tokens := j.resp.AtPosition(field, pos)
		if !j.allTokens && len(tokens) > 1 {
			tokens = tokens[:1]
		}
		for _, ts := range tokens {
			if ts.DocFreq <= 0 {
				continue
			}
			if float64(ts.DocFreq)/j.divider <= j.cutoff {
				hit = true
			} else {
				over = true
			}
		}
	}
	return hit, over
}

func (j judge) position(pos int, core, extra []string) positionState {
	coreHit, coreOver := j.tally(pos, core)
	extraHit, extraOver := j.tally(pos, extra)
	switch {
	case coreHit && !coreOver:
		return stateHit
	case coreHit, extraHit:
		return stateMixed
	case coreOver, extraOver:
		return stateStopword
	default:
		return stateMiss
	}
}

// verdictFor folds per-position states into a verdict. Checks run in order:
// misses first, then stopwords, then mixed hits.
func verdictFor(states []positionState) models.SpellingVerdict {
	if len(states) == 0 {
		return models.Exact
	}
	var misses, stopwords, mixed int
	for _, s := range states {
		switch s {
		case stateMiss:
			misses++
		case stateStopword:
			stopwords++
		case stateMixed:
			mixed++
		}
	}
	switch {
	case misses == len(states):
		return models.Fuzzy
	case misses > 0:
		return models.MostFuzzy
	case stopwords == len(states):
		return models.PureStopwords
	case mixed > 0:
		return models.MostExact
	default:
		return models.Exact
	}
}
