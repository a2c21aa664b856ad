package analysis

import (
	"strings"
	"unicode"
)

// sentimentLexicon maps tokens to polarity weights in [-5, 5], AFINN
// style. Deliberately small: it only needs to separate clearly hostile
// language from neutral reporting, not grade nuance.
var sentimentLexicon = map[string]int{
	// negative
	"destroy":   -3,
	"destroyed": -3,
	"kill":      -3,
	"killed":    -3,
	"hate":      -3,
	"hatred":    -3,
	"evil":      -3,
	"enemy":     -2,
	"enemies":   -2,
	"attack":    -2,
	"attacked":  -2,
	"war":       -2,
	"threat":    -2,
	"violence":  -3,
	"violent":   -3,
	"terror":    -3,
	"terrorist": -3,
	"curse":     -2,
	"cursed":    -2,
	"traitor":   -3,
	"liar":      -2,
	"lies":      -2,
	"corrupt":   -3,
	"worst":     -3,
	"terrible":  -3,
	"awful":     -3,
	"disgust":   -3,
	"disgusting": -3,
	"shame":     -2,
	"shameful":  -2,
	"die":       -3,
	"death":     -2,
	"crush":     -2,
	"ruin":      -2,
	"ruined":    -2,
	"boycott":   -2,
	"ban":       -1,
	"fraud":     -3,
	"scam":      -2,
	"fake":      -2,
	"propaganda": -2,

	// positive
	"good":      3,
	"great":     3,
	"love":      3,
	"loved":     3,
	"beautiful": 3,
	"wonderful": 4,
	"amazing":   4,
	"excellent": 3,
	"best":      3,
	"happy":     3,
	"peace":     2,
	"peaceful":  2,
	"friend":    2,
	"friendly":  2,
	"rich":      2,
	"proud":     2,
	"welcome":   2,
	"thank":     2,
	"thanks":    2,
	"enjoy":     2,
	"enjoyed":   2,
	"celebrate": 3,
	"win":       2,
	"hope":      2,
}

// analyzeSentiment scores content against the lexicon. Score is the sum
// of matched token polarities; Comparative normalizes by token count and
// is 0 when the content has no tokens.
func analyzeSentiment(content string) Sentiment {
	tokens := tokenize(content)
	s := Sentiment{Positive: []string{}, Negative: []string{}}

	for _, tok := range tokens {
		w, ok := sentimentLexicon[tok]
		if !ok {
			continue
		}
		s.Score += w
		if w > 0 {
			s.Positive = append(s.Positive, tok)
		} else {
			s.Negative = append(s.Negative, tok)
		}
	}

	if len(tokens) > 0 {
		s.Comparative = float64(s.Score) / float64(len(tokens))
	}
	return s
}

// tokenize lowercases content and splits it into letter/digit runs.
func tokenize(content string) []string {
	return strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
