package consensus

import (
	"context"
	"regexp"
	"strings"
)

// wordPattern extracts keywords: runs of letters/digits at least three
// characters long, matching the original keyword-overlap detector.
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]{3,}`)

// LexicalScorer measures agreement by keyword overlap (Jaccard index over
// lowercased words of three or more characters). It needs no external
// services, which makes it both the dependency-free variant and the fallback
// when the embedding oracle is unavailable.
type LexicalScorer struct{}

// Score computes the round consensus from keyword overlap.
func (s *LexicalScorer) Score(_ context.Context, in Input) (Result, error) {
	stmts := viable(in.Statements)
	if len(stmts) < 2 {
		return aggregate(stmts, nil, nil), nil
	}

	keywords := make([]map[string]bool, len(stmts))
	for i, st := range stmts {
		keywords[i] = keywordSet(st.Text)
	}

	agreement := make([][]float64, len(stmts))
	for i := range agreement {
		agreement[i] = make([]float64, len(stmts))
	}
	for i := 0; i < len(stmts); i++ {
		for j := i + 1; j < len(stmts); j++ {
			sim := jaccard(keywords[i], keywords[j])
			agreement[i][j] = sim
			agreement[j][i] = sim
		}
	}

	return aggregate(stmts, agreement, weightsFor(stmts, in)), nil
}

// Name returns the scorer name.
func (s *LexicalScorer) Name() string { return "lexical" }

func keywordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		set[w] = true
	}
	return set
}

// jaccard is intersection size over union size; empty sets agree at 0.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
