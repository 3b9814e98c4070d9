// Package consensus turns a resolved round of statements into a single
// agreement score in [0,1] plus the leading proposal. Scoring is pure:
// given identical statements, reputations, and evidence results, every
// variant reproduces its output bit for bit.
package consensus

import (
	"context"
	"fmt"
	"math"
	"sort"

	"macp/internal/config"
	"macp/internal/embedding"
	"macp/internal/types"
)

// Input is everything a scorer may consult. Reputations are the per-round
// snapshot keyed by speaker id; Evidence is keyed by cited memory id.
type Input struct {
	Statements  []types.Statement
	Reputations map[string]float64
	Evidence    map[string]types.EvidenceResult
}

// Result is the round's consensus value and the statement most other
// weighted participants agree with.
type Result struct {
	Score     float64
	LeadingID string
}

// Scorer is the pluggable consensus function. Variants are selected by
// configuration at session creation, never swapped mid-session.
type Scorer interface {
	Score(ctx context.Context, in Input) (Result, error)
	Name() string
}

// New builds the configured scorer variant. The embedding engine may be nil
// for the lexical variant.
func New(mode string, engine embedding.Engine) (Scorer, error) {
	switch mode {
	case config.ScorerLexical:
		return &LexicalScorer{}, nil
	case config.ScorerEmbedding:
		if engine == nil {
			return nil, fmt.Errorf("embedding scorer requires an embedding engine")
		}
		return &EmbeddingScorer{Engine: engine}, nil
	case config.ScorerHybrid:
		if engine == nil {
			return nil, fmt.Errorf("hybrid scorer requires an embedding engine")
		}
		return &HybridScorer{Primary: &EmbeddingScorer{Engine: engine}, Fallback: &LexicalScorer{}}, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", mode)
	}
}

// Reputation saturation constants for the logistic squash. Midpoint 1.0
// means a baseline-reputation speaker carries weight 0.5; the curve
// asymptotes below 1.0 so no reputation value can buy unbounded influence.
const (
	logisticSteepness = 1.0
	logisticMidpoint  = 1.0

	// evidenceBoost scales the bonus for verified citations: a statement
	// whose strongest verified citation has strength 1.0 carries 1.5x weight.
	evidenceBoost = 0.5
)

// reputationWeight squashes a raw reputation value into (0,1).
func reputationWeight(rep float64) float64 {
	return 1.0 / (1.0 + math.Exp(-logisticSteepness*(rep-logisticMidpoint)))
}

// evidenceWeight returns the citation bonus factor for a statement: 1.0 when
// nothing cited verifies, up to 1+evidenceBoost for a full-strength verified
// citation. Unverifiable or missing references earn nothing.
func evidenceWeight(s types.Statement, evidence map[string]types.EvidenceResult) float64 {
	best := 0.0
	for _, ref := range s.Citations {
		res, ok := evidence[ref]
		if !ok || !res.Exists {
			continue
		}
		if res.Strength > best {
			best = res.Strength
		}
	}
	return 1.0 + evidenceBoost*clamp01(best)
}

// statementWeight is the combined influence of one statement: saturating
// reputation weight x logical coherence x evidence bonus.
func statementWeight(s types.Statement, in Input) float64 {
	rep, ok := in.Reputations[s.SpeakerID]
	if !ok {
		rep = 1.0
	}
	return reputationWeight(rep) * clamp01(s.Coherence) * evidenceWeight(s, in.Evidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// aggregate combines a pairwise agreement matrix and per-statement weights
// into the round score and the leading proposal. agreement[i][j] must be
// symmetric and in [0,1]; statements are the viable scoring set in canonical
// speaking order.
func aggregate(statements []types.Statement, agreement [][]float64, weights []float64) Result {
	n := len(statements)
	if n == 0 {
		return Result{}
	}
	if n == 1 {
		// no consensus is possible with a single voice; still surface the
		// sole statement as the best-effort leading proposal
		return Result{Score: 0, LeadingID: statements[0].ID}
	}

	var num, den float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w := weights[i] * weights[j]
			num += w * agreement[i][j]
			den += w
		}
	}

	score := 0.0
	if den > 0 {
		score = clamp01(num / den)
	}

	// leading proposal: own weight x average agreement with everyone else
	best := -1
	bestVal := math.Inf(-1)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			if j != i {
				sum += agreement[i][j]
			}
		}
		val := weights[i] * sum / float64(n-1)
		if val > bestVal || (val == bestVal && lessBySpeaker(statements[i], statements[best])) {
			best = i
			bestVal = val
		}
	}
	return Result{Score: score, LeadingID: statements[best].ID}
}

// lessBySpeaker is the deterministic tie-break: lower speaker id wins, then
// lower statement id.
func lessBySpeaker(a, b types.Statement) bool {
	if a.SpeakerID != b.SpeakerID {
		return a.SpeakerID < b.SpeakerID
	}
	return a.ID < b.ID
}

// viable filters the scoring set, preserving speaking order.
func viable(statements []types.Statement) []types.Statement {
	out := make([]types.Statement, 0, len(statements))
	for _, s := range statements {
		if s.Viable() {
			out = append(out, s)
		}
	}
	return out
}

// weightsFor computes the combined weight of each statement in order.
func weightsFor(statements []types.Statement, in Input) []float64 {
	weights := make([]float64, len(statements))
	for i, s := range statements {
		weights[i] = statementWeight(s, in)
	}
	return weights
}

// Citations returns the deduplicated citations of all statements in
// ascending order, for callers that need a stable verification worklist.
func Citations(statements []types.Statement) []string {
	set := make(map[string]bool)
	for _, s := range statements {
		for _, ref := range s.Citations {
			set[ref] = true
		}
	}
	out := make([]string, 0, len(set))
	for ref := range set {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}
