package consensus

import (
	"context"
	"fmt"

	"macp/internal/embedding"
)

// EmbeddingScorer measures agreement as cosine similarity between statement
// content vectors. Negative similarities clamp to zero: statements pointed in
// opposite semantic directions contribute no agreement rather than negative
// agreement.
type EmbeddingScorer struct {
	Engine embedding.Engine
}

// Score embeds every viable statement and aggregates pairwise similarities.
// Returns an error when the embedding oracle fails; callers that need a
// degraded answer wrap this variant in HybridScorer.
func (s *EmbeddingScorer) Score(ctx context.Context, in Input) (Result, error) {
	stmts := viable(in.Statements)
	if len(stmts) < 2 {
		return aggregate(stmts, nil, nil), nil
	}

	texts := make([]string, len(stmts))
	for i, st := range stmts {
		texts[i] = st.Text
	}

	vectors, err := s.Engine.EmbedBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embedding oracle failed: %w", err)
	}
	if len(vectors) != len(stmts) {
		return Result{}, fmt.Errorf("embedding oracle returned %d vectors for %d statements", len(vectors), len(stmts))
	}

	agreement := make([][]float64, len(stmts))
	for i := range agreement {
		agreement[i] = make([]float64, len(stmts))
	}
	for i := 0; i < len(stmts); i++ {
		for j := i + 1; j < len(stmts); j++ {
			cos, err := embedding.CosineSimilarity(vectors[i], vectors[j])
			if err != nil {
				return Result{}, fmt.Errorf("similarity of statements %d and %d: %w", i, j, err)
			}
			sim := clamp01(cos)
			agreement[i][j] = sim
			agreement[j][i] = sim
		}
	}

	return aggregate(stmts, agreement, weightsFor(stmts, in)), nil
}

// Name returns the scorer name.
func (s *EmbeddingScorer) Name() string { return fmt.Sprintf("embedding(%s)", s.Engine.Name()) }
