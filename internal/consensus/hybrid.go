package consensus

import (
	"context"
	"fmt"
)

// HybridScorer tries the primary (embedding) variant and falls back to the
// lexical variant when the oracle is unreachable, the way the original
// protocol degrades from semantic analysis to keyword overlap. The fallback
// keeps a round scoreable when the embedding service is down mid-session.
type HybridScorer struct {
	Primary  Scorer
	Fallback Scorer
}

// Score applies the primary scorer, then the fallback on error.
func (s *HybridScorer) Score(ctx context.Context, in Input) (Result, error) {
	res, err := s.Primary.Score(ctx, in)
	if err == nil {
		return res, nil
	}
	res, ferr := s.Fallback.Score(ctx, in)
	if ferr != nil {
		return Result{}, fmt.Errorf("primary scorer failed (%v); fallback also failed: %w", err, ferr)
	}
	return res, nil
}

// Name returns the scorer name.
func (s *HybridScorer) Name() string {
	return fmt.Sprintf("hybrid(%s,%s)", s.Primary.Name(), s.Fallback.Name())
}
