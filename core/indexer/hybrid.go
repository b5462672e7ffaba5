package indexer

// HybridWeights holds the lexical/semantic blend for a single query,
// derived from config.SearchLexicalWeight and whether semantic search is
// enabled for the deployment.
type HybridWeights struct {
	Lexical  float64
	Semantic float64
}

// NewHybridWeights clamps lexicalWeight to [0,1] and derives the
// complementary semantic weight, collapsing to pure lexical when semantic
// search is disabled regardless of the configured weight.
func NewHybridWeights(lexicalWeight float64, semanticEnabled bool) HybridWeights {
	if !semanticEnabled {
		return HybridWeights{Lexical: 1, Semantic: 0}
	}
	if lexicalWeight < 0 {
		lexicalWeight = 0
	}
	if lexicalWeight > 1 {
		lexicalWeight = 1
	}
	return HybridWeights{Lexical: lexicalWeight, Semantic: 1 - lexicalWeight}
}

// ScoredThread pairs a thread id with its raw lexical and semantic scores
// before fusion, adapted from the per-source score map
// worker_search_merger.go's applyScoreMerge builds before normalizing.
type ScoredThread struct {
	ThreadID int64
	Lexical  float64 // tsvector rank + trigram similarity, unbounded >= 0
	Semantic float64 // cosine similarity in [-1, 1], 0 when not computed
}

// RankedThread is a ScoredThread after fusion, carrying the final blended
// score used for ordering.
type RankedThread struct {
	ThreadID int64
	Score    float64
}

// Fuse blends each candidate's lexical and semantic scores into one final
// score and returns candidates sorted by descending score, following the
// same normalize-by-max-then-weight shape as applyScoreMerge: each score
// component is scaled by the max value present across the set before the
// weights are applied, so neither source dominates purely because its raw
// scale is larger.
func Fuse(candidates []ScoredThread, weights HybridWeights) []RankedThread {
	if len(candidates) == 0 {
		return nil
	}

	maxLex, maxSem := 0.0, 0.0
	for _, c := range candidates {
		if c.Lexical > maxLex {
			maxLex = c.Lexical
		}
		if c.Semantic > maxSem {
			maxSem = c.Semantic
		}
	}

	ranked := make([]RankedThread, 0, len(candidates))
	for _, c := range candidates {
		lexNorm := 0.0
		if maxLex > 0 {
			lexNorm = c.Lexical / maxLex
		}
		semNorm := 0.0
		if maxSem > 0 {
			semNorm = c.Semantic / maxSem
		}
		score := weights.Lexical*lexNorm + weights.Semantic*semNorm
		ranked = append(ranked, RankedThread{ThreadID: c.ThreadID, Score: score})
	}

	sortRankedDescending(ranked)
	return ranked
}

func sortRankedDescending(ranked []RankedThread) {
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j-1].Score < ranked[j].Score; j-- {
			ranked[j-1], ranked[j] = ranked[j], ranked[j-1]
		}
	}
}
