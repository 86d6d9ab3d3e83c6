package indexing

// Weights assigns one fusion weight per hit source. Sources absent from the
// map contribute with DefaultWeight.
type Weights map[Source]float64

// DefaultWeight applies to sources without an explicit weight.
const DefaultWeight = 0.2

// DefaultWeights is the out-of-the-box fusion profile.
func DefaultWeights() Weights {
	return Weights{
		SourceLexical: 0.3,
		SourceVector:  0.3,
		SourceSymbol:  0.2,
		SourceFuzzy:   0.1,
		SourceDomain:  0.1,
	}
}

func (w Weights) weight(src Source) float64 {
	if v, ok := w[src]; ok {
		return v
	}

	return DefaultWeight
}

// FuseHits groups hits by chunk id and computes each group's fused score as
// the weight-normalised sum of its per-source scores. A chunk with a single
// contributor keeps its source label and metadata verbatim; a chunk with
// several gets metadata.sources and metadata.original_scores instead.
// Fusing an already-fused list is a fixed point: one contributor per chunk,
// weights cancel, order preserved.
func FuseHits(hits []SearchHit, weights Weights) []SearchHit {
	if weights == nil {
		weights = DefaultWeights()
	}

	type group struct {
		contributors []SearchHit
		order        int
	}

	groups := make(map[string]*group)
	orderCounter := 0

	for _, h := range hits {
		g, ok := groups[h.ChunkID]
		if !ok {
			g = &group{order: orderCounter}
			orderCounter++
			groups[h.ChunkID] = g
		}

		g.contributors = append(g.contributors, h)
	}

	fused := make([]SearchHit, 0, len(groups))

	for chunkID, g := range groups {
		if len(g.contributors) == 1 {
			fused = append(fused, g.contributors[0])

			continue
		}

		var (
			weightedSum float64
			weightTotal float64
			sources     []string
			origScores  = make(map[string]float64, len(g.contributors))
			first       = g.contributors[0]
		)

		for _, c := range g.contributors {
			w := weights.weight(c.Source)
			weightedSum += c.Score * w
			weightTotal += w
			sources = append(sources, string(c.Source))
			origScores[string(c.Source)] = c.Score
		}

		score := 0.0
		if weightTotal > 0 {
			score = weightedSum / weightTotal
		}

		fused = append(fused, SearchHit{
			ChunkID:  chunkID,
			FilePath: first.FilePath,
			SymbolID: first.SymbolID,
			Score:    score,
			Source:   first.Source,
			Metadata: map[string]any{
				"sources":         sources,
				"original_scores": origScores,
			},
		})
	}

	sortHits(fused)

	return fused
}
