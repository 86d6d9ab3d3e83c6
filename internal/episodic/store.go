package episodic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/codefang-index/internal/indexing"
	"github.com/Sumatoshi-tech/codefang-index/pkg/levenshtein"
	"github.com/Sumatoshi-tech/codefang-index/pkg/persist"
)

// SearchWeights balances the three retrieval signals.
type SearchWeights struct {
	Semantic float64
	Fuzzy    float64
	Keyword  float64
}

// DefaultWeights is the standard hybrid profile.
func DefaultWeights() SearchWeights {
	return SearchWeights{Semantic: 0.4, Fuzzy: 0.3, Keyword: 0.3}
}

// DefaultThreshold filters out episodes whose hybrid score is noise.
const DefaultThreshold = 0.15

// Retention defaults: episodes expire once old enough, unless retrieval
// history shows they are still useful.
const (
	DefaultMaxAge            = 90 * 24 * time.Hour
	usefulnessRetentionFloor = 0.5
)

// Hit is one search result.
type Hit struct {
	Episode *Episode
	Score   float64
}

// Store holds episodes for any number of projects. A global lock guards
// insertion and deletion so the project index stays consistent; per-episode
// metadata mutations take the episode's own lock.
type Store struct {
	Embedder indexing.Embedder

	mu        sync.Mutex
	episodes  map[string]*lockedEpisode
	byProject map[string][]string
}

type lockedEpisode struct {
	mu sync.Mutex
	ep Episode
}

// NewStore creates an episode store over the given embedder (the
// deterministic fallback when nil).
func NewStore(embedder indexing.Embedder) *Store {
	if embedder == nil {
		embedder = indexing.HashEmbedder{}
	}

	return &Store{
		Embedder:  embedder,
		episodes:  make(map[string]*lockedEpisode),
		byProject: make(map[string][]string),
	}
}

// Insert validates, embeds, and stores an episode, assigning an id and
// creation time when absent.
func (s *Store) Insert(ctx context.Context, ep Episode) (string, error) {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}

	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now()
	}

	if err := ep.Validate(); err != nil {
		return "", err
	}

	if len(ep.Embedding) == 0 {
		vec, err := s.Embedder.Embed(ctx, ep.TaskDescription)
		if err != nil {
			return "", fmt.Errorf("episodic: embed: %w", err)
		}

		ep.Embedding = vec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes[ep.ID] = &lockedEpisode{ep: ep}
	s.byProject[ep.ProjectID] = append(s.byProject[ep.ProjectID], ep.ID)

	return ep.ID, nil
}

// Get returns a copy of the episode with the given id.
func (s *Store) Get(id string) (Episode, bool) {
	s.mu.Lock()
	le, ok := s.episodes[id]
	s.mu.Unlock()

	if !ok {
		return Episode{}, false
	}

	le.mu.Lock()
	defer le.mu.Unlock()

	return le.ep, true
}

// Delete removes an episode.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	le, ok := s.episodes[id]
	if !ok {
		return
	}

	delete(s.episodes, id)

	ids := s.byProject[le.ep.ProjectID]
	for i, cur := range ids {
		if cur == id {
			s.byProject[le.ep.ProjectID] = append(ids[:i], ids[i+1:]...)

			break
		}
	}
}

// Search runs the hybrid retrieval for one project: semantic similarity of
// the query embedding, fuzzy similarity against the task description, and
// keyword overlap, combined by the given weights. Episodes scoring below
// threshold are dropped; each returned episode's retrieval count is bumped.
func (s *Store) Search(ctx context.Context, projectID, query string, topK int, weights SearchWeights, threshold float64) ([]Hit, error) {
	if weights == (SearchWeights{}) {
		weights = DefaultWeights()
	}

	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	queryVec, err := s.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("episodic: embed query: %w", err)
	}

	s.mu.Lock()
	candidates := make([]*lockedEpisode, 0, len(s.byProject[projectID]))

	for _, id := range s.byProject[projectID] {
		if le, ok := s.episodes[id]; ok {
			candidates = append(candidates, le)
		}
	}
	s.mu.Unlock()

	var lev levenshtein.Context

	hits := make([]Hit, 0, len(candidates))

	for _, le := range candidates {
		le.mu.Lock()
		ep := le.ep
		le.mu.Unlock()

		score := weights.Semantic*semanticScore(queryVec, ep.Embedding) +
			weights.Fuzzy*fuzzyScore(&lev, query, ep.TaskDescription) +
			weights.Keyword*keywordScore(query, ep.TaskDescription)

		if score < threshold {
			continue
		}

		epCopy := ep
		hits = append(hits, Hit{Episode: &epCopy, Score: score})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}

		return hits[i].Episode.ID < hits[j].Episode.ID
	})

	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	for _, h := range hits {
		s.recordRetrieval(h.Episode.ID)
		h.Episode.RetrievalCount++
	}

	return hits, nil
}

// SetUsefulness updates an episode's usefulness score in place.
func (s *Store) SetUsefulness(id string, score float64) {
	s.mu.Lock()
	le, ok := s.episodes[id]
	s.mu.Unlock()

	if !ok {
		return
	}

	le.mu.Lock()
	defer le.mu.Unlock()

	if score < 0 {
		score = 0
	}

	if score > 1 {
		score = 1
	}

	le.ep.UsefulnessScore = score
}

func (s *Store) recordRetrieval(id string) {
	s.mu.Lock()
	le, ok := s.episodes[id]
	s.mu.Unlock()

	if !ok {
		return
	}

	le.mu.Lock()
	le.ep.RetrievalCount++
	le.mu.Unlock()
}

// Expire removes episodes older than maxAge whose usefulness has not
// earned them retention, returning how many were removed.
func (s *Store) Expire(maxAge time.Duration, now time.Time) int {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0

	for id, le := range s.episodes {
		le.mu.Lock()
		expired := now.Sub(le.ep.CreatedAt) > maxAge && le.ep.UsefulnessScore < usefulnessRetentionFloor
		projectID := le.ep.ProjectID
		le.mu.Unlock()

		if !expired {
			continue
		}

		delete(s.episodes, id)

		ids := s.byProject[projectID]
		for i, cur := range ids {
			if cur == id {
				s.byProject[projectID] = append(ids[:i], ids[i+1:]...)

				break
			}
		}

		removed++
	}

	return removed
}

// persistedState is the on-disk shape of the store.
type persistedState struct {
	Episodes []Episode `json:"episodes"`
}

// SaveTo writes every episode to dir as a JSON row file.
func (s *Store) SaveTo(dir string) error {
	s.mu.Lock()

	state := persistedState{Episodes: make([]Episode, 0, len(s.episodes))}

	for _, le := range s.episodes {
		le.mu.Lock()
		state.Episodes = append(state.Episodes, le.ep)
		le.mu.Unlock()
	}
	s.mu.Unlock()

	sort.Slice(state.Episodes, func(i, j int) bool { return state.Episodes[i].ID < state.Episodes[j].ID })

	p := persist.NewPersister[persistedState]("episodes", persist.NewJSONCodec())

	if err := p.Save(dir, func() *persistedState { return &state }); err != nil {
		return fmt.Errorf("episodic: save: %w", err)
	}

	return nil
}

// LoadFrom replaces the store's contents with the episodes saved in dir.
func (s *Store) LoadFrom(dir string) error {
	var state persistedState

	p := persist.NewPersister[persistedState]("episodes", persist.NewJSONCodec())
	if err := p.Load(dir, func(st *persistedState) { state = *st }); err != nil {
		return fmt.Errorf("episodic: load: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes = make(map[string]*lockedEpisode, len(state.Episodes))
	s.byProject = make(map[string][]string)

	for _, ep := range state.Episodes {
		s.episodes[ep.ID] = &lockedEpisode{ep: ep}
		s.byProject[ep.ProjectID] = append(s.byProject[ep.ProjectID], ep.ID)
	}

	return nil
}

func semanticScore(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score < 0 {
		return 0
	}

	return score
}

func fuzzyScore(lev *levenshtein.Context, query, description string) float64 {
	best := indexing.FuzzyScoreText(lev, query, description)

	for _, word := range strings.Fields(description) {
		if s := indexing.FuzzyScoreText(lev, query, word); s > best {
			best = s
		}
	}

	return best
}

func keywordScore(query, description string) float64 {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return 0
	}

	haystack := strings.ToLower(description)
	matched := 0

	for _, kw := range keywords {
		if strings.Contains(haystack, normalizeKeyword(kw)) {
			matched++
		}
	}

	return float64(matched) / float64(len(keywords))
}

// normalizeKeyword strips a plural "s" so "payments" matches "payment".
func normalizeKeyword(kw string) string {
	if len(kw) > 3 && strings.HasSuffix(kw, "s") {
		return kw[:len(kw)-1]
	}

	return kw
}
