package depth

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/agentmesh/substrate/cache"
	"github.com/agentmesh/substrate/observability"
	"github.com/agentmesh/substrate/provider"
	"github.com/agentmesh/substrate/types"
)

const (
	defaultInitialLevel = 1
	defaultMaxLevels    = 5
)

// conceptState is the ladder's per-concept mutable record: its level
// registry, shared current level, and per-originator preferred depth.
type conceptState struct {
	mu             sync.Mutex
	levels         []Level
	currentLevel   int
	preferredDepth map[string]int
}

// Ladder is the Depth Ladder.
type Ladder struct {
	router *provider.Router
	cache  *cache.Cache
	graph  PrerequisiteGraph
	sink   observability.Sink

	mu       sync.Mutex
	concepts map[string]*conceptState
}

// New constructs a Ladder. graph may be nil, meaning no concept has
// prerequisites.
func New(router *provider.Router, c *cache.Cache, graph PrerequisiteGraph, sink observability.Sink) *Ladder {
	if sink == nil {
		sink = observability.NopSink{}
	}
	if graph == nil {
		graph = PrerequisiteGraph{}
	}
	return &Ladder{router: router, cache: c, graph: graph, sink: sink, concepts: make(map[string]*conceptState)}
}

// Init creates the ladder for concept if absent. It is idempotent: calling
// it again for an already-initialized concept is a no-op.
func (l *Ladder) Init(concept string, initialLevel, maxLevels int) {
	if initialLevel < 0 {
		initialLevel = defaultInitialLevel
	}
	if maxLevels <= 0 {
		maxLevels = defaultMaxLevels
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.concepts[concept]; ok {
		return
	}

	levels := make([]Level, maxLevels)
	for i := 0; i < maxLevels; i++ {
		levels[i] = Level{Index: i, Complexity: complexityFor(i, maxLevels)}
	}

	l.concepts[concept] = &conceptState{
		levels:         levels,
		currentLevel:   clamp(initialLevel, 0, maxLevels-1),
		preferredDepth: make(map[string]int),
	}
	l.sink.Emit("ladder_initialized", map[string]any{"concept": concept, "max_levels": maxLevels})
}

func complexityFor(index, maxLevels int) int {
	if maxLevels == len(defaultComplexities) && index < len(defaultComplexities) {
		return defaultComplexities[index]
	}
	// Interpolate linearly across [1, 9] for a non-default ladder size.
	if maxLevels <= 1 {
		return defaultComplexities[0]
	}
	span := float64(defaultComplexities[len(defaultComplexities)-1] - defaultComplexities[0])
	return defaultComplexities[0] + int(math.Round(span*float64(index)/float64(maxLevels-1)))
}

func (l *Ladder) stateFor(concept string) (*conceptState, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.concepts[concept]
	return st, ok
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ContentAt returns the artifact for concept at level, clamped to
// [0, maxLevel]. Before materializing a level-0 artifact, it checks
// knowledge against the prerequisite graph; if required prerequisites are
// missing, it returns a LearningPath instead of an artifact.
func (l *Ladder) ContentAt(ctx context.Context, concept string, level int, modality, originator string, knowledge KnowledgeSet) (provider.Artifact, LearningPath, error) {
	st, ok := l.stateFor(concept)
	if !ok {
		l.Init(concept, defaultInitialLevel, defaultMaxLevels)
		st, _ = l.stateFor(concept)
	}

	st.mu.Lock()
	maxLevel := len(st.levels) - 1
	level = clamp(level, 0, maxLevel)
	lvl := st.levels[level]
	st.mu.Unlock()

	if level == 0 {
		if path := l.missingPrerequisites(concept, knowledge); len(path) > 0 {
			return provider.Artifact{}, path, nil
		}
	}

	artifact, err := l.materialize(ctx, concept, modality, originator, level, lvl.Complexity)
	if err != nil {
		return provider.Artifact{}, nil, err
	}

	st.mu.Lock()
	st.currentLevel = level
	if originator != "" {
		st.preferredDepth[originator] = level
	}
	st.mu.Unlock()

	return artifact, nil, nil
}

func (l *Ladder) materialize(ctx context.Context, concept, modality, originator string, level, complexity int) (provider.Artifact, error) {
	key := cache.DeriveKey(concept, modality, complexity, originator, level)
	if cached, ok := l.cache.Get(key); ok {
		if a, ok := cached.(provider.Artifact); ok {
			return a, nil
		}
	}

	artifact, err := l.router.Generate(ctx, provider.Request{Concept: concept, Modality: modality, Complexity: complexity})
	if err != nil {
		return provider.Artifact{}, err
	}
	_ = l.cache.Put(key, artifact, 0)
	return artifact, nil
}

// missingPrerequisites returns the LearningPath of required-but-unknown
// prerequisites for concept, ordered required-first, then by ascending
// difficulty, then by ascending estimated time. An empty path means the
// originator may proceed.
func (l *Ladder) missingPrerequisites(concept string, knowledge KnowledgeSet) LearningPath {
	edges := l.graph[concept]
	if len(edges) == 0 {
		return nil
	}

	var steps LearningPath
	for _, e := range edges {
		if knowledge != nil && knowledge.Knows(e.Target) {
			continue
		}
		if !e.Required {
			continue
		}
		steps = append(steps, LearningPathStep{
			Concept: e.Target, Required: e.Required, Difficulty: e.Difficulty, EstimatedTime: e.EstimatedTime,
		})
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].Required != steps[j].Required {
			return steps[i].Required
		}
		if steps[i].Difficulty != steps[j].Difficulty {
			return steps[i].Difficulty < steps[j].Difficulty
		}
		return steps[i].EstimatedTime < steps[j].EstimatedTime
	})
	return steps
}

// QuickPrimer materializes a low-complexity primer for a LearningPath step.
// It goes to the cache and router directly rather than through ContentAt,
// and is keyed distinctly (DerivePrimerKey) so it never collides with a
// concept's normal level-0 content, per spec.md §9.
func (l *Ladder) QuickPrimer(ctx context.Context, concept, modality, originator string) (provider.Artifact, error) {
	const primerComplexity = 1
	key := cache.DerivePrimerKey(concept, modality, originator)
	if cached, ok := l.cache.Get(key); ok {
		if a, ok := cached.(provider.Artifact); ok {
			return a, nil
		}
	}

	artifact, err := l.router.Generate(ctx, provider.Request{Concept: concept, Modality: modality, Complexity: primerComplexity})
	if err != nil {
		return provider.Artifact{}, err
	}
	_ = l.cache.Put(key, artifact, 0)
	return artifact, nil
}

// Deeper returns the next level up from the ladder's current level, or
// (zero, false) at the ceiling.
func (l *Ladder) Deeper(ctx context.Context, concept, modality, originator string) (provider.Artifact, bool, error) {
	st, ok := l.stateFor(concept)
	if !ok {
		return provider.Artifact{}, false, types.NewError(types.ErrNoContentAtDepth, "concept not initialized").WithContext("concept", concept)
	}
	st.mu.Lock()
	next := st.currentLevel + 1
	maxLevel := len(st.levels) - 1
	st.mu.Unlock()
	if next > maxLevel {
		return provider.Artifact{}, false, nil
	}
	a, _, err := l.ContentAt(ctx, concept, next, modality, originator, nil)
	return a, err == nil, err
}

// Simpler returns the level below the ladder's current level, or
// (zero, false) at the floor.
func (l *Ladder) Simpler(ctx context.Context, concept, modality, originator string) (provider.Artifact, bool, error) {
	st, ok := l.stateFor(concept)
	if !ok {
		return provider.Artifact{}, false, types.NewError(types.ErrNoContentAtDepth, "concept not initialized").WithContext("concept", concept)
	}
	st.mu.Lock()
	prev := st.currentLevel - 1
	st.mu.Unlock()
	if prev < 0 {
		return provider.Artifact{}, false, nil
	}
	a, _, err := l.ContentAt(ctx, concept, prev, modality, originator, nil)
	return a, err == nil, err
}

// ELI5 returns a level-0 artifact augmented with a simplified narration
// marker.
func (l *Ladder) ELI5(ctx context.Context, concept string) (provider.Artifact, error) {
	modality := "animation"
	a, path, err := l.ContentAt(ctx, concept, 0, modality, "", nil)
	if err != nil {
		return provider.Artifact{}, err
	}
	if len(path) > 0 {
		return provider.Artifact{}, types.NewError(types.ErrNoContentAtDepth, "prerequisites required before eli5").
			WithContext("concept", concept).WithContext("learning_path", path)
	}
	a.Provenance = fmt.Sprintf("%s+eli5", a.Provenance)
	return a, nil
}

// Expert returns the top-level artifact for concept.
func (l *Ladder) Expert(ctx context.Context, concept, modality string) (provider.Artifact, error) {
	st, ok := l.stateFor(concept)
	if !ok {
		l.Init(concept, defaultInitialLevel, defaultMaxLevels)
		st, _ = l.stateFor(concept)
	}
	st.mu.Lock()
	top := len(st.levels) - 1
	st.mu.Unlock()
	a, _, err := l.ContentAt(ctx, concept, top, modality, "", nil)
	return a, err
}

// SuggestOptimal applies spec.md §4.5's deterministic heuristic:
//
//	d = round(complexityPreference / 2)
//	if fast: d += 1; if slow: d -= 1
//	if relatedKnown > 0: d += 1
//	return clamp(d, 0, maxLevel-1)
func (l *Ladder) SuggestOptimal(concept string, signal SignalRecord) int {
	maxLevel := defaultMaxLevels - 1
	if st, ok := l.stateFor(concept); ok {
		st.mu.Lock()
		maxLevel = len(st.levels) - 1
		st.mu.Unlock()
	}

	d := int(math.Round(float64(signal.ComplexityPreference) / 2))
	switch signal.LearningSpeed {
	case LearningSpeedFast:
		d++
	case LearningSpeedSlow:
		d--
	}
	if signal.RelatedKnown > 0 {
		d++
	}
	// Spec.md §4.5 bounds the suggestion to [0, maxLevel-1]: the heuristic
	// never recommends jumping straight to the expert level.
	return clamp(d, 0, maxLevel-1)
}

// CanProgressDeeper applies spec.md §4.5's progression predicate:
// understood, rating >= 4, and time spent within [0.5, 3] x the expected
// duration for the current level.
func (l *Ladder) CanProgressDeeper(concept string, feedback Feedback, baseDuration time.Duration) bool {
	st, ok := l.stateFor(concept)
	if !ok {
		return false
	}
	st.mu.Lock()
	currentLevel := st.currentLevel
	st.mu.Unlock()

	expected := time.Duration(float64(baseDuration) * (1 + 0.5*float64(currentLevel)))
	lower := time.Duration(0.5 * float64(expected))
	upper := time.Duration(3 * float64(expected))

	return feedback.Understood &&
		feedback.Rating >= 4 &&
		feedback.TimeSpent >= lower &&
		feedback.TimeSpent <= upper
}
