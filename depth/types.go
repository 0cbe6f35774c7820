// Package depth implements the Depth Ladder (spec.md §4.5): a per-concept
// sequence of progressively harder levels, materialized lazily through the
// Provider Router and Content Cache, with prerequisite gating and
// progression rules. Grounded on agent/hierarchical/hierarchical_agent.go's
// level-by-level structuring and llm/router/router.go's candidate-scoring
// idiom (reused here for the optimal-depth heuristic's scoring shape).
package depth

import "time"

// Level is one rung of a concept's ladder.
type Level struct {
	Index       int
	Title       string
	Description string
	Complexity  int
}

// defaultComplexities is spec.md §4.5's default 5-level complexity curve.
var defaultComplexities = []int{1, 3, 5, 7, 9}

// PrerequisiteEdge links a concept to one of its prerequisites.
type PrerequisiteEdge struct {
	Source        string
	Target        string
	Required      bool
	EstimatedTime time.Duration
	Difficulty    int
}

// PrerequisiteGraph maps a concept to its prerequisite edges. It is
// supplied by the caller at construction and never mutated by the ladder.
type PrerequisiteGraph map[string][]PrerequisiteEdge

// KnowledgeSet reports what an originator already knows. It is supplied per
// call, not owned by the ladder, per spec.md §4.5.
type KnowledgeSet interface {
	Knows(concept string) bool
}

// KnowledgeSetFunc adapts a function to KnowledgeSet.
type KnowledgeSetFunc func(concept string) bool

// Knows implements KnowledgeSet.
func (f KnowledgeSetFunc) Knows(concept string) bool { return f(concept) }

// LearningPathStep is one entry of a LearningPath.
type LearningPathStep struct {
	Concept       string
	Required      bool
	Difficulty    int
	EstimatedTime time.Duration
}

// LearningPath is the ordered remediation sequence returned when required
// prerequisites are missing: required steps first, then ascending
// difficulty, then ascending estimated time.
type LearningPath []LearningPathStep

// SignalRecord feeds the optimal-depth heuristic.
type SignalRecord struct {
	ComplexityPreference int // 1..10
	LearningSpeed        LearningSpeed
	RelatedKnown         int
}

// LearningSpeed is one of the three heuristic inputs.
type LearningSpeed string

const (
	LearningSpeedSlow   LearningSpeed = "slow"
	LearningSpeedNormal LearningSpeed = "normal"
	LearningSpeedFast   LearningSpeed = "fast"
)

// Feedback drives the progression predicate after a level is consumed.
type Feedback struct {
	TimeSpent time.Duration
	Understood bool
	Rating     int // 1..5
}
