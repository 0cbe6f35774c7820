package cache

import (
	"fmt"
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeSegment(s string) string {
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
	return strings.ToLower(s)
}

// DeriveKey builds the cache key for a depth-ladder artifact:
// concept:modality:complexity:originator:depth, per spec.md §4.4.
func DeriveKey(concept, modality string, complexity int, originator string, depth int) string {
	return fmt.Sprintf("%s:%s:%d:%s:%d",
		normalizeSegment(concept), normalizeSegment(modality), complexity, normalizeSegment(originator), depth)
}

// DeriveLLMKey builds the cache key for a raw provider artifact:
// llm:concept:modality:complexity.
func DeriveLLMKey(concept, modality string, complexity int) string {
	return fmt.Sprintf("llm:%s:%s:%d", normalizeSegment(concept), normalizeSegment(modality), complexity)
}

// DerivePrimerKey builds the cache key for a "quick primer" artifact. It is
// prefixed distinctly from DeriveKey's level-0 key so a primer never
// collides with (or is mistaken for) normal level-0 content, per spec.md §9.
func DerivePrimerKey(concept, modality string, originator string) string {
	return fmt.Sprintf("primer:%s:%s:%s", normalizeSegment(concept), normalizeSegment(modality), normalizeSegment(originator))
}
