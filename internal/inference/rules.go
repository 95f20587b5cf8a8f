// Package inference implements the Relationship Inference Engine (C7): five
// strategies that derive typed, confidence-scored edges between memories.
//
// Grounded on the teacher's internal/store/local_graph.go (edge persistence
// shape) and internal/store/reflection_search.go / reflection_worker.go
// (similarity-gated candidate generation run both inline on write and on a
// ticker). The type-combination table below is a small fixed decision
// table, matched by a plain Go function rather than the teacher's
// google/mangle datalog engine — see DESIGN.md for why mangle was dropped.
package inference

import "memkernel/internal/memory"

// combinationRow is one row of the type-combination table (spec §4.7): the
// first row whose type pair and similarity floor match wins.
type combinationRow struct {
	nType      memory.Type
	mType      memory.Type
	anyN       bool
	anyM       bool
	floor      float64
	edgeType   memory.RelationType
	confidence float64
}

var combinationTable = []combinationRow{
	{nType: memory.TypeLearning, mType: memory.TypeError, floor: 0.85, edgeType: memory.RelFixes, confidence: 0.9},
	{nType: memory.TypeDecision, mType: memory.TypeError, floor: 0.85, edgeType: memory.RelFixes, confidence: 0.9},
	{nType: memory.TypePattern, mType: memory.TypeDecision, floor: 0.75, edgeType: memory.RelSupports, confidence: 0.75},
	{nType: memory.TypePattern, mType: memory.TypeLearning, floor: 0.75, edgeType: memory.RelSupports, confidence: 0.75},
	{nType: memory.TypeError, mType: memory.TypeError, floor: 0.85, edgeType: memory.RelSimilarTo, confidence: 0.9},
	{anyN: true, anyM: true, floor: 0.80, edgeType: memory.RelRelated, confidence: 0.6},
}

// matchCombination returns the first matching row's edge type and
// confidence for a candidate pair at the given similarity, or false if no
// row's floor is met. A FIXES row's floor is overridden by fixesFloor and
// the generic any/any RELATED row's floor by semanticFloor, so
// kernelconfig.InferenceConfig and MetaLearner's adjusted semantic_floor
// (spec §4.11) reach the table without it losing its own SUPPORTS/SIMILAR_TO
// rows' fixed floors.
func matchCombination(nType, mType memory.Type, similarity, semanticFloor, fixesFloor float64) (memory.RelationType, float64, bool) {
	for _, row := range combinationTable {
		floor := row.floor
		switch {
		case row.edgeType == memory.RelFixes:
			floor = fixesFloor
		case row.anyN && row.anyM:
			floor = semanticFloor
		}
		if similarity < floor {
			continue
		}
		if !row.anyN && row.nType != nType {
			continue
		}
		if !row.anyM && row.mType != mType {
			continue
		}
		return row.edgeType, row.confidence, true
	}
	return "", 0, false
}

// cueCausalPhrases are the phrases the scheduled causal sweep (strategy 5)
// scans for.
var cueCausalPhrases = []string{"caused by", "due to", "because of", "triggered by"}

// jaccard computes the Jaccard similarity of two tag sets.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]int, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	var inter, union int
	for _, v := range set {
		union++
		if v == 3 {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
