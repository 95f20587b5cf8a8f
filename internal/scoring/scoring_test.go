package scoring

import (
	"testing"
	"time"

	"memkernel/internal/memory"

	"github.com/stretchr/testify/require"
)

func TestBaseImportance_MatchesTable(t *testing.T) {
	s := New()
	require.Equal(t, 0.8, s.BaseImportance(memory.TypeError))
	require.Equal(t, 0.9, s.BaseImportance(memory.TypeDecision))
	require.Equal(t, 0.3, s.BaseImportance(memory.TypeContext))
}

func TestRecency_DecaysWithHours(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	r0 := s.Recency(now, now)
	require.InDelta(t, 1.0, r0, 1e-9)

	r24 := s.Recency(now, now.Add(-24*time.Hour))
	require.Less(t, r24, r0)
	require.Greater(t, r24, 0.0)
}

func TestUtility_ClassifiesIntoBuckets(t *testing.T) {
	s := New()
	high := memory.Memory{Importance: 1.0, LastAccessed: time.Now().UTC()}
	u := s.Utility(high, 1.0)
	require.Equal(t, BucketHigh, ClassifyUtility(u))

	low := memory.Memory{Importance: 0.0, LastAccessed: time.Now().UTC().Add(-1000 * time.Hour)}
	uLow := s.Utility(low, 0.0)
	require.Equal(t, BucketLow, ClassifyUtility(uLow))
}

func TestReinforceOnAccess_BoostsWhenRecentAndFrequent(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	m := memory.Memory{Importance: 0.5, AccessCount: 10, LastAccessed: now.Add(-time.Hour)}

	out := s.ReinforceOnAccess(m, now)
	require.Greater(t, out.Importance, m.Importance)
	require.LessOrEqual(t, out.Importance, 1.0)
}

func TestReinforceOnAccess_NoBoostWhenStaleOrInfrequent(t *testing.T) {
	s := New()
	now := time.Now().UTC()

	stale := memory.Memory{Importance: 0.5, AccessCount: 10, LastAccessed: now.Add(-48 * time.Hour)}
	require.Equal(t, stale.Importance, s.ReinforceOnAccess(stale, now).Importance)

	infrequent := memory.Memory{Importance: 0.5, AccessCount: 2, LastAccessed: now.Add(-time.Hour)}
	require.Equal(t, infrequent.Importance, s.ReinforceOnAccess(infrequent, now).Importance)
}

func TestApplyForgettingCurve_DecaysStrength(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	m := memory.Memory{Type: memory.TypeContext, Strength: 1.0, LastAccessed: now.Add(-30 * 24 * time.Hour)}

	out := s.ApplyForgettingCurve(m, now)
	require.Less(t, out.Strength, m.Strength)
}

func TestApplyForgettingCurve_ExemptsPinnedResolvedArchived(t *testing.T) {
	s := New()
	now := time.Now().UTC()
	old := now.Add(-365 * 24 * time.Hour)

	pinned := memory.Memory{Type: memory.TypeContext, Strength: 1.0, LastAccessed: old, Pinned: true}
	require.Equal(t, 1.0, s.ApplyForgettingCurve(pinned, now).Strength)

	resolved := memory.Memory{Type: memory.TypeError, Strength: 1.0, LastAccessed: old, Resolved: true}
	require.Equal(t, 1.0, s.ApplyForgettingCurve(resolved, now).Strength)

	archived := memory.Memory{Type: memory.TypeContext, Strength: 1.0, LastAccessed: old, State: memory.StateArchived}
	require.Equal(t, 1.0, s.ApplyForgettingCurve(archived, now).Strength)
}

func TestEmotionalWeight_DetectsStrongNegative(t *testing.T) {
	s := New()
	weight := s.EmotionalWeight("this was a critical disaster for the pipeline")
	require.Less(t, weight, 0.0)
}

func TestEmotionalWeight_DetectsStrongPositive(t *testing.T) {
	s := New()
	weight := s.EmotionalWeight("what a breakthrough, this is excellent")
	require.Greater(t, weight, 0.0)
}

func TestEmotionalWeight_NeutralContentScoresZero(t *testing.T) {
	s := New()
	weight := s.EmotionalWeight("the function returns an integer")
	require.Equal(t, 0.0, weight)
}

func TestTypeCompatibleBoost_ErrorWithNegativeSentiment(t *testing.T) {
	boost := TypeCompatibleBoost(memory.TypeError, -0.8)
	require.Greater(t, boost, 0.0)
	require.LessOrEqual(t, boost, 0.2)
}

func TestTypeCompatibleBoost_IncompatibleSignYieldsZero(t *testing.T) {
	boost := TypeCompatibleBoost(memory.TypeError, 0.8)
	require.Equal(t, 0.0, boost)
}

func TestTypeCompatibleBoost_UnlistedTypeYieldsZero(t *testing.T) {
	boost := TypeCompatibleBoost(memory.TypePattern, 0.8)
	require.Equal(t, 0.0, boost)
}
