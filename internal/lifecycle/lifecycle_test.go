package lifecycle

import (
	"testing"
	"time"

	"memkernel/internal/memory"

	"github.com/stretchr/testify/require"
)

func TestOnFirstRetrieval_DraftBecomesEpisodic(t *testing.T) {
	m := New()
	mem := memory.Memory{ID: "m1", State: memory.StateDraft}

	out := m.OnFirstRetrieval(mem)
	require.Equal(t, memory.StateEpisodic, out.State)

	hist := m.History("m1")
	require.Len(t, hist, 1)
	require.Equal(t, memory.StateDraft, hist[0].From)
	require.Equal(t, memory.StateEpisodic, hist[0].To)
}

func TestOnFirstRetrieval_NoOpOutsideDraft(t *testing.T) {
	m := New()
	mem := memory.Memory{ID: "m1", State: memory.StateSemantic}

	out := m.OnFirstRetrieval(mem)
	require.Equal(t, memory.StateSemantic, out.State)
	require.Empty(t, m.History("m1"))
}

func TestPromote_EpisodicToSemanticOnAccessCount(t *testing.T) {
	m := New()
	mem := memory.Memory{ID: "m1", State: memory.StateEpisodic, AccessCount: 10}

	out := m.Promote(mem)
	require.Equal(t, memory.StateSemantic, out.State)
}

func TestPromote_EpisodicToSemanticOnImportance(t *testing.T) {
	m := New()
	mem := memory.Memory{ID: "m1", State: memory.StateEpisodic, Importance: 0.9}

	out := m.Promote(mem)
	require.Equal(t, memory.StateSemantic, out.State)
}

func TestPromote_NoOpWhenNeitherThresholdMet(t *testing.T) {
	m := New()
	mem := memory.Memory{ID: "m1", State: memory.StateEpisodic, AccessCount: 1, Importance: 0.2}

	out := m.Promote(mem)
	require.Equal(t, memory.StateEpisodic, out.State)
}

// TestArchive_PinProtection is the S4 scenario from spec §8: two otherwise
// identical memories, one pinned, must diverge on archival.
func TestArchive_PinProtection(t *testing.T) {
	m := New()
	now := time.Now().UTC()

	m1 := memory.Memory{ID: "M1", State: memory.StateEpisodic, LastAccessed: now.Add(-1000 * time.Hour)}
	m2 := memory.Memory{ID: "M2", State: memory.StateEpisodic, LastAccessed: now.Add(-1000 * time.Hour), Pinned: true}

	out1 := m.Archive(m1)
	out2 := m.Archive(m2)

	require.Equal(t, memory.StateArchived, out1.State)
	require.Equal(t, memory.StateEpisodic, out2.State, "pinned memory must never be archived")
}

func TestRestore_ArchivedBackToEpisodic(t *testing.T) {
	m := New()
	mem := memory.Memory{ID: "m1", State: memory.StateArchived}

	out := m.Restore(mem)
	require.Equal(t, memory.StateEpisodic, out.State)
}

func TestRestore_NoOpWhenNotArchived(t *testing.T) {
	m := New()
	mem := memory.Memory{ID: "m1", State: memory.StateSemantic}

	out := m.Restore(mem)
	require.Equal(t, memory.StateSemantic, out.State)
}

func TestHistory_IsAppendOnlyAcrossTransitions(t *testing.T) {
	m := New()
	mem := memory.Memory{ID: "m1", State: memory.StateDraft}

	mem = m.OnFirstRetrieval(mem)
	mem.AccessCount = 10
	mem = m.Promote(mem)
	mem = m.Archive(mem)
	mem = m.Restore(mem)

	hist := m.History("m1")
	require.Len(t, hist, 4)
	require.Equal(t, memory.StateDraft, hist[0].From)
	require.Equal(t, memory.StateEpisodic, hist[3].To)
}
