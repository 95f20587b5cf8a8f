// Package lifecycle implements the Lifecycle Manager (C9): the four-state
// machine (draft → episodic → semantic → archived, with explicit restore
// back to episodic) and its append-only state-history log.
//
// Grounded on the teacher's internal/store/local_cold.go tier transitions
// (MaintenanceCleanup moving facts between storage tiers, RestoreArchivedFact
// reversing an archival) generalized to the full state machine of spec §4.9,
// with the append-only log modeled on local_session.go's LogActivation
// append idiom.
package lifecycle

import (
	"sync"
	"time"

	"memkernel/internal/memory"
)

// promotionAccessFloor is N in "access_count ≥ N" for episodic→semantic
// promotion. Not numerically specified in the source; set to match the
// scoring package's reinforcement-on-access floor (DESIGN.md open question).
const promotionAccessFloor = 5

// promotionImportanceFloor is the importance alternative for promotion.
const promotionImportanceFloor = 0.7

// Transition is one append-only state-history record.
type Transition struct {
	MemoryID string
	From     memory.State
	To       memory.State
	At       time.Time
}

// Manager implements memory.LifecycleManager plus a history log. Safe for
// concurrent use; the history log is protected by a single mutex, matching
// the teacher's single-lock-per-subsystem convention.
type Manager struct {
	mu      sync.Mutex
	history map[string][]Transition
	now     func() time.Time
}

// New constructs a Manager with an empty history log.
func New() *Manager {
	return &Manager{history: make(map[string][]Transition), now: time.Now}
}

func (m *Manager) record(id string, from, to memory.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[id] = append(m.history[id], Transition{MemoryID: id, From: from, To: to, At: m.now()})
}

// History returns the append-only transition log for a memory, oldest
// first.
func (m *Manager) History(id string) []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history[id]))
	copy(out, m.history[id])
	return out
}

// OnFirstRetrieval advances a draft memory to episodic on its first read.
// State never changes under an active user-initiated read (spec §4.9): the
// returned Memory still reflects this read.
func (m *Manager) OnFirstRetrieval(mem memory.Memory) memory.Memory {
	if mem.State != memory.StateDraft {
		return mem
	}
	m.record(mem.ID, mem.State, memory.StateEpisodic)
	mem.State = memory.StateEpisodic
	return mem
}

// Promote advances an episodic memory to semantic once it has accumulated
// enough access count or importance.
func (m *Manager) Promote(mem memory.Memory) memory.Memory {
	if mem.State != memory.StateEpisodic {
		return mem
	}
	if mem.AccessCount < promotionAccessFloor && mem.Importance < promotionImportanceFloor {
		return mem
	}
	m.record(mem.ID, mem.State, memory.StateSemantic)
	mem.State = memory.StateSemantic
	return mem
}

// Archive transitions any non-archived, unpinned memory to archived.
// Pinned memories are never archived (spec §3 invariant) and are returned
// unchanged.
func (m *Manager) Archive(mem memory.Memory) memory.Memory {
	if mem.Pinned || mem.State == memory.StateArchived {
		return mem
	}
	m.record(mem.ID, mem.State, memory.StateArchived)
	mem.State = memory.StateArchived
	return mem
}

// Restore reverses an archival, moving the memory back to episodic.
func (m *Manager) Restore(mem memory.Memory) memory.Memory {
	if mem.State != memory.StateArchived {
		return mem
	}
	m.record(mem.ID, mem.State, memory.StateEpisodic)
	mem.State = memory.StateEpisodic
	return mem
}

var _ memory.LifecycleManager = (*Manager)(nil)
