package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_Tag_StableWithinBucket(t *testing.T) {
	tr := New()
	fixed := time.Date(2026, 7, 29, 10, 15, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	first := tr.Tag("proj-a")
	second := tr.Tag("proj-a")
	require.Equal(t, first, second)
}

func TestTracker_Tag_NewBucketAfterExpiry(t *testing.T) {
	tr := New()
	start := time.Date(2026, 7, 29, 10, 15, 0, 0, time.UTC)
	tr.now = func() time.Time { return start }

	first := tr.Tag("proj-a")

	tr.now = func() time.Time { return start.Add(2 * time.Hour) }
	second := tr.Tag("proj-a")

	require.NotEqual(t, first, second)
}

func TestTracker_Tag_IsolatedPerProject(t *testing.T) {
	tr := New()
	fixed := time.Date(2026, 7, 29, 10, 15, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	a := tr.Tag("proj-a")
	b := tr.Tag("proj-b")
	require.NotEqual(t, a, b)
}

func TestTracker_Close_OpensFreshBucket(t *testing.T) {
	tr := New()
	fixed := time.Date(2026, 7, 29, 10, 15, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	first := tr.Tag("proj-a")
	tr.Close("proj-a")
	second := tr.Tag("proj-a")

	require.NotEqual(t, first, second, "closing a session should force a new bucket even within bucketWidth")
}
