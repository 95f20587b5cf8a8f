// Package session implements the Session Tracker (C11): hour-bucketed
// session identifiers shared by memories ingested close together in time,
// plus the meta-learning component that proposes new runtime thresholds.
//
// Grounded on the teacher's internal/store/local_session.go
// (StoreSessionTurn/GetSessionHistory key session state by a session_id the
// caller supplies). This package generalizes that into the bucket itself:
// Tracker derives the session_id from (project, hour) rather than requiring
// the caller to manage one, since spec §4.11 calls for automatic grouping of
// memories written within the same rolling window.
package session

import (
	"strconv"
	"sync"
	"time"
)

// bucketWidth is the rolling window a session tag covers. A bucket stays
// open for bucketWidth from the Tag call that opened it; it is not aligned
// to wall-clock hour boundaries (the tag only records the hour it opened in).
const bucketWidth = time.Hour

// Tracker assigns a stable session tag to memories ingested within the same
// bucket for a project. The tag is stored on each memory as SessionTag; C7's
// temporal inference strategy groups by project and time window and does not
// read it.
type Tracker struct {
	mu      sync.Mutex
	buckets map[string]bucket
	seq     map[string]int
	now     func() time.Time
}

type bucket struct {
	tag       string
	expiresAt time.Time
}

// New constructs an empty Tracker.
func New() *Tracker {
	return &Tracker{buckets: make(map[string]bucket), seq: make(map[string]int), now: time.Now}
}

// Tag returns the current session tag for project, opening a new bucket if
// none is active or the active one has expired.
func (t *Tracker) Tag(project string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	b, ok := t.buckets[project]
	if ok && now.Before(b.expiresAt) {
		return b.tag
	}

	t.seq[project]++
	tag := bucketTag(project, now, t.seq[project])
	t.buckets[project] = bucket{tag: tag, expiresAt: now.Add(bucketWidth)}
	return tag
}

// Close ends project's active session early, so the next Tag call opens a
// fresh bucket regardless of bucketWidth.
func (t *Tracker) Close(project string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buckets, project)
}

// bucketTag encodes the hour the bucket opened in plus a per-project
// sequence number, so an early Close followed by a new Tag call within the
// same wall-clock hour still produces a distinct tag.
func bucketTag(project string, at time.Time, seq int) string {
	return project + ":" + at.Format("2006010215") + ":" + strconv.Itoa(seq)
}
