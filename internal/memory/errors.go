package memory

import "fmt"

// ValidationError reports missing or malformed fields on a write request.
// Never retried; surfaced directly to the caller.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("validation: %s: missing/invalid fields %v", e.Reason, e.Fields)
	}
	return fmt.Sprintf("validation: %s", e.Reason)
}

// StoreUnavailable signals a transient vector-store failure (connection loss,
// SQLITE_BUSY). Collection retries internally up to 3 attempts before
// surfacing this.
type StoreUnavailable struct {
	Op    string
	Cause error
}

func (e *StoreUnavailable) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Cause)
}

func (e *StoreUnavailable) Unwrap() error { return e.Cause }

// DimensionMismatch is fatal: the configured dense dimension no longer
// matches the collection's vector index. The operator must call Migrate.
type DimensionMismatch struct {
	Expected int
	Got      int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: collection expects %d, got %d (call migrate)", e.Expected, e.Got)
}

// GraphUnavailable is logged and swallowed: graph-backed features degrade
// (edges dropped, inference skipped) rather than failing the request.
type GraphUnavailable struct {
	Op    string
	Cause error
}

func (e *GraphUnavailable) Error() string {
	return fmt.Sprintf("graph store unavailable during %s: %v", e.Op, e.Cause)
}

func (e *GraphUnavailable) Unwrap() error { return e.Cause }

// RerankerUnavailable is logged and swallowed: the fusion order is preserved.
type RerankerUnavailable struct {
	Cause error
}

func (e *RerankerUnavailable) Error() string {
	return fmt.Sprintf("reranker unavailable: %v", e.Cause)
}

func (e *RerankerUnavailable) Unwrap() error { return e.Cause }

// InferenceError is logged and swallowed within on-write inference; the
// triggering store still succeeds.
type InferenceError struct {
	Strategy string
	Cause    error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference strategy %s failed: %v", e.Strategy, e.Cause)
}

func (e *InferenceError) Unwrap() error { return e.Cause }

// SchedulerJobError is logged and counted; the scheduler continues and the
// next scheduled run retries the whole page.
type SchedulerJobError struct {
	Job   string
	Cause error
}

func (e *SchedulerJobError) Error() string {
	return fmt.Sprintf("scheduler job %s failed: %v", e.Job, e.Cause)
}

func (e *SchedulerJobError) Unwrap() error { return e.Cause }

// NotFoundError signals get/update/forget against a nonexistent id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("memory not found: %s", e.ID)
}
