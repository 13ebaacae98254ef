package framework

import "sync/atomic"

// Revision is the registry's monotonically increasing change counter.
// Each successful mutating call advances it by exactly one, so a caller
// that remembers the value after its own change can tell whether anyone
// else touched the registry since.
type Revision struct {
	n atomic.Int64
}

// Next advances the counter and returns the new value.
func (r *Revision) Next() int64 {
	return r.n.Add(1)
}

// Current returns the counter without advancing it.
func (r *Revision) Current() int64 {
	return r.n.Load()
}
