// Package recorder implements the Instruction Recorder: an append-only log
// of Instruction values that accumulates until a flush trigger fires.
package recorder

import (
	"sync"

	"bohrium/internal/instr"
)

// FlushReason names why a batch was cut, carried through to the flow
// builder and graph dump so a reader can tell a forced sync apart from an
// ordinary batch-threshold flush.
type FlushReason int

const (
	FlushExplicit FlushReason = iota
	FlushForcedSync
	FlushBatchThreshold
)

func (r FlushReason) String() string {
	switch r {
	case FlushExplicit:
		return "explicit"
	case FlushForcedSync:
		return "forced_sync"
	case FlushBatchThreshold:
		return "batch_threshold"
	default:
		return "unknown"
	}
}

// Batch is a flushed, ordered run of Instructions together with the reason
// the run ended.
type Batch struct {
	Instructions []instr.Instruction
	Reason FlushReason
}

// Recorder accumulates Instructions in record order and exposes them in
// size-bounded Batches. It holds no knowledge of Views' aliasing; that is
// the flow package's job once a Batch reaches it.
type Recorder struct {
	mu sync.Mutex

	batchSize int // BatchSize config option: flush once this many instructions accrue
	pending []instr.Instruction
}

// New creates a Recorder with the given batch-size threshold. A
// non-positive batchSize disables the threshold trigger: only Flush and
// sync opcodes cut batches.
func New(batchSize int) *Recorder {
	return &Recorder{batchSize: batchSize}
}

// Record appends one Instruction to the log, returning a Batch if this
// record crossed the batch-size threshold or is a sync opcode (forced
// flush), and nil otherwise.
func (r *Recorder) Record(i instr.Instruction) (*Batch, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, i)

	if i.Opcode == instr.OpSync {
		return r.cutLocked(FlushForcedSync), nil
	}
	if r.batchSize > 0 && len(r.pending) >= r.batchSize {
		return r.cutLocked(FlushBatchThreshold), nil
	}
	return nil, nil
}

// Flush cuts the current pending run into a Batch regardless of size,
// tagged FlushExplicit. Flushing an empty Recorder is a no-op: it returns
// nil rather than an empty Batch (idempotent-on-empty, the design).
func (r *Recorder) Flush() *Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	return r.cutLocked(FlushExplicit)
}

// Pending reports how many Instructions are accumulated but not yet
// flushed.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Recorder) cutLocked(reason FlushReason) *Batch {
	b := &Batch{Instructions: r.pending, Reason: reason}
	r.pending = nil
	return b
}
