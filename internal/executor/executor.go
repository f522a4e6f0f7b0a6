// Package executor defines the Executor Interface : the
// boundary between the flow/lifecycle core and whatever actually runs a
// batch of instructions, whether that is an in-process interpreter
// (executor/naive) or a remote transport (executor/remote).
package executor

import (
	"context"

	"bohrium/internal/instr"
)

// Status reports how a Batch's execution went. Core is never informed of
// per-instruction results beyond this; instruction-level retry or partial
// success is the executor's own concern.
type Status int

const (
	StatusOK Status = iota
	StatusFailed
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "failed"
}

// Batch is one sub-DAG's worth of instructions, already rewritten by the
// Lifecycle Manager, ready to hand to an Executor. SubDAG identifies which
// independent sub-DAG this batch came from, so a dispatch layer can
// correlate results back; Executors that don't care may ignore it.
type Batch struct {
	SubDAG int
	Instructions []instr.Instruction
}

// Executor is the Executor Interface the design specifies: something that
// can run a Batch, register extension functions ahead of time, and be
// brought up/down around a run.
type Executor interface {
	Init(ctx context.Context) error
	RegisterUserFunction(name string) (id int, ok bool)
	Execute(ctx context.Context, batch Batch) (Status, error)
	Shutdown(ctx context.Context) error
}
