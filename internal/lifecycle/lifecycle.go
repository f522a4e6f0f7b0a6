// Package lifecycle implements the Ownership Manager: the rewrite-rule
// table that turns a discard/release/sync instruction into whatever (if
// anything) the next level downstream actually needs to see, and advances
// a Base's Owner tag as a side effect. Grounded on
// original_source/vem/node/cphvb_vem_node.cpp's cphvb_vem_node_execute
// switch, with CPHVB_PARENT/SELF/CHILD renamed to the consolidated
// Upstream/Self/Downstream owner tag base.Owner already carries: a single
// owner tag in place of the original's separate owner-tag and refcount-tag
// pair.
package lifecycle

import (
	"bohrium/internal/base"
	"bohrium/internal/errorsx"
	"bohrium/internal/instr"
)

// Outcome is the result of rewriting one lifecycle instruction: the
// (possibly rewritten) Instruction, and whether it still needs to be
// forwarded to the Executor. Forward is false when the rewrite fully
// absorbed the instruction at this level (original's CPHVB_NONE).
type Outcome struct {
	Instruction instr.Instruction
	Forward bool
}

// Manager applies the rewrite-rule table. It holds no state of its own:
// every bit of bookkeeping lives on the Bases it touches, since ownership
// is a property of the Base, not of the Manager.
type Manager struct{}

// NewManager constructs a Manager.
func NewManager() *Manager { return &Manager{} }

// Apply rewrites one instruction according to its opcode:
//
// - OpDiscard (view teardown + refcount decrement): decrements the write
// operand's Base refcount; once it reaches zero, the Base itself is
// torn down unless an Upstream owner still holds the canonical copy.
// - OpFree (explicit release): an Upstream-owned Base has nothing to do;
// a Self-owned Base is discarded locally and ownership moves Upstream;
// a Downstream-owned Base forwards the release and ownership moves
// Upstream.
// - OpSync (forced materialization): Upstream/Self owners already have
// the data; a Downstream owner is asked to sync, and ownership moves
// to Self when the sync is rewritten, before the Executor runs it.
// - anything else (a regular compute instruction): the write operand's
// Base becomes Downstream-owned, and any read operand still tagged
// Upstream is promoted to Self, since this level's computation now
// depends on data the level above no longer exclusively controls.
func (m *Manager) Apply(ins instr.Instruction) (Outcome, error) {
	if err := ins.Validate(); err != nil {
		return Outcome{}, errorsx.Wrap(err, errorsx.ShapeMismatch, "lifecycle.Apply", "invalid instruction")
	}
	b := ins.Write().View.Base
	if b == nil {
		return Outcome{}, errorsx.New(errorsx.ShapeMismatch, "lifecycle.Apply", "write operand has no Base")
	}

	switch ins.Opcode {
	case instr.OpDiscard:
		return m.applyDiscard(ins, b), nil
	case instr.OpFree:
		return m.applyRelease(ins, b), nil
	case instr.OpSync:
		return m.applySync(ins, b), nil
	default:
		return m.applyCompute(ins, b), nil
	}
}

func (m *Manager) applyDiscard(ins instr.Instruction, b *base.Base) Outcome {
	if after := b.Release(); after > 0 {
		return noForward(ins) // still referenced elsewhere: nothing to do yet
	}
	if b.Owner() != base.Upstream {
		// This level (or downstream) holds the only copy: tell the
		// Executor to actually free the storage.
		return Outcome{Instruction: ins, Forward: true}
	}
	// Upstream still owns the canonical copy; this level has nothing to
	// tear down.
	return noForward(ins)
}

func (m *Manager) applyRelease(ins instr.Instruction, b *base.Base) Outcome {
	switch b.Owner() {
	case base.Upstream:
		return noForward(ins)
	case base.Self:
		b.SetOwner(base.Upstream)
		return Outcome{Instruction: rewriteOpcode(ins, instr.OpDiscard), Forward: true}
	default: // Downstream
		b.SetOwner(base.Upstream)
		return Outcome{Instruction: ins, Forward: true}
	}
}

func (m *Manager) applySync(ins instr.Instruction, b *base.Base) Outcome {
	switch b.Owner() {
	case base.Upstream, base.Self:
		return noForward(ins)
	default: // Downstream
		b.SetOwner(base.Self)
		return Outcome{Instruction: ins, Forward: true}
	}
}

func (m *Manager) applyCompute(ins instr.Instruction, b *base.Base) Outcome {
	b.SetOwner(base.Downstream)
	for _, op := range ins.Reads() {
		if op.IsConst || op.View.Base == nil {
			continue
		}
		if op.View.Base.Owner() == base.Upstream {
			op.View.Base.SetOwner(base.Self)
		}
	}
	return Outcome{Instruction: ins, Forward: true}
}

func noForward(ins instr.Instruction) Outcome {
	return Outcome{Instruction: rewriteOpcode(ins, instr.OpNone), Forward: false}
}

func rewriteOpcode(ins instr.Instruction, op instr.Opcode) instr.Instruction {
	ins.Opcode = op
	return ins
}

// ApplyBatch rewrites every instruction in order and returns only those
// that still need forwarding to the Executor, preserving order
// (original's valid_instruction_count filtering before the VE call).
func (m *Manager) ApplyBatch(instrs []instr.Instruction) ([]instr.Instruction, error) {
	forwarded := make([]instr.Instruction, 0, len(instrs))
	for _, ins := range instrs {
		outcome, err := m.Apply(ins)
		if err != nil {
			return nil, err
		}
		if outcome.Forward {
			forwarded = append(forwarded, outcome.Instruction)
		}
	}
	return forwarded, nil
}
