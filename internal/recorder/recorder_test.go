package recorder

import (
	"testing"

	"bohrium/internal/base"
	"bohrium/internal/instr"
	"bohrium/internal/typetag"
	"bohrium/internal/view"
)

func mustView(t *testing.T, b *base.Base, start int64, shape, stride []int64) view.View {
	t.Helper()
	v, err := view.New(b, start, shape, stride)
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	return v
}

func addInstr(t *testing.T, out, a, b view.View) instr.Instruction {
	t.Helper()
	i := instr.Instruction{
		Opcode:   instr.OpAdd,
		Operands: []instr.Operand{instr.FromView(out), instr.FromView(a), instr.FromView(b)},
	}
	if err := i.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return i
}

func TestRecorder_FlushOnEmptyIsNil(t *testing.T) {
	r := New(0)
	if b := r.Flush(); b != nil {
		t.Fatalf("Flush on empty recorder = %v, want nil", b)
	}
}

func TestRecorder_BatchThreshold(t *testing.T) {
	bs := base.New(typetag.Float64, 10)
	v := mustView(t, bs, 0, []int64{10}, []int64{1})

	r := New(2)
	i := addInstr(t, v, v, v)

	if batch, err := r.Record(i); err != nil || batch != nil {
		t.Fatalf("first Record: batch=%v err=%v, want nil,nil", batch, err)
	}
	batch, err := r.Record(i)
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if batch == nil {
		t.Fatal("second Record: expected a batch at threshold")
	}
	if batch.Reason != FlushBatchThreshold {
		t.Fatalf("Reason = %v, want FlushBatchThreshold", batch.Reason)
	}
	if len(batch.Instructions) != 2 {
		t.Fatalf("len(Instructions) = %d, want 2", len(batch.Instructions))
	}
	if r.Pending() != 0 {
		t.Fatalf("Pending() after cut = %d, want 0", r.Pending())
	}
}

func TestRecorder_ForcedSyncFlushesRegardlessOfThreshold(t *testing.T) {
	bs := base.New(typetag.Float64, 10)
	v := mustView(t, bs, 0, []int64{10}, []int64{1})

	r := New(100)
	add := addInstr(t, v, v, v)
	if _, err := r.Record(add); err != nil {
		t.Fatalf("Record add: %v", err)
	}

	sync := instr.Instruction{Opcode: instr.OpSync, Operands: []instr.Operand{instr.FromView(v)}}
	batch, err := r.Record(sync)
	if err != nil {
		t.Fatalf("Record sync: %v", err)
	}
	if batch == nil {
		t.Fatal("expected a forced batch on OpSync")
	}
	if batch.Reason != FlushForcedSync {
		t.Fatalf("Reason = %v, want FlushForcedSync", batch.Reason)
	}
	if len(batch.Instructions) != 2 {
		t.Fatalf("len(Instructions) = %d, want 2", len(batch.Instructions))
	}
}

func TestRecorder_RejectsConstantWriteOperand(t *testing.T) {
	r := New(0)
	bad := instr.Instruction{
		Opcode:   instr.OpAdd,
		Operands: []instr.Operand{instr.FromConstant(instr.Constant{IsInt: true, Bits: 1})},
	}
	if _, err := r.Record(bad); err == nil {
		t.Fatal("expected error recording an instruction with a constant write operand")
	}
}

func TestRecorder_ExplicitFlushCutsPartialBatch(t *testing.T) {
	bs := base.New(typetag.Float64, 10)
	v := mustView(t, bs, 0, []int64{10}, []int64{1})

	r := New(100)
	if _, err := r.Record(addInstr(t, v, v, v)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	batch := r.Flush()
	if batch == nil {
		t.Fatal("expected a batch from explicit Flush")
	}
	if batch.Reason != FlushExplicit {
		t.Fatalf("Reason = %v, want FlushExplicit", batch.Reason)
	}
}
