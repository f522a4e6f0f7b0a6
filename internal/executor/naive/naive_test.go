package naive

import (
	"context"
	"testing"

	"bohrium/internal/base"
	"bohrium/internal/errorsx"
	"bohrium/internal/executor"
	"bohrium/internal/instr"
	"bohrium/internal/typetag"
	"bohrium/internal/view"
)

func mustView(t *testing.T, b *base.Base, shape []int64) view.View {
	t.Helper()
	stride := make([]int64, len(shape))
	if len(shape) > 0 {
		stride[len(shape)-1] = 1
		for i := len(shape) - 2; i >= 0; i-- {
			stride[i] = stride[i+1] * shape[i+1]
		}
	}
	v, err := view.New(b, 0, shape, stride)
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	return v
}

func setFloat64(t *testing.T, b *base.Base, vals []float64) {
	t.Helper()
	b.AllocateHost()
	v := mustView(t, b, []int64{int64(len(vals))})
	for i, val := range vals {
		if err := writeElement(v, []int64{int64(i)}, val); err != nil {
			t.Fatalf("writeElement: %v", err)
		}
	}
}

func readFloat64(t *testing.T, b *base.Base, n int) []float64 {
	t.Helper()
	v := mustView(t, b, []int64{int64(n)})
	out := make([]float64, n)
	for i := range out {
		val, err := readElement(v, []int64{int64(i)})
		if err != nil {
			t.Fatalf("readElement: %v", err)
		}
		out[i] = val
	}
	return out
}

func TestExecute_Add(t *testing.T) {
	a := base.New(typetag.Float64, 3)
	b := base.New(typetag.Float64, 3)
	out := base.New(typetag.Float64, 3)
	setFloat64(t, a, []float64{1, 2, 3})
	setFloat64(t, b, []float64{10, 20, 30})

	va, vb, vout := mustView(t, a, []int64{3}), mustView(t, b, []int64{3}), mustView(t, out, []int64{3})
	ins := instr.Instruction{Opcode: instr.OpAdd, Operands: []instr.Operand{instr.FromView(vout), instr.FromView(va), instr.FromView(vb)}}

	e := New()
	status, err := e.Execute(context.Background(), executor.Batch{Instructions: []instr.Instruction{ins}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if status != executor.StatusOK {
		t.Fatalf("status = %v, want OK", status)
	}
	got := readFloat64(t, out, 3)
	want := []float64{11, 22, 33}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestExecute_ReduceAdd(t *testing.T) {
	a := base.New(typetag.Float64, 4)
	out := base.New(typetag.Float64, 1)
	setFloat64(t, a, []float64{1, 2, 3, 4})

	va := mustView(t, a, []int64{4})
	vout, err := view.New(out, 0, nil, nil)
	if err != nil {
		t.Fatalf("view.New scalar: %v", err)
	}
	ins := instr.Instruction{Opcode: instr.OpReduceAdd, Operands: []instr.Operand{instr.FromView(vout), instr.FromView(va)}}

	e := New()
	if _, err := e.Execute(context.Background(), executor.Batch{Instructions: []instr.Instruction{ins}}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, err := readElement(vout, nil)
	if err != nil {
		t.Fatalf("readElement: %v", err)
	}
	if got != 10 {
		t.Fatalf("reduce_add result = %v, want 10", got)
	}
}

func TestExecute_UnregisteredExtensionFunctionFails(t *testing.T) {
	out := base.New(typetag.Float64, 1)
	vout := mustView(t, out, []int64{1})
	ins := instr.Instruction{Opcode: instr.OpUserExtension, ExtName: "bh_random", Operands: []instr.Operand{instr.FromView(vout)}}

	e := New()
	status, err := e.Execute(context.Background(), executor.Batch{Instructions: []instr.Instruction{ins}})
	if err == nil {
		t.Fatal("expected an error for an unregistered extension function")
	}
	if status != executor.StatusFailed {
		t.Fatalf("status = %v, want Failed", status)
	}
	if !errorsx.Is(err, errorsx.UnsupportedExtensionFunction) {
		t.Fatalf("error kind = %v, want UnsupportedExtensionFunction", err)
	}
}

func TestExecute_RegisteredExtensionFunctionSucceeds(t *testing.T) {
	out := base.New(typetag.Float64, 1)
	vout := mustView(t, out, []int64{1})
	ins := instr.Instruction{Opcode: instr.OpUserExtension, ExtName: "bh_random", Operands: []instr.Operand{instr.FromView(vout)}}

	e := New()
	if _, ok := e.RegisterUserFunction("bh_random"); !ok {
		t.Fatal("RegisterUserFunction returned ok=false")
	}
	if _, err := e.Execute(context.Background(), executor.Batch{Instructions: []instr.Instruction{ins}}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}

func TestExecute_UnsupportedOpcodeFails(t *testing.T) {
	out := base.New(typetag.Float64, 1)
	vout := mustView(t, out, []int64{1})
	ins := instr.Instruction{Opcode: instr.Opcode(200), Operands: []instr.Operand{instr.FromView(vout)}}

	e := New()
	_, err := e.Execute(context.Background(), executor.Batch{Instructions: []instr.Instruction{ins}})
	if !errorsx.Is(err, errorsx.UnsupportedOpcode) {
		t.Fatalf("error kind = %v, want UnsupportedOpcode", err)
	}
}
