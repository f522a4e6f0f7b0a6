// Package naive is the in-process reference Executor: it interprets a
// Batch directly against Base-backed byte buffers, with no code
// generation step. Grounded on
// original_source/ve/dynamite/bh_ve_dynamite.cpp's bh_ve_dynamite_execute
// dispatch switch (NONE/DISCARD/SYNC short-circuit, FREE releases the
// vcache-style buffer, USERFUNC dispatches to a registered extension,
// default falls through to the compute kernel) without its code-generation
// path (codegen/kernel dispatch is out of scope, the design).
package naive

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"sync"
	"time"

	"bohrium/internal/errorsx"
	"bohrium/internal/executor"
	"bohrium/internal/instr"
	"bohrium/internal/typetag"
	"bohrium/internal/view"
)

// Executor is the naive in-process reference implementation of
// executor.Executor.
type Executor struct {
	mu sync.Mutex
	extFuncs map[string]int
	nextExtID int
	rng *rand.Rand
}

// New constructs an Executor. OpRandom draws from a private PRNG seeded
// from the current time, standing in for the original's random123 userfunc
// (bh_random, original_source/ve/dynamite/bh_ve_dynamite.cpp) without that
// construct's seed/key reproducibility guarantees.
func New() *Executor {
	return &Executor{
		extFuncs: make(map[string]int),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *Executor) Init(ctx context.Context) error { return nil }

// RegisterUserFunction assigns a stable integer id to an extension
// function name the first time it is seen, and returns the same id on
// later calls (original's *_reg_func: register once, look up thereafter).
func (e *Executor) RegisterUserFunction(name string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := e.extFuncs[name]; ok {
		return id, true
	}
	id := e.nextExtID
	e.nextExtID++
	e.extFuncs[name] = id
	return id, true
}

func (e *Executor) Shutdown(ctx context.Context) error { return nil }

// Execute runs every instruction in batch in order, stopping at the first
// failure (mirroring bh_ve_dynamite_execute's break-on-error loop).
func (e *Executor) Execute(ctx context.Context, batch executor.Batch) (executor.Status, error) {
	for _, ins := range batch.Instructions {
		if err := ctx.Err(); err != nil {
			return executor.StatusFailed, errorsx.Wrap(err, errorsx.ExecutorFailure, "naive.Execute", "context cancelled")
		}
		if err := e.step(ins); err != nil {
			return executor.StatusFailed, err
		}
	}
	return executor.StatusOK, nil
}

func (e *Executor) step(ins instr.Instruction) error {
	switch ins.Opcode {
	case instr.OpNone, instr.OpDiscard, instr.OpSync:
		return nil
	case instr.OpFree:
		if b := ins.Write().View.Base; b != nil {
			b.Free()
		}
		return nil
	case instr.OpUserExtension:
		e.mu.Lock()
		_, ok := e.extFuncs[ins.ExtName]
		e.mu.Unlock()
		if !ok {
			return errorsx.New(errorsx.UnsupportedExtensionFunction, "naive.step", "extension function %q not registered", ins.ExtName)
		}
		return nil
	default:
		return e.compute(ins)
	}
}

// compute runs a built-in element-wise or reduction opcode directly
// against the operands' backing Bases, allocating zero-filled host storage
// for the write operand and any View read operand lazily on first use.
func (e *Executor) compute(ins instr.Instruction) error {
	w := ins.Write().View
	if w.Base == nil {
		return errorsx.New(errorsx.ShapeMismatch, "naive.compute", "write operand has no Base")
	}
	w.Base.AllocateHost()

	reads := ins.Reads()
	for _, op := range reads {
		if !op.IsConst && op.View.Base != nil {
			op.View.Base.AllocateHost()
		}
	}
	if ins.Opcode.Reducing() {
		return reduce(ins.Opcode, w, reads)
	}

	switch ins.Opcode {
	case instr.OpIdentity:
		return elementwise1(w, reads, func(a float64) float64 { return a })
	case instr.OpNeg:
		return elementwise1(w, reads, func(a float64) float64 { return -a })
	case instr.OpNot:
		return elementwise1(w, reads, func(a float64) float64 {
			if a == 0 {
				return 1
			}
			return 0
		})
	case instr.OpRandom:
		return elementwise0(w, e.nextRandom)
	case instr.OpAdd:
		return elementwise2(w, reads, func(a, b float64) float64 { return a + b })
	case instr.OpSub:
		return elementwise2(w, reads, func(a, b float64) float64 { return a - b })
	case instr.OpMul:
		return elementwise2(w, reads, func(a, b float64) float64 { return a * b })
	case instr.OpDiv:
		return elementwise2(w, reads, func(a, b float64) float64 { return a / b })
	case instr.OpMod:
		return elementwise2(w, reads, math.Mod)
	case instr.OpEqual:
		return elementwise2(w, reads, boolOp(func(a, b float64) bool { return a == b }))
	case instr.OpNotEqual:
		return elementwise2(w, reads, boolOp(func(a, b float64) bool { return a != b }))
	case instr.OpGreater:
		return elementwise2(w, reads, boolOp(func(a, b float64) bool { return a > b }))
	case instr.OpLess:
		return elementwise2(w, reads, boolOp(func(a, b float64) bool { return a < b }))
	case instr.OpAnd:
		return elementwise2(w, reads, boolOp(func(a, b float64) bool { return a != 0 && b != 0 }))
	case instr.OpOr:
		return elementwise2(w, reads, boolOp(func(a, b float64) bool { return a != 0 || b != 0 }))
	default:
		return errorsx.New(errorsx.UnsupportedOpcode, "naive.compute", "opcode %v", ins.Opcode)
	}
}

// nextRandom draws the next OpRandom sample. e.rng is not safe for
// concurrent use on its own (unlike the math/rand package-level
// functions), and a single Executor can be driven by several dispatch
// workers at once, so the draw is serialized behind e.mu.
func (e *Executor) nextRandom() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64()
}

func boolOp(f func(a, b float64) bool) func(a, b float64) float64 {
	return func(a, b float64) float64 {
		if f(a, b) {
			return 1
		}
		return 0
	}
}

func elementwise0(w view.View, f func() float64) error {
	return view.ForEachIndex(w.ShapeSlice(), func(idx []int64) error {
		return writeElement(w, idx, f())
	})
}

func elementwise1(w view.View, reads []instr.Operand, f func(a float64) float64) error {
	if len(reads) < 1 {
		return errorsx.New(errorsx.ShapeMismatch, "naive.elementwise1", "expected 1 read operand, got %d", len(reads))
	}
	a := reads[0]
	return view.ForEachIndex(w.ShapeSlice(), func(idx []int64) error {
		av, err := readOperand(a, idx)
		if err != nil {
			return err
		}
		return writeElement(w, idx, f(av))
	})
}

func elementwise2(w view.View, reads []instr.Operand, f func(a, b float64) float64) error {
	if len(reads) < 2 {
		return errorsx.New(errorsx.ShapeMismatch, "naive.elementwise2", "expected 2 read operands, got %d", len(reads))
	}
	a, b := reads[0], reads[1]
	return view.ForEachIndex(w.ShapeSlice(), func(idx []int64) error {
		av, err := readOperand(a, idx)
		if err != nil {
			return err
		}
		bv, err := readOperand(b, idx)
		if err != nil {
			return err
		}
		return writeElement(w, idx, f(av, bv))
	})
}

// reduce collapses the single read operand to the write operand's scalar
// View. Per-axis reduction is a façade-level concern this core operand
// model doesn't carry an axis slot for; reducing to a single scalar is the
// sound general case every axis-reduction can be built from.
func reduce(op instr.Opcode, w view.View, reads []instr.Operand) error {
	if len(reads) < 1 {
		return errorsx.New(errorsx.ShapeMismatch, "naive.reduce", "expected 1 read operand, got %d", len(reads))
	}
	a := reads[0]

	var acc float64
	first := true
	err := view.ForEachIndex(a.View.ShapeSlice(), func(idx []int64) error {
		v, err := readOperand(a, idx)
		if err != nil {
			return err
		}
		if first {
			acc = v
			first = false
			return nil
		}
		switch op {
		case instr.OpReduceAdd:
			acc += v
		case instr.OpReduceMul:
			acc *= v
		case instr.OpReduceMax:
			if v > acc {
				acc = v
			}
		case instr.OpReduceMin:
			if v < acc {
				acc = v
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return writeElement(w, nil, acc)
}

func readOperand(op instr.Operand, idx []int64) (float64, error) {
	if op.IsConst {
		if op.Constant.IsInt {
			return float64(int64(op.Constant.Bits)), nil
		}
		return op.Constant.Float, nil
	}
	return readElement(op.View, idx)
}

func readElement(v view.View, idx []int64) (float64, error) {
	b := v.Base
	if b == nil {
		return 0, errorsx.New(errorsx.ShapeMismatch, "naive.readElement", "operand has no Base")
	}
	off := v.Offset(idx)
	width := int64(b.Tag().Width())
	start := off * width
	if start+width > int64(len(b.Data)) {
		return 0, errorsx.New(errorsx.ShapeMismatch, "naive.readElement", "offset %d out of range for Base of %d bytes", start, len(b.Data))
	}
	return decode(b.Tag(), b.Data[start:start+width]), nil
}

func writeElement(v view.View, idx []int64, val float64) error {
	b := v.Base
	if b == nil {
		return errorsx.New(errorsx.ShapeMismatch, "naive.writeElement", "operand has no Base")
	}
	off := v.Offset(idx)
	width := int64(b.Tag().Width())
	start := off * width
	if start+width > int64(len(b.Data)) {
		return errorsx.New(errorsx.ShapeMismatch, "naive.writeElement", "offset %d out of range for Base of %d bytes", start, len(b.Data))
	}
	encode(b.Tag(), b.Data[start:start+width], val)
	return nil
}

func decode(tag typetag.Tag, buf []byte) float64 {
	switch tag {
	case typetag.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	case typetag.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf))
	case typetag.Bool:
		if buf[0] != 0 {
			return 1
		}
		return 0
	case typetag.Int8:
		return float64(int8(buf[0]))
	case typetag.Uint8:
		return float64(buf[0])
	case typetag.Int16:
		return float64(int16(binary.LittleEndian.Uint16(buf)))
	case typetag.Uint16:
		return float64(binary.LittleEndian.Uint16(buf))
	case typetag.Int32:
		return float64(int32(binary.LittleEndian.Uint32(buf)))
	case typetag.Uint32:
		return float64(binary.LittleEndian.Uint32(buf))
	case typetag.Int64:
		return float64(int64(binary.LittleEndian.Uint64(buf)))
	case typetag.Uint64:
		return float64(binary.LittleEndian.Uint64(buf))
	default:
		return 0
	}
}

func encode(tag typetag.Tag, buf []byte, v float64) {
	switch tag {
	case typetag.Float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case typetag.Float64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	case typetag.Bool:
		if v != 0 {
			buf[0] = 1
		} else {
			buf[0] = 0
		}
	case typetag.Int8, typetag.Uint8:
		buf[0] = byte(int64(v))
	case typetag.Int16, typetag.Uint16:
		binary.LittleEndian.PutUint16(buf, uint16(int64(v)))
	case typetag.Int32, typetag.Uint32:
		binary.LittleEndian.PutUint32(buf, uint32(int64(v)))
	case typetag.Int64, typetag.Uint64:
		binary.LittleEndian.PutUint64(buf, uint64(int64(v)))
	}
}
