// Package instr defines the Instruction the façade records and the flow
// layer consumes.
package instr

import (
	"fmt"

	"bohrium/internal/view"
)

// Opcode is the closed enumeration of instruction kinds, grounded on
// internal/bytecode's OpCode style (a small byte enum with iota groups),
// extended with the array-lifecycle opcodes a dataflow core needs.
type Opcode byte

const (
	// Element-wise arithmetic/logical.
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpEqual
	OpNotEqual
	OpGreater
	OpLess
	OpAnd
	OpOr
	OpNot

	// Reductions (the write operand's rank is lower than the read operand's).
	OpReduceAdd
	OpReduceMul
	OpReduceMax
	OpReduceMin

	// Array-lifecycle and I/O opcodes.
	OpIdentity // copy
	OpRandom
	OpFree
	OpDiscard
	OpSync
	OpNone

	// OpUserExtension invokes a user-defined extension function; a façade
	// registers names via the Executor Interface's RegisterUserFunction
	// and records OpUserExtension with the function's name in the
	// instruction's ExtName field.
	OpUserExtension
)

var opcodeNames = map[Opcode]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpMod: "mod", OpNeg: "neg",
	OpEqual: "equal", OpNotEqual: "not_equal", OpGreater: "greater", OpLess: "less",
	OpAnd: "and", OpOr: "or", OpNot: "not",
	OpReduceAdd: "reduce_add", OpReduceMul: "reduce_mul", OpReduceMax: "reduce_max", OpReduceMin: "reduce_min",
	OpIdentity: "identity", OpRandom: "random", OpFree: "free", OpDiscard: "discard",
	OpSync: "sync", OpNone: "none", OpUserExtension: "user_extension",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Opcode(%d)", byte(o))
}

// Reducing reports whether the opcode is a reduction (changes rank).
func (o Opcode) Reducing() bool {
	switch o {
	case OpReduceAdd, OpReduceMul, OpReduceMax, OpReduceMin:
		return true
	default:
		return false
	}
}

// Constant is an immediate operand value, inlined into its slot rather
// than referencing a View.
type Constant struct {
	Tag byte // a typetag.Tag value, stored as a plain byte
	Bits uint64
	Float float64
	IsInt bool
}

// Operand is either a View or a Constant. Exactly one of View/IsConst is
// meaningful; operand slot 0 (the write operand) is never a Constant.
type Operand struct {
	View view.View
	Constant Constant
	IsConst bool
}

func FromView(v view.View) Operand { return Operand{View: v} }
func FromConstant(c Constant) Operand { return Operand{Constant: c, IsConst: true} }

// Instruction is an opcode plus an ordered tuple of operand slots. Operand
// 0 is the write (output) operand; operands 1..k are read (input)
// operands.
type Instruction struct {
	Opcode Opcode
	Operands []Operand // Operands[0] is the write operand

	// ExtName carries the user-defined extension function name when
	// Opcode == OpUserExtension.
	ExtName string
}

// Write returns the instruction's write operand.
func (i Instruction) Write() Operand { return i.Operands[0] }

// Reads returns the instruction's read operands (operands 1..k).
func (i Instruction) Reads() []Operand { return i.Operands[1:] }

// Validate enforces the one structural invariant the design states outright:
// operand 0 is never a constant.
func (i Instruction) Validate() error {
	if len(i.Operands) == 0 {
		return fmt.Errorf("instr: instruction has no operands")
	}
	if i.Operands[0].IsConst {
		return fmt.Errorf("instr: operand 0 (write) must not be a constant")
	}
	return nil
}
