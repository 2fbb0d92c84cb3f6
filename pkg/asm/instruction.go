package asm

import (
	"fmt"
	"strconv"
)

// Reg is a register number, r0..r10.
type Reg uint8

// NumRegs is the number of architectural registers.
const NumRegs = 11

func (r Reg) String() string { return "r" + strconv.Itoa(int(r)) }

// Value is a right-hand operand: either a Reg or an Imm.
type Value interface {
	isValue()
	String() string
}

// Imm is an immediate operand.
type Imm int64

func (Reg) isValue() {}
func (Imm) isValue() {}

func (i Imm) String() string { return strconv.FormatInt(int64(i), 10) }

// Instruction is one of the variants below.
type Instruction interface {
	isInstruction()
	String() string
}

// BinOp is a binary ALU operation.
type BinOp int

const (
	Mov BinOp = iota
	Add
	Sub
	Mul
	And
	Or
	Xor
	Lsh
	Rsh
)

var binOpSymbols = map[BinOp]string{
	Mov: "=",
	Add: "+=",
	Sub: "-=",
	Mul: "*=",
	And: "&=",
	Or:  "|=",
	Xor: "^=",
	Lsh: "<<=",
	Rsh: ">>=",
}

func (op BinOp) String() string { return binOpSymbols[op] }

// Bin is `dst op= src`.
type Bin struct {
	Op   BinOp
	Dst  Reg
	Src  Value
	Is64 bool
}

// Jmp is a jump; it is conditional when Cond is non-nil.
type Jmp struct {
	Cond   *Condition
	Target Label
}

// Exit returns from the program, or from the macro identified by FramePrefix.
type Exit struct {
	FramePrefix string
}

// Call invokes an external helper function.
type Call struct {
	Func int
}

// CallLocal invokes a local function, inlined as a macro by the CFG builder.
// FramePrefix is set by the builder to the frame the callee runs in.
type CallLocal struct {
	Target      Label
	FramePrefix string
}

// Assume restricts the state to the paths where Cond holds.
type Assume struct {
	Cond Condition
}

// IncrementLoopCounter bumps the counter associated with a loop head.
type IncrementLoopCounter struct {
	Head Label
}

// Undefined is an instruction the decoder could not make sense of.
type Undefined struct {
	Opcode int
}

func (Bin) isInstruction()                  {}
func (Jmp) isInstruction()                  {}
func (Exit) isInstruction()                 {}
func (Call) isInstruction()                 {}
func (CallLocal) isInstruction()            {}
func (Assume) isInstruction()               {}
func (IncrementLoopCounter) isInstruction() {}
func (Undefined) isInstruction()            {}

func regName(r Reg, is64 bool) string {
	if is64 {
		return r.String()
	}
	return "w" + strconv.Itoa(int(r))
}

func (b Bin) String() string {
	src := b.Src.String()
	if r, ok := b.Src.(Reg); ok {
		src = regName(r, b.Is64)
	}
	return fmt.Sprintf("%s %s %s", regName(b.Dst, b.Is64), b.Op, src)
}

func (j Jmp) String() string {
	if j.Cond == nil {
		return "goto " + j.Target.String()
	}
	return fmt.Sprintf("if %s goto %s", j.Cond, j.Target)
}

func (Exit) String() string                   { return "exit" }
func (c Call) String() string                 { return "call " + strconv.Itoa(c.Func) }
func (c CallLocal) String() string            { return "call <" + c.Target.String() + ">" }
func (a Assume) String() string               { return "assume " + a.Cond.String() }
func (i IncrementLoopCounter) String() string { return "pc[" + i.Head.String() + "]++" }
func (u Undefined) String() string            { return fmt.Sprintf("undefined 0x%02x", u.Opcode) }

// LabeledInstruction pairs an instruction with its label.
type LabeledInstruction struct {
	Label       Label
	Instruction Instruction
}

// HasFallthrough reports whether control may continue to the next instruction.
func HasFallthrough(ins Instruction) bool {
	switch v := ins.(type) {
	case Exit:
		return false
	case Jmp:
		return v.Cond != nil
	}
	return true
}

// JumpTarget returns the target of a jump instruction.
func JumpTarget(ins Instruction) (Label, bool) {
	if j, ok := ins.(Jmp); ok {
		return j.Target, true
	}
	return Label{}, false
}
