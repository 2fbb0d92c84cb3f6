package asm

import "fmt"

// CondOp is a comparison operator used by conditional jumps and assumptions.
type CondOp int

const (
	EQ CondOp = iota
	NE
	SET
	NSET
	LT
	LE
	GT
	GE
	SLT
	SLE
	SGT
	SGE
)

var condOpSymbols = map[CondOp]string{
	EQ:   "==",
	NE:   "!=",
	SET:  "&==",
	NSET: "&!=",
	LT:   "<",
	LE:   "<=",
	GT:   ">",
	GE:   ">=",
	SLT:  "s<",
	SLE:  "s<=",
	SGT:  "s>",
	SGE:  "s>=",
}

func (op CondOp) String() string { return condOpSymbols[op] }

// IsSigned reports whether op compares its operands as signed integers.
func (op CondOp) IsSigned() bool {
	switch op {
	case SLT, SLE, SGT, SGE:
		return true
	}
	return false
}

// Negate returns the complement of op.
func (op CondOp) Negate() CondOp {
	switch op {
	case EQ:
		return NE
	case NE:
		return EQ
	case GE:
		return LT
	case LT:
		return GE
	case SGE:
		return SLT
	case SLT:
		return SGE
	case LE:
		return GT
	case GT:
		return LE
	case SLE:
		return SGT
	case SGT:
		return SLE
	case SET:
		return NSET
	case NSET:
		return SET
	}
	panic(fmt.Sprintf("asm: unknown condition operator %d", int(op)))
}

// Condition is `Left Op Right`.
type Condition struct {
	Op    CondOp
	Left  Reg
	Right Value
	Is64  bool
}

// Negate returns the logical complement of c, keeping operands and width.
func (c Condition) Negate() Condition {
	c.Op = c.Op.Negate()
	return c
}

func (c Condition) String() string {
	right := c.Right.String()
	if r, ok := c.Right.(Reg); ok {
		right = regName(r, c.Is64)
	}
	return fmt.Sprintf("%s %s %s", regName(c.Left, c.Is64), c.Op, right)
}
