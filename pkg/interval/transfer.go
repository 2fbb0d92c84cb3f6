package interval

import (
	"github.com/l3aro/bpf-verify/pkg/asm"
)

// Transfer returns the state after executing ins.
func (s State) Transfer(ins asm.Instruction) State {
	if s.bottom {
		return s
	}
	switch v := ins.(type) {
	case asm.Bin:
		return s.bin(v)
	case asm.Assume:
		return s.Assume(v.Cond)
	case asm.Call:
		for r := asm.Reg(0); r <= 5; r++ {
			s = s.Set(s.reg.Reg(r), Top())
		}
		return s
	case asm.CallLocal:
		for _, r := range calleeSaved {
			s = s.Set(s.reg.FrameReg(v.FramePrefix, r), s.Get(s.reg.Reg(r)))
		}
		return s
	case asm.Exit:
		if v.FramePrefix == "" {
			return s
		}
		for _, r := range calleeSaved {
			saved := s.reg.FrameReg(v.FramePrefix, r)
			s = s.Set(s.reg.Reg(r), s.Get(saved)).Set(saved, Top())
		}
		return s
	case asm.IncrementLoopCounter:
		counter := s.reg.LoopCounter(v.Head)
		return s.Set(counter, s.Get(counter).Add(Const(1)))
	case asm.Undefined:
		for r := asm.Reg(0); r < asm.NumRegs; r++ {
			s = s.Set(s.reg.Reg(r), Top())
		}
		return s
	}
	return s
}

func (s State) value(v asm.Value, is64 bool) Interval {
	var i Interval
	switch v := v.(type) {
	case asm.Imm:
		i = Const(int64(v))
	case asm.Reg:
		i = s.Get(s.reg.Reg(v))
	default:
		return Top()
	}
	if !is64 {
		i = i.Trunc32()
	}
	return i
}

func (s State) bin(b asm.Bin) State {
	dst := s.value(b.Dst, b.Is64)
	src := s.value(b.Src, b.Is64)

	var res Interval
	switch b.Op {
	case asm.Mov:
		res = src
	case asm.Add:
		res = dst.Add(src)
	case asm.Sub:
		res = dst.Sub(src)
	case asm.Mul:
		res = dst.Mul(src)
	case asm.And:
		res = dst.And(src)
	case asm.Or:
		res = dst.Or(src)
	case asm.Xor:
		res = dst.Xor(src)
	case asm.Lsh:
		res = dst.Lsh(src)
	case asm.Rsh:
		res = dst.Rsh(src)
	default:
		res = Top()
	}
	if !b.Is64 {
		res = res.Trunc32()
	}
	return s.Set(s.reg.Reg(b.Dst), res)
}

// Assume restricts s to the states where c holds. Unsigned and 32-bit
// comparisons refine only when every operand is in the range where they
// agree with signed 64-bit comparison.
func (s State) Assume(c asm.Condition) State {
	if s.bottom {
		return s
	}
	left := s.operand(c.Left, c.Is64)
	right := s.operand(c.Right, c.Is64)
	if left.IsBottom() || right.IsBottom() {
		return s.Bottom()
	}
	if !refinable(c, left, right) {
		return s
	}

	if r, ok := c.Right.(asm.Reg); ok && r == c.Left {
		if holdsReflexively(c.Op) {
			return s
		}
		if c.Op == asm.SET || c.Op == asm.NSET {
			return s
		}
		return s.Bottom()
	}

	l, r := refine(c.Op, left, right)
	if l.IsBottom() || r.IsBottom() {
		return s.Bottom()
	}
	s = s.Set(s.reg.Reg(c.Left), l)
	if reg, ok := c.Right.(asm.Reg); ok {
		s = s.Set(s.reg.Reg(reg), r)
	}
	return s
}

// operand reads a comparison operand. Registers keep their full 64-bit
// range so refinement never narrows bits the comparison did not look at.
func (s State) operand(v asm.Value, is64 bool) Interval {
	if imm, ok := v.(asm.Imm); ok && !is64 {
		return Const(int64(imm)).Trunc32()
	}
	return s.value(v, true)
}

func refinable(c asm.Condition, left, right Interval) bool {
	switch {
	case !c.Is64 && c.Op.IsSigned():
		return left.Within(0, Max32>>1) && right.Within(0, Max32>>1)
	case !c.Is64:
		return left.Within(0, Max32) && right.Within(0, Max32)
	}
	switch c.Op {
	case asm.EQ, asm.NE, asm.SET, asm.NSET:
		return true
	}
	return c.Op.IsSigned() || (left.Lo >= 0 && right.Lo >= 0)
}

func holdsReflexively(op asm.CondOp) bool {
	switch op {
	case asm.EQ, asm.LE, asm.GE, asm.SLE, asm.SGE:
		return true
	}
	return false
}

// refine narrows both operands of `left op right`.
func refine(op asm.CondOp, left, right Interval) (Interval, Interval) {
	switch op {
	case asm.EQ:
		m := left.Meet(right)
		return m, m
	case asm.NE:
		return exclude(left, right), exclude(right, left)
	case asm.LT, asm.SLT:
		return left.Meet(New(NegInf, addHi(right.Hi, -1))), right.Meet(New(addLo(left.Lo, 1), PosInf))
	case asm.LE, asm.SLE:
		return left.Meet(New(NegInf, right.Hi)), right.Meet(New(left.Lo, PosInf))
	case asm.GT, asm.SGT:
		return left.Meet(New(addLo(right.Lo, 1), PosInf)), right.Meet(New(NegInf, addHi(left.Hi, -1)))
	case asm.GE, asm.SGE:
		return left.Meet(New(right.Lo, PosInf)), right.Meet(New(NegInf, left.Hi))
	case asm.SET, asm.NSET:
		a, aok := left.Singleton()
		b, bok := right.Singleton()
		switch {
		case aok && bok && (a&b != 0) != (op == asm.SET):
			return Bottom(), Bottom()
		case op == asm.SET && (left.Equal(Const(0)) || right.Equal(Const(0))):
			return Bottom(), Bottom()
		}
	}
	return left, right
}

// exclude removes c from the bounds of i when other is the singleton c.
func exclude(i, other Interval) Interval {
	c, ok := other.Singleton()
	if !ok {
		return i
	}
	if i.Lo == c {
		i.Lo = addLo(i.Lo, 1)
	}
	if i.Hi == c {
		i.Hi = addHi(i.Hi, -1)
	}
	return New(i.Lo, i.Hi)
}
