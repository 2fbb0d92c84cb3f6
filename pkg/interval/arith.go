package interval

import "math/bits"

func isInf(b int64) bool { return b == NegInf || b == PosInf }

// satAdd adds two bounds, saturating to the infinity in the overflow direction.
func satAdd(a, b int64) int64 {
	if isInf(a) {
		return a
	}
	if isInf(b) {
		return b
	}
	s := a + b
	switch {
	case a > 0 && b > 0 && s < 0, s == PosInf:
		return PosInf
	case a < 0 && b < 0 && s >= 0, s == NegInf:
		return NegInf
	}
	return s
}

func addLo(a, b int64) int64 {
	if a == NegInf || b == NegInf {
		return NegInf
	}
	return satAdd(a, b)
}

func addHi(a, b int64) int64 {
	if a == PosInf || b == PosInf {
		return PosInf
	}
	return satAdd(a, b)
}

func neg(b int64) int64 {
	switch b {
	case NegInf:
		return PosInf
	case PosInf:
		return NegInf
	}
	return -b
}

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	negative := (a < 0) != (b < 0)
	inf := PosInf
	if negative {
		inf = NegInf
	}
	if isInf(a) || isInf(b) {
		return inf
	}
	hi, lo := bits.Mul64(uint64(abs(a)), uint64(abs(b)))
	if hi != 0 || lo >= uint64(PosInf) {
		return inf
	}
	if negative {
		return -int64(lo)
	}
	return int64(lo)
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

func (i Interval) Add(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	return Interval{addLo(i.Lo, o.Lo), addHi(i.Hi, o.Hi)}
}

func (i Interval) Neg() Interval {
	if i.IsBottom() {
		return i
	}
	return Interval{neg(i.Hi), neg(i.Lo)}
}

func (i Interval) Sub(o Interval) Interval { return i.Add(o.Neg()) }

func (i Interval) Mul(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	products := [4]int64{
		satMul(i.Lo, o.Lo), satMul(i.Lo, o.Hi),
		satMul(i.Hi, o.Lo), satMul(i.Hi, o.Hi),
	}
	res := Interval{products[0], products[0]}
	for _, p := range products[1:] {
		res.Lo = min(res.Lo, p)
		res.Hi = max(res.Hi, p)
	}
	return res
}

// bitwise evaluates exact singletons, bounds non-negative operands by the
// smallest all-ones mask covering both, and gives up otherwise.
func (i Interval) bitwise(o Interval, op func(a, b int64) int64, bound func(i, o Interval) Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	a, aok := i.Singleton()
	b, bok := o.Singleton()
	if aok && bok {
		return Const(op(a, b))
	}
	if i.Lo >= 0 && o.Lo >= 0 {
		return bound(i, o)
	}
	return Top()
}

func mask(hi int64) int64 {
	if hi == PosInf {
		return PosInf
	}
	return int64(1)<<bits.Len64(uint64(hi)) - 1
}

func (i Interval) And(o Interval) Interval {
	return i.bitwise(o, func(a, b int64) int64 { return a & b }, func(i, o Interval) Interval {
		return Interval{0, min(i.Hi, o.Hi)}
	})
}

func (i Interval) Or(o Interval) Interval {
	return i.bitwise(o, func(a, b int64) int64 { return a | b }, func(i, o Interval) Interval {
		return Interval{max(i.Lo, o.Lo), mask(max(i.Hi, o.Hi))}
	})
}

func (i Interval) Xor(o Interval) Interval {
	return i.bitwise(o, func(a, b int64) int64 { return a ^ b }, func(i, o Interval) Interval {
		return Interval{0, mask(max(i.Hi, o.Hi))}
	})
}

// Lsh shifts left by a constant amount; other shifts go to top.
func (i Interval) Lsh(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	k, ok := o.Singleton()
	if !ok || k < 0 || k > 63 {
		return Top()
	}
	factor := Interval{PosInf, PosInf}
	if k < 63 {
		factor = Const(int64(1) << uint(k))
	}
	return i.Mul(factor)
}

// Rsh is a logical right shift by a constant amount.
func (i Interval) Rsh(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	k, ok := o.Singleton()
	if !ok || k < 0 || k > 63 {
		return Top()
	}
	if i.Lo < 0 {
		if k == 0 {
			return i
		}
		return Interval{0, int64(^uint64(0) >> uint(k))}
	}
	hi := i.Hi
	if hi != PosInf {
		hi >>= uint(k)
	}
	return Interval{i.Lo >> uint(k), hi}
}

// Trunc32 models the zero-extended low 32 bits of the value.
func (i Interval) Trunc32() Interval {
	if i.IsBottom() {
		return i
	}
	if c, ok := i.Singleton(); ok {
		return Const(int64(uint32(c)))
	}
	if i.Within(0, Max32) {
		return i
	}
	return Interval{0, Max32}
}
