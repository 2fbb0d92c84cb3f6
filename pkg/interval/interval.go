// Package interval implements the interval lattice over 64-bit integers and a
// non-relational register domain built on it.
//
// Bounds are int64 values where math.MinInt64 and math.MaxInt64 stand for
// minus and plus infinity. Arithmetic is over unbounded integers: results
// that do not fit saturate to the matching infinity.
package interval

import (
	"math"
	"strconv"
)

const (
	NegInf int64 = math.MinInt64
	PosInf int64 = math.MaxInt64
)

// Max32 is the largest unsigned 32-bit value.
const Max32 int64 = math.MaxUint32

// Thresholds are the constants unstable bounds snap to when widening towards
// constants.
var Thresholds = []int64{0, math.MaxInt32, math.MaxUint32, PosInf}

// Interval is a closed range [Lo, Hi]. Any Lo > Hi is bottom.
type Interval struct {
	Lo, Hi int64
}

// Top returns [-oo, +oo].
func Top() Interval { return Interval{NegInf, PosInf} }

// Bottom returns the empty interval.
func Bottom() Interval { return Interval{PosInf, NegInf} }

// Const returns [c, c].
func Const(c int64) Interval { return Interval{c, c} }

// New returns [lo, hi], or bottom when lo > hi.
func New(lo, hi int64) Interval {
	if lo > hi {
		return Bottom()
	}
	return Interval{lo, hi}
}

func (i Interval) IsBottom() bool { return i.Lo > i.Hi }
func (i Interval) IsTop() bool    { return i.Lo == NegInf && i.Hi == PosInf }

// Singleton returns the only value of i.
func (i Interval) Singleton() (int64, bool) {
	if i.Lo != i.Hi || i.Lo == NegInf || i.Lo == PosInf {
		return 0, false
	}
	return i.Lo, true
}

// Contains reports whether c is in i.
func (i Interval) Contains(c int64) bool { return i.Lo <= c && c <= i.Hi }

// Within reports whether i is non-empty and inside [lo, hi].
func (i Interval) Within(lo, hi int64) bool {
	return !i.IsBottom() && i.Lo >= lo && i.Hi <= hi
}

func (i Interval) Leq(o Interval) bool {
	if i.IsBottom() {
		return true
	}
	if o.IsBottom() {
		return false
	}
	return i.Lo >= o.Lo && i.Hi <= o.Hi
}

func (i Interval) Equal(o Interval) bool {
	if i.IsBottom() || o.IsBottom() {
		return i.IsBottom() == o.IsBottom()
	}
	return i == o
}

func (i Interval) Join(o Interval) Interval {
	switch {
	case i.IsBottom():
		return o
	case o.IsBottom():
		return i
	}
	return Interval{min(i.Lo, o.Lo), max(i.Hi, o.Hi)}
}

func (i Interval) Meet(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	return New(max(i.Lo, o.Lo), min(i.Hi, o.Hi))
}

// Widen keeps the stable bounds of i and pushes the others to infinity, or
// to the closest threshold when toConstants is set.
func (i Interval) Widen(o Interval, toConstants bool) Interval {
	switch {
	case i.IsBottom():
		return o
	case o.IsBottom():
		return i
	}
	res := i
	if o.Lo < i.Lo {
		res.Lo = NegInf
		if toConstants {
			res.Lo = thresholdBelow(o.Lo)
		}
	}
	if o.Hi > i.Hi {
		res.Hi = PosInf
		if toConstants {
			res.Hi = thresholdAbove(o.Hi)
		}
	}
	return res
}

// Narrow refines the infinite bounds of i with those of o.
func (i Interval) Narrow(o Interval) Interval {
	if i.IsBottom() || o.IsBottom() {
		return Bottom()
	}
	res := i
	if i.Lo == NegInf {
		res.Lo = o.Lo
	}
	if i.Hi == PosInf {
		res.Hi = o.Hi
	}
	return New(res.Lo, res.Hi)
}

func thresholdBelow(c int64) int64 {
	for k := len(Thresholds) - 1; k >= 0; k-- {
		if Thresholds[k] <= c {
			return Thresholds[k]
		}
	}
	return NegInf
}

func thresholdAbove(c int64) int64 {
	for _, t := range Thresholds {
		if t >= c {
			return t
		}
	}
	return PosInf
}

func (i Interval) String() string {
	if i.IsBottom() {
		return "_|_"
	}
	return "[" + boundString(i.Lo) + "," + boundString(i.Hi) + "]"
}

func boundString(b int64) string {
	switch b {
	case NegInf:
		return "-oo"
	case PosInf:
		return "+oo"
	}
	return strconv.FormatInt(b, 10)
}
