package interval

import (
	"sort"
	"strings"

	"github.com/l3aro/bpf-verify/pkg/asm"
	"github.com/l3aro/bpf-verify/pkg/variable"
)

// calleeSaved are the registers a local call preserves for its caller.
var calleeSaved = []asm.Reg{6, 7, 8, 9}

// State maps variables to intervals. Variables without an entry are top.
// States are immutable; every operation returns a fresh value.
type State struct {
	reg    *variable.Registry
	bottom bool
	vals   map[variable.Var]Interval
}

// NewState returns the top state over reg.
func NewState(reg *variable.Registry) State {
	return State{reg: reg}
}

// Registry returns the registry the state's variables belong to.
func (s State) Registry() *variable.Registry { return s.reg }

func (s State) Bottom() State { return State{reg: s.reg, bottom: true} }
func (s State) Top() State    { return State{reg: s.reg} }

func (s State) IsBottom() bool { return s.bottom }
func (s State) IsTop() bool    { return !s.bottom && len(s.vals) == 0 }

// Get returns the interval of v.
func (s State) Get(v variable.Var) Interval {
	if s.bottom {
		return Bottom()
	}
	if i, ok := s.vals[v]; ok {
		return i
	}
	return Top()
}

// Set returns s with v bound to i. Binding bottom yields the bottom state.
func (s State) Set(v variable.Var, i Interval) State {
	if s.bottom {
		return s
	}
	if i.IsBottom() {
		return s.Bottom()
	}
	vals := s.clone()
	if i.IsTop() {
		delete(vals, v)
	} else {
		vals[v] = i
	}
	return State{reg: s.reg, vals: vals}
}

// Interval returns the interval of the named variable, top if unknown.
func (s State) Interval(name string) Interval {
	if s.bottom {
		return Bottom()
	}
	v, ok := s.reg.Lookup(name)
	if !ok {
		return Top()
	}
	return s.Get(v)
}

func (s State) clone() map[variable.Var]Interval {
	vals := make(map[variable.Var]Interval, len(s.vals)+1)
	for k, v := range s.vals {
		vals[k] = v
	}
	return vals
}

func (s State) Leq(o State) bool {
	if s.bottom {
		return true
	}
	if o.bottom {
		return false
	}
	for v, oi := range o.vals {
		if !s.Get(v).Leq(oi) {
			return false
		}
	}
	return true
}

func (s State) Equal(o State) bool { return s.Leq(o) && o.Leq(s) }

// pointwise combines the variables bound in either state. Unbound variables
// are passed as top, and top results are dropped.
func (s State) pointwise(o State, f func(a, b Interval) Interval) State {
	vals := make(map[variable.Var]Interval, max(len(s.vals), len(o.vals)))
	apply := func(v variable.Var) bool {
		if _, done := vals[v]; done {
			return true
		}
		r := f(s.Get(v), o.Get(v))
		if r.IsBottom() {
			return false
		}
		if !r.IsTop() {
			vals[v] = r
		}
		return true
	}
	for v := range s.vals {
		if !apply(v) {
			return s.Bottom()
		}
	}
	for v := range o.vals {
		if !apply(v) {
			return s.Bottom()
		}
	}
	return State{reg: s.reg, vals: vals}
}

func (s State) Join(o State) State {
	switch {
	case s.bottom:
		return o
	case o.bottom:
		return s
	}
	return s.pointwise(o, Interval.Join)
}

func (s State) Meet(o State) State {
	if s.bottom || o.bottom {
		return s.Bottom()
	}
	return s.pointwise(o, Interval.Meet)
}

func (s State) Widen(o State, toConstants bool) State {
	switch {
	case s.bottom:
		return o
	case o.bottom:
		return s
	}
	return s.pointwise(o, func(a, b Interval) Interval { return a.Widen(b, toConstants) })
}

func (s State) Narrow(o State) State {
	if s.bottom || o.bottom {
		return s.Bottom()
	}
	return s.pointwise(o, Interval.Narrow)
}

// InitializeLoopCounter binds the counter of head to zero.
func (s State) InitializeLoopCounter(head asm.Label) State {
	return s.Set(s.reg.LoopCounter(head), Const(0))
}

// LoopCountUpperBound returns the largest possible value of any loop
// counter. ok is false when some counter is unbounded.
func (s State) LoopCountUpperBound() (int64, bool) {
	if s.bottom {
		return 0, true
	}
	var bound int64
	for _, v := range s.reg.LoopCounters() {
		i := s.Get(v)
		if i.Hi == PosInf {
			return PosInf, false
		}
		bound = max(bound, i.Hi)
	}
	return bound, true
}

// Bindings returns "name=interval" for every bound variable, sorted by name.
// The bottom state has none.
func (s State) Bindings() []string {
	out := make([]string, 0, len(s.vals))
	if s.bottom {
		return out
	}
	for v, i := range s.vals {
		out = append(out, s.reg.Name(v)+"="+i.String())
	}
	sort.Strings(out)
	return out
}

func (s State) String() string {
	if s.bottom {
		return "_|_"
	}
	return "{" + strings.Join(s.Bindings(), ", ") + "}"
}
