// Package variable interns the names of abstract-domain variables.
//
// A Registry is owned by one analysis session and passed by pointer to every
// domain value created during that session. It is not safe for concurrent use;
// parallel analyses each use their own Registry.
package variable

import (
	"sort"
	"strconv"
	"strings"

	"github.com/l3aro/bpf-verify/pkg/asm"
)

// Var is the index of an interned name.
type Var int

const loopCounterPrefix = "pc["

// Registry maps variable names to dense indices and back.
type Registry struct {
	names []string
	index map[string]Var
}

// NewRegistry returns a registry pre-seeded with the default names.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

func defaultNames() []string {
	names := make([]string, 0, asm.NumRegs+2)
	for i := 0; i < asm.NumRegs; i++ {
		names = append(names, "r"+strconv.Itoa(i))
	}
	return append(names, "packet_size", "meta_offset")
}

// Reset drops every name interned since construction.
func (r *Registry) Reset() {
	r.names = defaultNames()
	r.index = make(map[string]Var, len(r.names))
	for i, n := range r.names {
		r.index[n] = Var(i)
	}
}

// Intern returns the index for name, allocating one if needed.
func (r *Registry) Intern(name string) Var {
	if v, ok := r.index[name]; ok {
		return v
	}
	v := Var(len(r.names))
	r.names = append(r.names, name)
	r.index[name] = v
	return v
}

// Lookup returns the index for name without allocating.
func (r *Registry) Lookup(name string) (Var, bool) {
	v, ok := r.index[name]
	return v, ok
}

// Name returns the name of v.
func (r *Registry) Name(v Var) string {
	if int(v) < 0 || int(v) >= len(r.names) {
		return "v" + strconv.Itoa(int(v))
	}
	return r.names[v]
}

// Len returns the number of interned names.
func (r *Registry) Len() int { return len(r.names) }

// Reg returns the variable holding register i.
func (r *Registry) Reg(i asm.Reg) Var { return Var(i) }

// FrameReg returns the variable saving register i for the frame prefix.
func (r *Registry) FrameReg(prefix string, i asm.Reg) Var {
	return r.Intern(prefix + asm.FrameDelimiter + i.String())
}

// PacketSize returns the packet size variable.
func (r *Registry) PacketSize() Var { return r.Intern("packet_size") }

// LoopCounter returns the counter variable of a loop head.
func (r *Registry) LoopCounter(head asm.Label) Var {
	return r.Intern(loopCounterPrefix + head.String() + "]")
}

// LoopCounters returns every loop counter interned so far, sorted by name.
func (r *Registry) LoopCounters() []Var {
	var out []Var
	for i, n := range r.names {
		if strings.HasPrefix(n, loopCounterPrefix) {
			out = append(out, Var(i))
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.names[out[i]] < r.names[out[j]] })
	return out
}
