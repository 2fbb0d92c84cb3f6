package fixpoint

import (
	"github.com/l3aro/bpf-verify/internal/log"
	"github.com/l3aro/bpf-verify/pkg/asm"
	"github.com/l3aro/bpf-verify/pkg/cfg"
	"github.com/l3aro/bpf-verify/pkg/wto"
)

const (
	// WideningDelay is the number of plain joins at a cycle head before
	// widening kicks in.
	WideningDelay = 2
	// DefaultDescendingLimit bounds the narrowing iterations of one cycle.
	DefaultDescendingLimit = 2000000
)

// Options configures an analysis run.
type Options struct {
	// CheckTermination counts the visits of every cycle head.
	CheckTermination bool
	// DescendingLimit caps the narrowing iterations per cycle; zero means
	// DefaultDescendingLimit.
	DescendingLimit int
	Logger          log.Logger
}

// Stats summarises one run.
type Stats struct {
	Cycles               int  `json:"cycles" msgpack:"cycles"`
	AscendingIterations  int  `json:"ascending_iterations" msgpack:"ascending_iterations"`
	DescendingIterations int  `json:"descending_iterations" msgpack:"descending_iterations"`
	DescendingCapHit     bool `json:"descending_cap_hit" msgpack:"descending_cap_hit"`
}

// Analyzer holds the state of one run. It is single-use.
type Analyzer[D Domain[D]] struct {
	g      *cfg.CFG
	order  *wto.WTO
	opts   Options
	bottom D
	pre    Table[D]
	post   Table[D]
	// counted holds the heads whose block ends with an implicit loop
	// counter increment.
	counted map[asm.Label]bool
	skip    bool
	stats   Stats
}

// New returns an analyzer for g visited in the given order.
func New[D Domain[D]](g *cfg.CFG, order *wto.WTO, opts Options) *Analyzer[D] {
	if opts.DescendingLimit <= 0 {
		opts.DescendingLimit = DefaultDescendingLimit
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Analyzer[D]{g: g, order: order, opts: opts, counted: make(map[asm.Label]bool)}
}

// Run computes the invariants before (pre) and after (post) every block,
// starting from entry at the entry label. Every label of the graph has an
// entry in both tables; unreached labels are bottom.
func Run[D Domain[D]](g *cfg.CFG, order *wto.WTO, entry D, opts Options) (pre, post Table[D]) {
	return New[D](g, order, opts).Run(entry)
}

// Run performs the analysis. The graph itself is not modified.
func (a *Analyzer[D]) Run(entry D) (pre, post Table[D]) {
	a.bottom = entry.Bottom()
	a.pre = make(Table[D], a.g.Len())
	a.post = make(Table[D], a.g.Len())
	for _, l := range a.g.Labels() {
		a.pre[l] = a.bottom
		a.post[l] = a.bottom
	}

	if a.opts.CheckTermination {
		counter, ok := any(entry).(LoopCounter[D])
		if ok {
			for _, head := range a.order.Heads() {
				entry = counter.InitializeLoopCounter(head)
				counter = any(entry).(LoopCounter[D])
				a.counted[head] = true
			}
		} else {
			a.opts.Logger.Warn("domain cannot count loop iterations, termination is not checked")
		}
	}

	a.skip = true
	a.pre[asm.EntryLabel] = entry
	for _, c := range a.order.Components {
		a.visit(c)
	}
	a.opts.Logger.Debug("fixpoint reached",
		"cycles", a.stats.Cycles,
		"ascending", a.stats.AscendingIterations,
		"descending", a.stats.DescendingIterations)
	return a.pre, a.post
}

// Stats returns the counters of the last run.
func (a *Analyzer[D]) Stats() Stats { return a.stats }

func (a *Analyzer[D]) visit(c wto.Component) {
	switch v := c.(type) {
	case wto.Vertex:
		a.vertex(v.Label)
	case *wto.Cycle:
		a.cycle(v)
	}
}

func (a *Analyzer[D]) transformToPost(l asm.Label, pre D) {
	post := pre
	if b := a.g.Block(l); b != nil {
		for _, ins := range b.Instructions {
			post = post.Transfer(ins)
		}
	}
	if a.counted[l] {
		post = post.Transfer(asm.IncrementLoopCounter{Head: l})
	}
	a.post[l] = post
}

// atLabel returns the bottom value for l.
func (a *Analyzer[D]) atLabel(l asm.Label) D {
	if keyed, ok := any(a.bottom).(LabelKeyed[D]); ok {
		return keyed.AtLabel(l)
	}
	return a.bottom
}

func (a *Analyzer[D]) joinAllPrevs(l asm.Label) D {
	res := a.atLabel(l)
	for _, p := range a.g.Preds(l) {
		res = res.Join(a.post[p])
	}
	return res
}

func (a *Analyzer[D]) vertex(l asm.Label) {
	if a.skip && l == asm.EntryLabel {
		a.skip = false
	}
	if a.skip {
		return
	}

	pre := a.pre[l]
	if l != asm.EntryLabel {
		pre = a.joinAllPrevs(l)
	}
	a.pre[l] = pre
	a.transformToPost(l, pre)
}

func (a *Analyzer[D]) body(c *wto.Cycle) {
	for _, comp := range c.Components {
		a.visit(comp)
	}
}

// extrapolate joins for the first WideningDelay iterations and widens
// afterwards, snapping to constants on the first widening only.
func extrapolate[D Domain[D]](before, after D, iteration int) D {
	if iteration <= WideningDelay {
		return before.Join(after)
	}
	return before.Widen(after, iteration == WideningDelay+1)
}

func refine[D Domain[D]](before, after D, iteration int) D {
	if iteration == 1 {
		return before.Meet(after)
	}
	return before.Narrow(after)
}

func (a *Analyzer[D]) cycle(c *wto.Cycle) {
	head := c.Head

	entryInCycle := false
	if a.skip {
		entryInCycle = c.Contains(asm.EntryLabel)
		a.skip = !entryInCycle
		if a.skip {
			return
		}
	}
	a.stats.Cycles++

	invariant := a.atLabel(head)
	if entryInCycle {
		invariant = a.pre[asm.EntryLabel]
	} else {
		for _, p := range a.g.Preds(head) {
			if !c.Contains(p) {
				invariant = invariant.Join(a.post[p])
			}
		}
	}

	// Ascending phase: stop at the first post-fixpoint.
	for iteration := 1; ; iteration++ {
		a.stats.AscendingIterations++
		a.pre[head] = invariant
		a.transformToPost(head, invariant)
		a.body(c)
		newPre := a.joinAllPrevs(head)
		if newPre.Leq(invariant) {
			a.pre[head] = newPre
			invariant = newPre
			break
		}
		invariant = extrapolate(invariant, newPre, iteration)
	}

	// Descending phase: refine while the head keeps shrinking.
	for iteration := 1; ; iteration++ {
		a.transformToPost(head, invariant)
		a.body(c)
		newPre := a.joinAllPrevs(head)
		if invariant.Leq(newPre) {
			break
		}
		if iteration > a.opts.DescendingLimit {
			a.stats.DescendingCapHit = true
			a.opts.Logger.Debug("descending iteration limit reached",
				"head", head.String(), "limit", a.opts.DescendingLimit)
			break
		}
		a.stats.DescendingIterations++
		invariant = refine(invariant, newPre, iteration)
		a.pre[head] = invariant
	}
}
