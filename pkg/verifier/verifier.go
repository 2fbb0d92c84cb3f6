// Package verifier wires the analysis pipeline: it builds the graph of a
// program, runs the fixpoint iterator with the interval domain, partitioned
// when keys are configured, and condenses the result into a Report.
package verifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/bpf-verify/internal/log"
	"github.com/l3aro/bpf-verify/pkg/asm"
	"github.com/l3aro/bpf-verify/pkg/cfg"
	"github.com/l3aro/bpf-verify/pkg/fixpoint"
	"github.com/l3aro/bpf-verify/pkg/interval"
	"github.com/l3aro/bpf-verify/pkg/partition"
	"github.com/l3aro/bpf-verify/pkg/program"
	"github.com/l3aro/bpf-verify/pkg/wto"
)

// value is what the pipeline needs from a domain to fill a report.
type value[D any] interface {
	fixpoint.Domain[D]
	fixpoint.LoopCounter[D]
	Interval(name string) interval.Interval
}

// Verify analyses prog. The context is only consulted before the analysis
// starts; a started run completes.
func Verify(ctx context.Context, prog *program.Program, opts Options, logger log.Logger) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Nop()
	}
	opts = opts.ForProgram(prog)

	seq, err := prog.Instructions()
	if err != nil {
		return nil, err
	}

	var report *Report
	err = WithSession(func(s *Session) error {
		start := time.Now()
		g, err := cfg.Prepare(seq, cfg.PrepareOptions{Simplify: opts.Simplify, MustHaveExit: opts.MustHaveExit})
		if err != nil {
			return fmt.Errorf("program %s: %w", prog.Name, err)
		}
		order := wto.New(g)
		fopts := fixpoint.Options{
			CheckTermination: opts.CheckTermination,
			DescendingLimit:  opts.DescendingLimit,
			Logger:           logger,
		}

		top := interval.NewState(s.Registry())
		if opts.partitioned() {
			pcfg := &partition.Config{Keys: opts.PartitionKeys, MaxPartitions: opts.MaxPartitions}
			report = analyze(g, order, partition.New(top, pcfg), fopts, func(v partition.Value[interval.State]) (interval.State, int) {
				return v.Merged(), len(v.Partitions())
			})
		} else {
			report = analyze(g, order, top, fopts, func(v interval.State) (interval.State, int) {
				return v, 1
			})
		}
		report.Duration = time.Since(start)
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Name = prog.Name
	report.Source = prog.Source
	report.Checked = opts.CheckTermination
	report.check(prog)

	logger.Debug("verified program",
		"name", prog.Name,
		"blocks", report.Blocks,
		"cycles", report.Stats.Cycles,
		"passed", report.Passed(),
		"duration", report.Duration)
	return report, nil
}

func analyze[D value[D]](g *cfg.CFG, order *wto.WTO, entry D, opts fixpoint.Options, project func(D) (interval.State, int)) *Report {
	a := fixpoint.New[D](g, order, opts)
	pre, post := a.Run(entry)

	r := &Report{
		Blocks:     g.Len(),
		Stats:      a.Stats(),
		Terminates: true,
		exit:       make(map[string]string),
	}
	for _, l := range g.Labels() {
		if !pre[l].IsBottom() {
			r.ReachableLabels = append(r.ReachableLabels, l.String())
		}
		if !opts.CheckTermination {
			continue
		}
		bound, ok := post[l].LoopCountUpperBound()
		if !ok {
			r.Terminates = false
			continue
		}
		r.LoopBound = max(r.LoopBound, bound)
	}
	if !opts.CheckTermination {
		r.Terminates = false
	}

	exit := pre[asm.ExitLabel]
	r.ExitReachable = !exit.IsBottom()
	state, parts := project(exit)
	r.ExitPartitions = parts
	r.ExitInvariant = state.Bindings()
	for _, b := range r.ExitInvariant {
		if name, val, ok := strings.Cut(b, "="); ok {
			r.exit[name] = val
		}
	}
	return r
}

// VerifyAll verifies progs with at most parallelism analyses in flight,
// each in its own session. Reports keep the order of progs. The first error
// cancels the programs not yet started.
func VerifyAll(ctx context.Context, progs []program.Program, opts Options, parallelism int, logger log.Logger) ([]*Report, error) {
	reports := make([]*Report, len(progs))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i := range progs {
		i := i
		g.Go(func() error {
			r, err := Verify(ctx, &progs[i], opts, logger)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
