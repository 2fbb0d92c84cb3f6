package verifier

import (
	"maps"

	"github.com/l3aro/bpf-verify/pkg/partition"
	"github.com/l3aro/bpf-verify/pkg/program"
)

// Options configures Verify.
type Options struct {
	// Simplify collapses straight-line chains before the analysis.
	Simplify bool `json:"simplify" msgpack:"simplify"`
	// MustHaveExit rejects programs whose last instruction falls through.
	MustHaveExit bool `json:"must_have_exit" msgpack:"must_have_exit"`
	// CheckTermination bounds the iterations of every loop.
	CheckTermination bool `json:"check_termination" msgpack:"check_termination"`
	// PartitionKeys maps labels to the variables the state is partitioned
	// on there; "*" applies everywhere else. Empty disables partitioning.
	PartitionKeys partition.KeyMap `json:"partition_keys,omitempty" msgpack:"partition_keys,omitempty"`
	// DescendingLimit caps narrowing iterations per loop; zero picks the
	// analyzer default.
	DescendingLimit int `json:"descending_limit" msgpack:"descending_limit"`
	// MaxPartitions bounds partitions per program point; zero is unbounded.
	MaxPartitions int `json:"max_partitions" msgpack:"max_partitions"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{Simplify: true}
}

// ForProgram returns o adjusted by the options listed in p.
func (o Options) ForProgram(p *program.Program) Options {
	res := o
	res.PartitionKeys = maps.Clone(o.PartitionKeys)
	if p.Has(program.OptionTermination) || p.Expect != nil && p.Expect.Terminates != nil {
		res.CheckTermination = true
	}
	if p.Has(program.OptionStrict) {
		res.MustHaveExit = true
	}
	if p.Has(program.OptionNoSimplify) {
		res.Simplify = false
	}
	switch {
	case p.Partitioned():
		res.PartitionKeys = partition.KeyMap{partition.Wildcard: p.PartitionKeys}
	case len(p.PartitionKeys) > 0:
		res.PartitionKeys = nil
	}
	return res
}

func (o Options) partitioned() bool {
	for _, key := range o.PartitionKeys {
		if len(key) > 0 {
			return true
		}
	}
	return false
}
