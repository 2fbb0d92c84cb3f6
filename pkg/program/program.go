// Package program reads verification cases from YAML files. A file holds
// one or more documents, each describing a named program, the options it is
// verified with and, optionally, what the analysis is expected to conclude.
package program

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/bpf-verify/pkg/asm"
)

// Options understood in the options list.
const (
	OptionTermination = "termination"
	OptionStrict      = "strict"
	OptionNoSimplify  = "no-simplify"
)

// NoPartition in partition_keys disables partitioning for the case.
const NoPartition = "none"

// ErrInvalidProgram is returned for documents that cannot be verified.
var ErrInvalidProgram = errors.New("invalid program")

// Expect lists the facts a case asserts about the analysis result.
type Expect struct {
	// Exit maps variable names to the interval expected at the exit, in the
	// "[lo,hi]" form intervals print in.
	Exit map[string]string `yaml:"exit,omitempty"`
	// ExitReachable, when set, asserts whether the exit is reachable.
	ExitReachable *bool `yaml:"exit_reachable,omitempty"`
	// Terminates, when set, asserts whether every loop is bounded.
	Terminates *bool `yaml:"terminates,omitempty"`
}

// Program is one verification case.
type Program struct {
	Name          string   `yaml:"name"`
	Options       []string `yaml:"options,omitempty"`
	PartitionKeys []string `yaml:"partition_keys,omitempty"`
	Code          string   `yaml:"code"`
	Expect        *Expect  `yaml:"expect,omitempty"`

	// Source is the file the program was read from, if any.
	Source string `yaml:"-" msgpack:"-"`
}

// Has reports whether opt is present in the options list.
func (p *Program) Has(opt string) bool { return slices.Contains(p.Options, opt) }

// Partitioned reports whether the case asks for a partitioned analysis.
func (p *Program) Partitioned() bool {
	return len(p.PartitionKeys) > 0 && !slices.Equal(p.PartitionKeys, []string{NoPartition})
}

// Instructions assembles the program code.
func (p *Program) Instructions() ([]asm.LabeledInstruction, error) {
	seq, err := asm.Parse(p.Code)
	if err != nil {
		return nil, fmt.Errorf("program %s: %w", p.Name, err)
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("program %s: %w: no instructions", p.Name, ErrInvalidProgram)
	}
	return seq, nil
}

func (p *Program) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProgram)
	}
	for _, opt := range p.Options {
		switch opt {
		case OptionTermination, OptionStrict, OptionNoSimplify:
		default:
			return fmt.Errorf("program %s: %w: unknown option %q", p.Name, ErrInvalidProgram, opt)
		}
	}
	return nil
}

// Parse decodes every YAML document in data.
func Parse(data []byte) ([]Program, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []Program
	for {
		var p Program
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse program document %d: %w", len(out)+1, err)
		}
		if err := p.validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Load reads every program in the file at path.
func Load(path string) ([]Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program file %s: %w", path, err)
	}
	progs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range progs {
		progs[i].Source = path
	}
	return progs, nil
}
