package cfg

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/bpf-verify/pkg/asm"
)

func assemble(t *testing.T, lines ...string) []asm.LabeledInstruction {
	t.Helper()
	seq, err := asm.Parse(strings.Join(lines, "\n"))
	require.NoError(t, err)
	return seq
}

func frames(t *testing.T, sites ...int) asm.FramePath {
	t.Helper()
	var p asm.FramePath
	for _, s := range sites {
		var ok bool
		p, ok = p.Push(s)
		require.True(t, ok)
	}
	return p
}

// requireWellFormed checks edge symmetry and reachability of every block.
func requireWellFormed(t *testing.T, g *CFG) {
	t.Helper()
	reachable := g.Reachable()
	require.True(t, g.Contains(asm.EntryLabel))
	require.True(t, g.Contains(asm.ExitLabel))
	for _, l := range g.Labels() {
		assert.True(t, reachable[l], "block %s is unreachable", l)
		for _, s := range g.Succs(l) {
			assert.Contains(t, g.Preds(s), l, "edge %s -> %s missing from preds", l, s)
		}
		for _, p := range g.Preds(l) {
			assert.Contains(t, g.Succs(p), l, "edge %s -> %s missing from succs", p, l)
		}
	}
	assert.Zero(t, g.NumSuccs(asm.ExitLabel))
	assert.Zero(t, g.NumPreds(asm.EntryLabel))
}

func TestBuild_StraightLine(t *testing.T) {
	g, err := Build(assemble(t, "r0 = 5", "r0 += 1", "exit"), BuildOptions{MustHaveExit: true})
	require.NoError(t, err)
	requireWellFormed(t, g)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, []asm.Label{asm.At(0)}, g.Succs(asm.EntryLabel))
	assert.Equal(t, []asm.Label{asm.At(1)}, g.Succs(asm.At(0)))
	assert.Equal(t, []asm.Label{asm.At(2)}, g.Succs(asm.At(1)))
	assert.Equal(t, []asm.Label{asm.ExitLabel}, g.Succs(asm.At(2)))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		lines   []string
		strict  bool
		wantErr error
	}{
		{
			name:    "fallthrough off the end",
			lines:   []string{"r0 = 1"},
			strict:  true,
			wantErr: ErrFallthrough,
		},
		{
			name:    "jump to missing instruction",
			lines:   []string{"goto 5", "exit"},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "call to missing instruction",
			lines:   []string{"call <9>", "exit"},
			wantErr: ErrInvalidTarget,
		},
		{
			name:    "macro calling itself",
			lines:   []string{"call <2>", "exit", "call <2>", "exit"},
			wantErr: ErrIllegalRecursion,
		},
		{
			name:    "macro calling its caller",
			lines:   []string{"call <2>", "exit", "call <4>", "exit", "call <2>", "exit"},
			wantErr: ErrIllegalRecursion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(assemble(t, tt.lines...), BuildOptions{MustHaveExit: tt.strict})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, g)
		})
	}
}

func TestBuild_TrailingFallthroughLinksExit(t *testing.T) {
	g, err := Build(assemble(t, "r0 = 1"), BuildOptions{})
	require.NoError(t, err)
	assert.True(t, g.HasEdge(asm.At(0), asm.ExitLabel))
}

func TestBuild_DropsUnreachableCode(t *testing.T) {
	g, err := Build(assemble(t, "goto 2", "r0 = 1", "exit"), BuildOptions{})
	require.NoError(t, err)
	requireWellFormed(t, g)
	assert.False(t, g.Contains(asm.At(1)))
}

func TestBuild_InlinesSingleCall(t *testing.T) {
	// Caller: entry, 0, 1, exit. Callee: 2, 3 and the shared exit.
	g, err := Build(assemble(t, "call <2>", "exit", "r0 = 1", "exit"), BuildOptions{MustHaveExit: true})
	require.NoError(t, err)
	requireWellFormed(t, g)

	callerBlocks, calleeBlocks := 4, 3
	assert.Equal(t, callerBlocks+calleeBlocks-1, g.Len())

	f := frames(t, 0)
	body, ret := asm.At(2).WithFrames(f), asm.At(3).WithFrames(f)
	assert.False(t, g.Contains(asm.At(2)), "original macro body must be pruned")
	assert.Equal(t, []asm.Label{body}, g.Succs(asm.At(0)))
	assert.Equal(t, []asm.Label{ret}, g.Succs(body))
	assert.Equal(t, []asm.Label{asm.At(1)}, g.Succs(ret))
	assert.False(t, g.HasEdge(asm.At(0), asm.At(1)))

	call, ok := g.Block(asm.At(0)).Last()
	require.True(t, ok)
	assert.Equal(t, "0", call.(asm.CallLocal).FramePrefix)

	exit, ok := g.Block(ret).Last()
	require.True(t, ok)
	assert.Equal(t, asm.Exit{FramePrefix: "0"}, exit)
}

func TestBuild_InlinesEachCallSiteSeparately(t *testing.T) {
	g, err := Build(assemble(t, "call <3>", "call <3>", "exit", "r0 = 2", "exit"), BuildOptions{})
	require.NoError(t, err)
	requireWellFormed(t, g)

	// entry, 0, 1, 2, exit plus two copies of {3, 4}.
	assert.Equal(t, 9, g.Len())
	for _, site := range []int{0, 1} {
		f := frames(t, site)
		assert.True(t, g.Contains(asm.At(3).WithFrames(f)))
		assert.True(t, g.Contains(asm.At(4).WithFrames(f)))
	}
	assert.True(t, g.HasEdge(asm.At(4).WithFrames(frames(t, 0)), asm.At(1)))
	assert.True(t, g.HasEdge(asm.At(4).WithFrames(frames(t, 1)), asm.At(2)))
}

func TestBuild_NestedCallsAndLoopsInMacro(t *testing.T) {
	g, err := Build(assemble(t,
		"call <2>",
		"exit",
		"call <5>",
		"if r0 < 3 goto 2",
		"exit",
		"r0 += 1",
		"exit",
	), BuildOptions{MustHaveExit: true})
	require.NoError(t, err)
	requireWellFormed(t, g)

	outer := frames(t, 0)
	inner := frames(t, 0, 2)
	assert.True(t, g.Contains(asm.At(5).WithFrames(inner)))
	assert.True(t, g.HasEdge(asm.At(6).WithFrames(inner), asm.At(3).WithFrames(outer)))
	// The back edge stays inside the outer copy.
	assert.True(t, g.HasEdge(asm.At(3).WithFrames(outer), asm.At(2).WithFrames(outer)))

	jmp, ok := g.Block(asm.At(3).WithFrames(outer)).Last()
	require.True(t, ok)
	assert.Equal(t, asm.At(2).WithFrames(outer), jmp.(asm.Jmp).Target)
}

func TestBuild_TooManyFrames(t *testing.T) {
	chain := func(depth int) []string {
		var lines []string
		for i := 0; i < depth; i++ {
			lines = append(lines, "call <"+strconv.Itoa(2*i+2)+">", "exit")
		}
		return append(lines, "r0 = 0", "exit")
	}

	_, err := Build(assemble(t, chain(3)...), BuildOptions{})
	require.NoError(t, err)

	_, err = Build(assemble(t, chain(asm.MaxCallStackFrames+1)...), BuildOptions{})
	require.ErrorIs(t, err, ErrTooManyFrames)
}

func TestToNondet_BranchShape(t *testing.T) {
	det, err := Build(assemble(t, "r0 = 0", "if r0 < 10 goto 3", "r0 = 1", "exit"), BuildOptions{})
	require.NoError(t, err)

	g := ToNondet(det)
	requireWellFormed(t, g)

	taken := asm.JumpLabel(asm.At(1), asm.At(3))
	notTaken := asm.JumpLabel(asm.At(1), asm.At(2))
	assert.Equal(t, []asm.Label{notTaken, taken}, g.Succs(asm.At(1)))
	assert.Empty(t, g.Block(asm.At(1)).Instructions, "jump instructions are removed")

	cond := asm.Condition{Op: asm.LT, Left: 0, Right: asm.Imm(10), Is64: true}
	assert.Equal(t, []asm.Instruction{asm.Assume{Cond: cond}}, g.Block(taken).Instructions)
	assert.Equal(t, []asm.Instruction{asm.Assume{Cond: cond.Negate()}}, g.Block(notTaken).Instructions)
	assert.Equal(t, []asm.Label{asm.At(3)}, g.Succs(taken))
	assert.Equal(t, []asm.Label{asm.At(2)}, g.Succs(notTaken))
	assert.Equal(t, []asm.Label{taken, asm.At(2)}, g.Preds(asm.At(3)))

	for _, l := range g.Labels() {
		for _, ins := range g.Block(l).Instructions {
			_, isJmp := ins.(asm.Jmp)
			assert.False(t, isJmp, "block %s still holds %s", l, ins)
		}
	}
}

func TestToNondet_BranchReturningFromMacro(t *testing.T) {
	// The inlined copy of 1 branches to itself and, on fallthrough, returns
	// to the caller's 1, which branches to the same origin and destination.
	det, err := Build(assemble(t, "call <1>", "if r1 == 0 goto 1"), BuildOptions{})
	require.NoError(t, err)

	g := ToNondet(det)
	requireWellFormed(t, g)

	root, inner := asm.At(1), asm.At(1).WithFrames(frames(t, 0))
	tests := []struct {
		name   string
		branch asm.Label
		arms   []asm.Label
	}{
		{name: "inlined", branch: inner, arms: []asm.Label{inner, root}},
		{name: "caller", branch: root, arms: []asm.Label{root, asm.ExitLabel}},
	}
	seen := map[asm.Label]string{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			succs := g.Succs(tt.branch)
			require.Len(t, succs, 2)
			for _, arm := range tt.arms {
				jl := asm.JumpLabel(tt.branch, arm)
				assert.Contains(t, succs, jl)
				assert.Equal(t, []asm.Label{tt.branch}, g.Preds(jl))
				assert.Equal(t, []asm.Label{arm}, g.Succs(jl))
				owner, dup := seen[jl]
				assert.False(t, dup, "%s already assumes for %s", jl, owner)
				seen[jl] = tt.name
			}
		})
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, "0/1:/1", asm.JumpLabel(inner, root).String())
}

func TestToNondet_UnconditionalJumpPassesThrough(t *testing.T) {
	det, err := Build(assemble(t, "goto 2", "r0 = 1", "exit"), BuildOptions{})
	require.NoError(t, err)

	g := ToNondet(det)
	assert.Equal(t, []asm.Label{asm.At(2)}, g.Succs(asm.At(0)))
	assert.Empty(t, g.Block(asm.At(0)).Instructions)
}

func TestSimplify_CollapsesChains(t *testing.T) {
	g, err := Prepare(assemble(t, "r0 = 5", "r0 += 1", "exit"), PrepareOptions{Simplify: true})
	require.NoError(t, err)
	requireWellFormed(t, g)

	assert.Equal(t, 3, g.Len())
	assert.Len(t, g.Block(asm.At(0)).Instructions, 3)
	assert.Equal(t, []asm.Label{asm.ExitLabel}, g.Succs(asm.At(0)))
}

func TestSimplify_KeepsJoins(t *testing.T) {
	g, err := Prepare(assemble(t, "r0 = 0", "r0 += 1", "if r0 < 10 goto 1", "exit"), PrepareOptions{Simplify: true})
	require.NoError(t, err)
	requireWellFormed(t, g)

	// The loop head has two predecessors and survives as its own block.
	assert.True(t, g.Contains(asm.At(1)))
	assert.Equal(t, 2, g.NumPreds(asm.At(1)))
}

func TestPrepare_RunsExplicator(t *testing.T) {
	called := false
	_, err := Prepare(assemble(t, "exit"), PrepareOptions{Explicate: func(g *CFG) error {
		called = true
		assert.True(t, g.Contains(asm.At(0)))
		return nil
	}})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCollectStats(t *testing.T) {
	g, err := Prepare(assemble(t, "r0 = 0", "if r0 < 10 goto 3", "w0 += 1", "exit"), PrepareOptions{})
	require.NoError(t, err)

	stats := CollectStats(g)
	for _, h := range StatsHeaders {
		assert.Contains(t, stats, h)
	}
	assert.Equal(t, g.Len(), stats["basic_blocks"])
	assert.Equal(t, 1, stats["assign"])
	assert.Equal(t, 1, stats["arith"])
	assert.Equal(t, 2, stats["assume"])
	assert.Equal(t, 1, stats["arith32"])
	assert.Equal(t, 1, stats["arith64"])
	assert.Equal(t, 1, stats["jumps"])
	assert.Equal(t, 1, stats["joins"])
}

func TestInfo(t *testing.T) {
	g, err := Prepare(assemble(t, "r0 = 0", "if r0 < 10 goto 3", "r0 = 1", "exit"), PrepareOptions{})
	require.NoError(t, err)

	info := g.Info("branch", nil)
	assert.Equal(t, "branch", info.ProgramName)
	assert.Equal(t, "entry", info.EntryBlockID)
	assert.Equal(t, []string{"3"}, info.ExitBlockIDs)
	assert.Equal(t, 2, info.CyclomaticComplexity)
	assert.Equal(t, BlockTypeBranch, info.Blocks["1"].Type)
	assert.Equal(t, BlockTypeAssume, info.Blocks["1:3"].Type)
	assert.Equal(t, BlockTypeJoin, info.Blocks["3"].Type)

	var assumeEdges int
	for _, e := range info.Edges {
		if e.EdgeType == EdgeTypeAssume {
			assumeEdges++
			assert.NotEmpty(t, e.Condition)
		}
	}
	assert.Equal(t, 2, assumeEdges)

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cyclomatic_complexity":2`)
}

func TestWriteDot(t *testing.T) {
	g, err := Prepare(assemble(t, "r0 = 5", "exit"), PrepareOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.WriteDot(&buf, "prog"))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `digraph "prog" {`))
	assert.Contains(t, out, `"entry" -> "0";`)
	assert.Contains(t, out, `"1" -> "exit";`)
	assert.Contains(t, out, `r0 = 5`)
}
