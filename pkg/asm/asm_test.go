package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCondOps = []CondOp{EQ, NE, SET, NSET, LT, LE, GT, GE, SLT, SLE, SGT, SGE}

func TestCondOp_NegateIsInvolution(t *testing.T) {
	for _, op := range allCondOps {
		t.Run(op.String(), func(t *testing.T) {
			assert.NotEqual(t, op, op.Negate())
			assert.Equal(t, op, op.Negate().Negate())
			assert.Equal(t, op.IsSigned(), op.Negate().IsSigned(), "negation keeps signedness")
		})
	}
}

func TestCondition_NegateKeepsWidth(t *testing.T) {
	for _, is64 := range []bool{true, false} {
		c := Condition{Op: SLT, Left: 1, Right: Imm(4), Is64: is64}
		n := c.Negate()
		assert.Equal(t, SGE, n.Op)
		assert.Equal(t, is64, n.Is64)
		assert.Equal(t, c, n.Negate())
	}
}

func TestLabel_Equality(t *testing.T) {
	frames, ok := FramePath{}.Push(3)
	require.True(t, ok)

	assert.Equal(t, At(5), At(5))
	assert.NotEqual(t, At(5), At(5).WithFrames(frames))
	assert.NotEqual(t, At(5), JumpLabel(At(5), At(7)))

	m := map[Label]int{At(5): 1, At(5).WithFrames(frames): 2}
	assert.Len(t, m, 2)

	inner := At(1).WithFrames(frames)
	assert.NotEqual(t, JumpLabel(inner, inner), JumpLabel(inner, At(1)), "return edges keep the caller frame")
	assert.NotEqual(t, JumpLabel(inner, At(1)), JumpLabel(At(1), At(1)))
	assert.Equal(t, JumpLabel(At(1), At(2)).WithFrames(frames), JumpLabel(inner, At(2).WithFrames(frames)))
}

func TestLabel_String(t *testing.T) {
	frames, _ := FramePath{}.Push(3)
	frames, _ = frames.Push(12)

	assert.Equal(t, "entry", EntryLabel.String())
	assert.Equal(t, "exit", ExitLabel.String())
	assert.Equal(t, "4", At(4).String())
	assert.Equal(t, "4:9", JumpLabel(At(4), At(9)).String())
	assert.Equal(t, "3/12/4", At(4).WithFrames(frames).String())
	assert.Equal(t, "3/12/4:9", JumpLabel(At(4), At(9)).WithFrames(frames).String())
	assert.Equal(t, "3/12/4:/9", JumpLabel(At(4).WithFrames(frames), At(9)).String())
}

func TestLabel_Compare(t *testing.T) {
	frames, _ := FramePath{}.Push(1)

	assert.Negative(t, EntryLabel.Compare(At(0)))
	assert.Negative(t, At(0).Compare(ExitLabel))
	assert.Negative(t, At(3).Compare(JumpLabel(At(3), At(4))))
	assert.Negative(t, At(9).Compare(At(0).WithFrames(frames)))
	assert.Zero(t, At(2).Compare(At(2)))

	inner := At(1).WithFrames(frames)
	assert.Negative(t, JumpLabel(inner, At(1)).Compare(JumpLabel(inner, inner)), "destination frames break ties")
}

func TestFramePath_Bounded(t *testing.T) {
	var p FramePath
	for i := 0; i < MaxCallStackFrames; i++ {
		var ok bool
		p, ok = p.Push(i)
		require.True(t, ok)
	}
	_, ok := p.Push(99)
	assert.False(t, ok)
	assert.True(t, p.Contains(3))
	assert.False(t, p.Contains(99))
}

func TestParse(t *testing.T) {
	src := `
		# straight line
		r0 = 5
		r0 += 1
		w1 = w0
		if r0 s< 10 goto 1
		call 7
		call <9>
		assume r2 &== 4
		goto 0
		exit
	`
	prog, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, prog, 9)

	assert.Equal(t, At(0), prog[0].Label)
	assert.Equal(t, Bin{Op: Mov, Dst: 0, Src: Imm(5), Is64: true}, prog[0].Instruction)
	assert.Equal(t, Bin{Op: Add, Dst: 0, Src: Imm(1), Is64: true}, prog[1].Instruction)
	assert.Equal(t, Bin{Op: Mov, Dst: 1, Src: Reg(0)}, prog[2].Instruction)
	assert.Equal(t, Jmp{Cond: &Condition{Op: SLT, Left: 0, Right: Imm(10), Is64: true}, Target: At(1)}, prog[3].Instruction)
	assert.Equal(t, Call{Func: 7}, prog[4].Instruction)
	assert.Equal(t, CallLocal{Target: At(9)}, prog[5].Instruction)
	assert.Equal(t, Assume{Cond: Condition{Op: SET, Left: 2, Right: Imm(4), Is64: true}}, prog[6].Instruction)
	assert.Equal(t, Jmp{Target: At(0)}, prog[7].Instruction)
	assert.Equal(t, Exit{}, prog[8].Instruction)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown operator", "r0 %= 3"},
		{"bad register", "r11 = 1"},
		{"bad immediate", "r0 = x"},
		{"bad condition", "if r0 ~ 3 goto 1"},
		{"missing goto", "if r0 < 3 1 2"},
		{"mixed widths", "r0 = w1"},
		{"mixed widths in 32-bit move", "w1 = r0"},
		{"bad target", "goto -1"},
		{"exit with operand", "exit 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSyntax)
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestInstructionString_RoundTrip(t *testing.T) {
	lines := []string{
		"r0 = 5",
		"w3 += w4",
		"if r1 >= r2 goto 7",
		"goto 2",
		"call 12",
		"call <4>",
		"assume r0 s<= -1",
		"exit",
	}
	for _, line := range lines {
		ins, err := ParseInstruction(line)
		require.NoError(t, err, line)
		assert.Equal(t, line, ins.String())
	}
}

func TestHasFallthrough(t *testing.T) {
	cond := &Condition{Op: EQ, Left: 0, Right: Imm(0), Is64: true}

	assert.False(t, HasFallthrough(Exit{}))
	assert.False(t, HasFallthrough(Jmp{Target: At(1)}))
	assert.True(t, HasFallthrough(Jmp{Cond: cond, Target: At(1)}))
	assert.True(t, HasFallthrough(Bin{Op: Mov, Src: Imm(1), Is64: true}))
	assert.True(t, HasFallthrough(CallLocal{Target: At(3)}))
}
