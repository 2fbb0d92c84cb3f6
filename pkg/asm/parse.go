package asm

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for source lines the assembler does not understand.
var ErrSyntax = errors.New("syntax error")

var condOpsBySymbol = func() map[string]CondOp {
	m := make(map[string]CondOp, len(condOpSymbols))
	for op, sym := range condOpSymbols {
		m[sym] = op
	}
	return m
}()

var binOpsBySymbol = func() map[string]BinOp {
	m := make(map[string]BinOp, len(binOpSymbols))
	for op, sym := range binOpSymbols {
		m[sym] = op
	}
	return m
}()

// Parse assembles a program written one instruction per line.
// Blank lines and lines starting with '#' are ignored; instruction i gets
// label At(i) in the order the instructions appear.
func Parse(src string) ([]LabeledInstruction, error) {
	var out []LabeledInstruction
	scanner := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ins, err := ParseInstruction(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, LabeledInstruction{Label: At(len(out)), Instruction: ins})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	return out, nil
}

// ParseInstruction assembles a single instruction.
func ParseInstruction(text string) (Instruction, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty instruction", ErrSyntax)
	}

	switch fields[0] {
	case "exit":
		if len(fields) != 1 {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, text)
		}
		return Exit{}, nil
	case "goto":
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, text)
		}
		target, err := parseTarget(fields[1])
		if err != nil {
			return nil, err
		}
		return Jmp{Target: target}, nil
	case "call":
		return parseCall(fields, text)
	case "if":
		// if rA OP x goto N
		if len(fields) != 6 || fields[4] != "goto" {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, text)
		}
		cond, err := parseCondition(fields[1:4])
		if err != nil {
			return nil, err
		}
		target, err := parseTarget(fields[5])
		if err != nil {
			return nil, err
		}
		return Jmp{Cond: &cond, Target: target}, nil
	case "assume":
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, text)
		}
		cond, err := parseCondition(fields[1:4])
		if err != nil {
			return nil, err
		}
		return Assume{Cond: cond}, nil
	}

	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, text)
	}
	op, ok := binOpsBySymbol[fields[1]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrSyntax, fields[1])
	}
	dst, is64, err := parseReg(fields[0])
	if err != nil {
		return nil, err
	}
	src, err := parseValue(fields[2], is64)
	if err != nil {
		return nil, err
	}
	return Bin{Op: op, Dst: dst, Src: src, Is64: is64}, nil
}

func parseCall(fields []string, text string) (Instruction, error) {
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: %q", ErrSyntax, text)
	}
	arg := fields[1]
	if strings.HasPrefix(arg, "<") && strings.HasSuffix(arg, ">") {
		target, err := parseTarget(strings.Trim(arg, "<>"))
		if err != nil {
			return nil, err
		}
		return CallLocal{Target: target}, nil
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("%w: bad helper id %q", ErrSyntax, arg)
	}
	return Call{Func: n}, nil
}

func parseCondition(fields []string) (Condition, error) {
	left, is64, err := parseReg(fields[0])
	if err != nil {
		return Condition{}, err
	}
	op, ok := condOpsBySymbol[fields[1]]
	if !ok {
		return Condition{}, fmt.Errorf("%w: unknown comparison %q", ErrSyntax, fields[1])
	}
	right, err := parseValue(fields[2], is64)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Op: op, Left: left, Right: right, Is64: is64}, nil
}

func parseReg(s string) (Reg, bool, error) {
	if len(s) < 2 || (s[0] != 'r' && s[0] != 'w') {
		return 0, false, fmt.Errorf("%w: bad register %q", ErrSyntax, s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || n >= NumRegs {
		return 0, false, fmt.Errorf("%w: bad register %q", ErrSyntax, s)
	}
	return Reg(n), s[0] == 'r', nil
}

func parseValue(s string, is64 bool) (Value, error) {
	if s != "" && (s[0] == 'r' || s[0] == 'w') {
		r, regIs64, err := parseReg(s)
		if err != nil {
			return nil, err
		}
		if regIs64 != is64 {
			return nil, fmt.Errorf("%w: mixed operand widths in %q", ErrSyntax, s)
		}
		return r, nil
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad immediate %q", ErrSyntax, s)
	}
	return Imm(n), nil
}

func parseTarget(s string) (Label, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Label{}, fmt.Errorf("%w: bad jump target %q", ErrSyntax, s)
	}
	return At(n), nil
}
