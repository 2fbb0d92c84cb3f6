package cfg

import "github.com/l3aro/bpf-verify/pkg/asm"

// StatsHeaders lists the keys reported by CollectStats, in display order.
var StatsHeaders = []string{
	"basic_blocks", "joins", "jumps", "other", "assign", "arith",
	"assume", "call", "call_local", "loop_counter", "arith64", "arith32",
}

func instructionKind(ins asm.Instruction) string {
	switch v := ins.(type) {
	case asm.Bin:
		if v.Op == asm.Mov {
			return "assign"
		}
		return "arith"
	case asm.Assume:
		return "assume"
	case asm.Call:
		return "call"
	case asm.CallLocal:
		return "call_local"
	case asm.IncrementLoopCounter:
		return "loop_counter"
	}
	return "other"
}

// CollectStats counts blocks, joins, branches and instruction kinds of g.
// Every key of StatsHeaders is present in the result.
func CollectStats(g *CFG) map[string]int {
	res := make(map[string]int, len(StatsHeaders))
	for _, h := range StatsHeaders {
		res[h] = 0
	}
	for _, l := range g.Labels() {
		res["basic_blocks"]++
		for _, ins := range g.Block(l).Instructions {
			if b, ok := ins.(asm.Bin); ok {
				if b.Is64 {
					res["arith64"]++
				} else {
					res["arith32"]++
				}
			}
			res[instructionKind(ins)]++
		}
		if g.NumPreds(l) > 1 {
			res["joins"]++
		}
		if g.NumSuccs(l) > 1 {
			res["jumps"]++
		}
	}
	return res
}
