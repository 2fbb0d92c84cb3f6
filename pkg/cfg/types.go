package cfg

import (
	"github.com/l3aro/bpf-verify/pkg/asm"
)

// BlockType represents the type of a CFG block.
type BlockType string

const (
	BlockTypeEntry  BlockType = "entry"  // Program entry point
	BlockTypeBranch BlockType = "branch" // Block with more than one successor
	BlockTypeAssume BlockType = "assume" // Synthetic edge-from-branch block
	BlockTypeJoin   BlockType = "join"   // Block with more than one predecessor
	BlockTypeExit   BlockType = "exit"   // Program exit point
	BlockTypePlain  BlockType = "plain"  // Regular instructions
)

// EdgeType represents the type of a CFG edge.
type EdgeType string

const (
	EdgeTypeUnconditional EdgeType = "unconditional" // Fallthrough or jump
	EdgeTypeAssume        EdgeType = "assume"        // Into a branch assumption
	EdgeTypeReturn        EdgeType = "return"        // Into the exit block
)

// CFGBlock is the exported form of a basic block.
type CFGBlock struct {
	ID           string    `json:"id"`                     // Label of the block
	Type         BlockType `json:"type"`                   // Type of block
	Frames       string    `json:"frames,omitempty"`       // Call-site frame prefix of inlined blocks
	Instructions []string  `json:"instructions"`           // Instructions in this block
	Predecessors []string  `json:"predecessors"`           // Labels of blocks that can precede this block
	Successors   []string  `json:"successors"`             // Labels of blocks that can follow this block
	LoopHead     bool      `json:"loop_head,omitempty"`    // Whether the block heads a loop
	Reachable    bool      `json:"reachable"`              // Whether the entry reaches this block
	Annotations  []string  `json:"annotations,omitempty"`  // Free-form notes, e.g. invariants
}

// CFGEdge represents a directed edge between two CFG blocks.
type CFGEdge struct {
	SourceID  string   `json:"source_id"`           // Label of the source block
	TargetID  string   `json:"target_id"`           // Label of the target block
	EdgeType  EdgeType `json:"edge_type"`           // Type of edge
	Condition string   `json:"condition,omitempty"` // Assumed condition for assume edges
}

// CFGInfo represents a complete control-flow graph.
type CFGInfo struct {
	ProgramName          string              `json:"program_name"`          // Name of the program
	Blocks               map[string]CFGBlock `json:"blocks"`                // Map of label to block
	Edges                []CFGEdge           `json:"edges"`                 // List of edges in the graph
	EntryBlockID         string              `json:"entry_block_id"`        // Label of the entry block
	ExitBlockIDs         []string            `json:"exit_block_ids"`        // Labels of blocks feeding the exit
	CyclomaticComplexity int                 `json:"cyclomatic_complexity"` // E - N + 2
}

// Info exports g. loopHeads may be nil.
func (g *CFG) Info(name string, loopHeads map[asm.Label]bool) *CFGInfo {
	reachable := g.Reachable()
	info := &CFGInfo{
		ProgramName:  name,
		Blocks:       make(map[string]CFGBlock, g.Len()),
		EntryBlockID: asm.EntryLabel.String(),
	}

	for _, l := range g.Labels() {
		b := g.Block(l)
		block := CFGBlock{
			ID:           l.String(),
			Type:         g.blockType(l),
			Frames:       l.Frames.Prefix(),
			Instructions: make([]string, 0, len(b.Instructions)),
			Predecessors: labelStrings(g.Preds(l)),
			Successors:   labelStrings(g.Succs(l)),
			LoopHead:     loopHeads[l],
			Reachable:    reachable[l],
		}
		for _, ins := range b.Instructions {
			block.Instructions = append(block.Instructions, ins.String())
		}
		info.Blocks[block.ID] = block

		for _, s := range g.Succs(l) {
			edge := CFGEdge{SourceID: block.ID, TargetID: s.String(), EdgeType: EdgeTypeUnconditional}
			switch {
			case s == asm.ExitLabel:
				edge.EdgeType = EdgeTypeReturn
				info.ExitBlockIDs = append(info.ExitBlockIDs, block.ID)
			case s.IsJump():
				edge.EdgeType = EdgeTypeAssume
				if ins := g.Block(s).Instructions; len(ins) > 0 {
					if assume, ok := ins[0].(asm.Assume); ok {
						edge.Condition = assume.Cond.String()
					}
				}
			}
			info.Edges = append(info.Edges, edge)
		}
	}

	info.CyclomaticComplexity = len(info.Edges) - len(info.Blocks) + 2
	return info
}

func (g *CFG) blockType(l asm.Label) BlockType {
	switch {
	case l == asm.EntryLabel:
		return BlockTypeEntry
	case l == asm.ExitLabel:
		return BlockTypeExit
	case l.IsJump():
		return BlockTypeAssume
	case g.NumSuccs(l) > 1:
		return BlockTypeBranch
	case g.NumPreds(l) > 1:
		return BlockTypeJoin
	}
	return BlockTypePlain
}

func labelStrings(labels []asm.Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.String()
	}
	return out
}
