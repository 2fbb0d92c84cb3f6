package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/bpf-verify/pkg/asm"
	"github.com/l3aro/bpf-verify/pkg/cfg"
	"github.com/l3aro/bpf-verify/pkg/program"
	"github.com/l3aro/bpf-verify/pkg/wto"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file>",
	Short: "Print the control-flow graph of a program",
	Long: `Builds the control-flow graph of a program with every local call inlined.
By default the graph is the one the analysis runs on, with branches turned
into assume blocks. Outputs JSON with blocks, edges, loop heads and
cyclomatic complexity, or Graphviz DOT.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		progs, err := program.Load(args[0])
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		prog, err := selectProgram(progs, name)
		if err != nil {
			return err
		}
		nondet, _ := cmd.Flags().GetBool("nondet")
		g, err := buildGraph(prog, nondet)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if dot, _ := cmd.Flags().GetBool("dot"); dot {
			return g.WriteDot(out, prog.Name)
		}

		heads := make(map[asm.Label]bool)
		for _, h := range wto.New(g).Heads() {
			heads[h] = true
		}
		info := g.Info(prog.Name, heads)

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		printCFGInfo(out, g, info)
		return nil
	},
}

// buildGraph returns the deterministic graph of prog, or the analysis-ready
// one when nondet is set.
func buildGraph(prog *program.Program, nondet bool) (*cfg.CFG, error) {
	seq, err := prog.Instructions()
	if err != nil {
		return nil, err
	}
	opts := appConfig.VerifierOptions().ForProgram(prog)
	if !nondet {
		return cfg.Build(seq, cfg.BuildOptions{MustHaveExit: opts.MustHaveExit})
	}
	return cfg.Prepare(seq, cfg.PrepareOptions{Simplify: opts.Simplify, MustHaveExit: opts.MustHaveExit})
}

// printCFGInfo prints CFG information in human-readable format, blocks in
// label order.
func printCFGInfo(w io.Writer, g *cfg.CFG, info *cfg.CFGInfo) {
	fmt.Fprintf(w, "=== CFG for program: %s ===\n", info.ProgramName)
	fmt.Fprintf(w, "Cyclomatic Complexity: %d\n", info.CyclomaticComplexity)
	fmt.Fprintf(w, "Entry Block: %s\n", info.EntryBlockID)
	fmt.Fprintf(w, "Exit Blocks: %v\n", info.ExitBlockIDs)
	fmt.Fprintf(w, "\nBlocks (%d):\n", len(info.Blocks))
	for _, l := range g.Labels() {
		block := info.Blocks[l.String()]
		marker := ""
		if block.LoopHead {
			marker = " loop head"
		}
		fmt.Fprintf(w, "  %s (%s%s) -> %v\n", block.ID, block.Type, marker, block.Successors)
		for _, ins := range block.Instructions {
			fmt.Fprintf(w, "    %s\n", ins)
		}
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(info.Edges))
	for _, edge := range info.Edges {
		if edge.Condition != "" {
			fmt.Fprintf(w, "  %s --%s [%s]--> %s\n", edge.SourceID, edge.EdgeType, edge.Condition, edge.TargetID)
			continue
		}
		fmt.Fprintf(w, "  %s --%s--> %s\n", edge.SourceID, edge.EdgeType, edge.TargetID)
	}
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().Bool("dot", false, "Output as Graphviz DOT")
	cfgCmd.Flags().Bool("nondet", true, "Turn branches into assume blocks")
	cfgCmd.Flags().String("name", "", "Program to print when the file holds several")
	RootCmd.AddCommand(cfgCmd)
}
