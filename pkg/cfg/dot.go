package cfg

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteDot renders g in Graphviz dot syntax.
func (g *CFG) WriteDot(w io.Writer, name string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %q {\n", name)
	fmt.Fprintln(bw, "  node [shape=box, fontname=monospace];")
	for _, l := range g.Labels() {
		lines := []string{l.String()}
		for _, ins := range g.Block(l).Instructions {
			lines = append(lines, ins.String())
		}
		label := strings.ReplaceAll(strings.Join(lines, `\l`), `"`, `\"`) + `\l`
		fmt.Fprintf(bw, "  %q [label=\"%s\"];\n", l.String(), label)
	}
	for _, l := range g.Labels() {
		for _, s := range g.Succs(l) {
			fmt.Fprintf(bw, "  %q -> %q;\n", l.String(), s.String())
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
