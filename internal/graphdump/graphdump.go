// Package graphdump renders a built flow.Graph as text or Graphviz DOT,
// for the debug_graph_path config option . Grounded directly
// on original_source/core/bhir/bh_flow.cpp's sprint/pprint/fprint/dot.
package graphdump

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"bohrium/internal/flow"
)

// Text renders one line per Access Node, grouped by timestep (sprint's
// "id / time / R-W / parent / instr" table), prefixed by a header row.
func Text(g *flow.Graph) string {
	var b strings.Builder
	fmt.Fprintln(&b, "id\ttime\tR/W\tparent\tinstr")

	maxTimestep := 0
	for _, n := range g.Nodes {
		if n.Timestep > maxTimestep {
			maxTimestep = n.Timestep
		}
	}
	for t := 0; t <= maxTimestep; t++ {
		for i, n := range g.Nodes {
			if n.Timestep != t {
				continue
			}
			rw := "W"
			if n.ReadOnly {
				rw = "R"
			}
			fmt.Fprintf(&b, "%d\t%d\t%s\t%s\t%d.%s\n", i, n.Timestep, rw, parentList(n.Parents), n.InstrIndex, g.Instrs[n.InstrIndex].Opcode)
		}
	}
	fmt.Fprintln(&b, summaryLine(g))
	return b.String()
}

// summaryLine is sprint's trailing totals row: node/sub-DAG counts plus the
// human-readable byte footprint of every Base the graph touched.
func summaryLine(g *flow.Graph) string {
	var totalBytes int64
	for _, h := range g.BaseHandles() {
		nodes := g.NodesForBase(h)
		if len(nodes) == 0 {
			continue
		}
		totalBytes += g.Nodes[nodes[0]].View.Base.ByteSize()
	}
	return fmt.Sprintf("-- %s nodes, %d sub-DAGs, %s across %s bases",
		humanize.Comma(int64(len(g.Nodes))), g.SubDAGs, humanize.Bytes(uint64(totalBytes)), humanize.Comma(int64(len(g.BaseHandles()))))
}

func parentList(parents map[int]struct{}) string {
	ids := make([]int, 0, len(parents))
	for p := range parents {
		ids = append(ids, p)
	}
	// Deterministic output: sort ascending (bh_flow.cpp iterates a
	// std::set, which is already ordered).
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// WriteText writes Text(g) to w.
func WriteText(w io.Writer, g *flow.Graph) error {
	_, err := io.WriteString(w, Text(g))
	return err
}

// DOT renders g as a Graphviz digraph: one subgraph cluster per Base
// holding its nodes, sub-DAG-colored boxes, and one edge per parent link
// (bh_flow.cpp's dot()).
func DOT(g *flow.Graph) string {
	var b strings.Builder
	fmt.Fprintln(&b, "digraph {")
	fmt.Fprintln(&b, "compound=true;")

	for _, h := range g.BaseHandles() {
		nodes := g.NodesForBase(h)
		fmt.Fprintf(&b, "subgraph cluster%s {\n", sanitize(h.String()))
		fmt.Fprintf(&b, "label=\"%s\";\n", h.String())

		for _, idx := range nodes {
			n := g.Nodes[idx]
			rw := "W"
			if n.ReadOnly {
				rw = "R"
			}
			fmt.Fprintf(&b, "n%d[label=\"%d%s%d_%s(%d)\" shape=box style=\"filled,rounded\" colorscheme=paired12 fillcolor=%d]\n",
			idx, n.Timestep, rw, n.SubDAG, g.Instrs[n.InstrIndex].Opcode, n.InstrIndex, n.SubDAG%12+1)
		}
		for i := 0; i+1 < len(nodes); i++ {
			fmt.Fprintf(&b, "n%d -> n%d[style=\"invis\"];\n", nodes[i], nodes[i+1])
		}
		fmt.Fprintln(&b, "}")
	}

	for i, n := range g.Nodes {
		for p := range n.Parents {
			fmt.Fprintf(&b, "{n%d -> n%d;}\n", p, i)
		}
	}
	fmt.Fprintln(&b, "}")
	return b.String()
}

// WriteDOT writes DOT(g) to w.
func WriteDOT(w io.Writer, g *flow.Graph) error {
	_, err := io.WriteString(w, DOT(g))
	return err
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' {
			return '_'
		}
		return r
	}, s)
}
