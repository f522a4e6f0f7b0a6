package graphdump

import (
	"strconv"
	"strings"
	"testing"

	"bohrium/internal/alias"
	"bohrium/internal/base"
	"bohrium/internal/flow"
	"bohrium/internal/instr"
	"bohrium/internal/recorder"
	"bohrium/internal/typetag"
	"bohrium/internal/view"
)

func buildSimpleGraph(t *testing.T) *flow.Graph {
	t.Helper()
	b := base.New(typetag.Float64, 4)
	v, err := view.New(b, 0, []int64{4}, []int64{1})
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	ins := instr.Instruction{Opcode: instr.OpAdd, Operands: []instr.Operand{instr.FromView(v), instr.FromView(v), instr.FromView(v)}}
	g, err := flow.Build(recorder.Batch{Instructions: []instr.Instruction{ins}}, alias.PreciseOracle{})
	if err != nil {
		t.Fatalf("flow.Build: %v", err)
	}
	return g
}

func TestText_HasHeaderAndOneLinePerNode(t *testing.T) {
	g := buildSimpleGraph(t)
	out := Text(g)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "id\ttime\tR/W\tparent\tinstr" {
		t.Fatalf("header = %q", lines[0])
	}
	// header line ... node lines ... trailing summary line.
	if len(lines)-2 != len(g.Nodes) {
		t.Fatalf("got %d node lines, want %d", len(lines)-2, len(g.Nodes))
	}
	if !strings.HasPrefix(lines[len(lines)-1], "--") {
		t.Fatalf("last line = %q, want trailing summary", lines[len(lines)-1])
	}
}

func TestDOT_WellFormed(t *testing.T) {
	g := buildSimpleGraph(t)
	out := DOT(g)
	if !strings.HasPrefix(out, "digraph {") {
		t.Fatalf("DOT output does not start with 'digraph {': %q", out[:20])
	}
	if !strings.HasSuffix(strings.TrimRight(out, "\n"), "}") {
		t.Fatalf("DOT output does not end with '}'")
	}
	for i := range g.Nodes {
		if !strings.Contains(out, "n"+strconv.Itoa(i)) {
			t.Fatalf("DOT output missing node n%d", i)
		}
	}
}
