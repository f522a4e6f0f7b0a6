package flow

import (
	"testing"

	"bohrium/internal/alias"
	"bohrium/internal/base"
	"bohrium/internal/instr"
	"bohrium/internal/recorder"
	"bohrium/internal/typetag"
	"bohrium/internal/view"
)

func mustView(t *testing.T, b *base.Base, start int64, shape, stride []int64) view.View {
	t.Helper()
	v, err := view.New(b, start, shape, stride)
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	return v
}

func add(out, a, b view.View) instr.Instruction {
	return instr.Instruction{Opcode: instr.OpAdd, Operands: []instr.Operand{instr.FromView(out), instr.FromView(a), instr.FromView(b)}}
}

// TestSameInstructionTimestepEquality checks F2: every node an instruction
// generates (its write node and every read node) shares one timestep.
func TestSameInstructionTimestepEquality(t *testing.T) {
	b := base.New(typetag.Float64, 10)
	v := mustView(t, b, 0, []int64{10}, []int64{1})

	batch := recorder.Batch{Instructions: []instr.Instruction{add(v, v, v)}}
	g, err := Build(batch, alias.PreciseOracle{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Fatalf("len(Nodes) = %d, want 3 (2 reads + 1 write, read/read dedup not performed)", len(g.Nodes))
	}
	ts := g.Nodes[0].Timestep
	for i, n := range g.Nodes {
		if n.Timestep != ts {
			t.Fatalf("node %d timestep = %d, want %d (all nodes of one instruction share a timestep)", i, n.Timestep, ts)
		}
	}
}

// TestWriteThenReadOrdering checks F1/F3: a read that aliases a prior write
// is ordered strictly after it, via an identity parent edge when the views
// match exactly.
func TestWriteThenReadOrdering(t *testing.T) {
	b := base.New(typetag.Float64, 10)
	v := mustView(t, b, 0, []int64{10}, []int64{1})

	batch := recorder.Batch{Instructions: []instr.Instruction{
		add(v, v, v), // instruction 0: writes v
		add(v, v, v), // instruction 1: reads v (identical view) then writes v
	}}
	g, err := Build(batch, alias.PreciseOracle{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Instruction 0 produced 3 nodes (idx 0,1,2); instruction 1's first read
	// node is idx 3 and must parent idx 2 (instruction 0's write node, the
	// exact same View).
	readNode := g.Nodes[3]
	if !readNode.ReadOnly {
		t.Fatalf("node 3 expected read-only")
	}
	if _, ok := readNode.Parents[2]; !ok {
		t.Fatalf("node 3 parents = %v, want identity edge to node 2", readNode.Parents)
	}
	if g.Nodes[3].Timestep <= g.Nodes[2].Timestep {
		t.Fatalf("reader timestep %d must exceed writer timestep %d", g.Nodes[3].Timestep, g.Nodes[2].Timestep)
	}
}

// TestNoEdgeCrossesBackwardInTime checks F4 (soundness of the graph): no
// parent edge points to a node with a later timestep (a write node's edges
// to its own instruction's read nodes share one timestep).
func TestNoEdgeCrossesBackwardInTime(t *testing.T) {
	b := base.New(typetag.Float64, 10)
	v := mustView(t, b, 0, []int64{10}, []int64{1})
	w := mustView(t, b, 0, []int64{5}, []int64{1}) // overlaps v's first half

	batch := recorder.Batch{Instructions: []instr.Instruction{
		add(v, v, v),
		add(w, w, v),
		add(v, w, w),
	}}
	g, err := Build(batch, alias.PreciseOracle{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i, n := range g.Nodes {
		for p := range n.Parents {
			if g.Nodes[p].Timestep > n.Timestep {
				t.Fatalf("node %d (timestep %d) has parent %d with later timestep %d", i, n.Timestep, p, g.Nodes[p].Timestep)
			}
		}
	}
}

// TestDisjointViewsFormIndependentSubDAGs exercises the canonical
// non-overlapping-interleave case: two instructions entirely on disjoint
// even/odd-indexed views of the same Base must land in different sub-DAGs,
// since the Alias Oracle proves they never conflict.
func TestDisjointViewsFormIndependentSubDAGs(t *testing.T) {
	b := base.New(typetag.Float64, 8)
	evens := mustView(t, b, 0, []int64{4}, []int64{2})
	odds := mustView(t, b, 1, []int64{4}, []int64{2})

	batch := recorder.Batch{Instructions: []instr.Instruction{
		add(evens, evens, evens),
		add(odds, odds, odds),
	}}
	g, err := Build(batch, alias.PreciseOracle{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.SubDAGs != 2 {
		t.Fatalf("SubDAGs = %d, want 2 (evens and odds never alias)", g.SubDAGs)
	}
	evensSubDAG := g.Nodes[0].SubDAG
	for _, i := range []int{0, 1, 2} {
		if g.Nodes[i].SubDAG != evensSubDAG {
			t.Fatalf("node %d in sub-DAG %d, want %d (all part of the evens chain)", i, g.Nodes[i].SubDAG, evensSubDAG)
		}
	}
}

// TestOverlappingViewsShareOneSubDAG is the converse: any conflict at all
// between two instructions' views forces them into the same sub-DAG.
func TestOverlappingViewsShareOneSubDAG(t *testing.T) {
	b := base.New(typetag.Float64, 8)
	whole := mustView(t, b, 0, []int64{8}, []int64{1})
	evens := mustView(t, b, 0, []int64{4}, []int64{2})

	batch := recorder.Batch{Instructions: []instr.Instruction{
		add(whole, whole, whole),
		add(evens, evens, evens),
	}}
	g, err := Build(batch, alias.PreciseOracle{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.SubDAGs != 1 {
		t.Fatalf("SubDAGs = %d, want 1 (evens overlaps the whole view)", g.SubDAGs)
	}
}

func TestBuildRejectsInstructionWithNoOperands(t *testing.T) {
	batch := recorder.Batch{Instructions: []instr.Instruction{{Opcode: instr.OpAdd}}}
	if _, err := Build(batch, alias.PreciseOracle{}); err == nil {
		t.Fatal("expected an error building an instruction with no operands")
	}
}

func TestConservativeOracleMergesEverythingOnOneBase(t *testing.T) {
	b := base.New(typetag.Float64, 8)
	evens := mustView(t, b, 0, []int64{4}, []int64{2})
	odds := mustView(t, b, 1, []int64{4}, []int64{2})

	batch := recorder.Batch{Instructions: []instr.Instruction{
		add(evens, evens, evens),
		add(odds, odds, odds),
	}}
	g, err := Build(batch, alias.ConservativeOracle{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.SubDAGs != 1 {
		t.Fatalf("SubDAGs = %d, want 1 under the conservative oracle", g.SubDAGs)
	}
}
