// cmd/bohriumctl/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"bohrium/internal/config"
	"bohrium/internal/executor/naive"
	"bohrium/internal/facade"
	"bohrium/internal/graphdump"
	"bohrium/internal/instr"
	"bohrium/internal/typetag"
)

const version = "0.1.0"

// Command aliases mapping, the same shorthand style cmd/sentra uses.
var commandAliases = map[string]string{
	"v": "version",
	"d": "demo",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
	case "--version", "-v", "version":
		fmt.Println("bohriumctl " + version)
	case "demo":
		if err := runDemo(args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, "bohriumctl: "+err.Error())
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "bohriumctl: unknown command %q\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`bohriumctl - dataflow core inspection tool

Usage:
  bohriumctl <command>

Commands:
  demo       build a small flow graph against the naive executor and print its dump
  version    print the version
  help       show this message

Demo flags (all optional):
  --debug-graph-path=PATH   also write the text+DOT flow-graph dump to PATH(.dot)
  --graphstore=TYPE:DSN     also persist a one-row flush summary via graphstore`)
}

// runDemo records a handful of instructions against a fresh Facade, flushes
// them through the naive executor, and prints the resulting flow graph.
// Passing --debug-graph-path and/or --graphstore additionally exercises the
// debug dump and SQL history sink this build wires alongside the core.
func runDemo(args []string) error {
	ctx := context.Background()
	opts := config.Default()
	opts.BatchSize = 0

	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "--debug-graph-path="):
			opts.DebugGraphPath = strings.TrimPrefix(a, "--debug-graph-path=")
		case strings.HasPrefix(a, "--graphstore="):
			typeAndDSN := strings.TrimPrefix(a, "--graphstore=")
			parts := strings.SplitN(typeAndDSN, ":", 2)
			if len(parts) != 2 {
				return fmt.Errorf("--graphstore wants TYPE:DSN, got %q", typeAndDSN)
			}
			opts.GraphStoreType, opts.GraphStoreDSN = parts[0], parts[1]
		default:
			return fmt.Errorf("unknown demo flag %q", a)
		}
	}

	f, err := facade.New(opts, naive.New())
	if err != nil {
		return err
	}
	defer f.Close(ctx)

	a := f.NewBase(typetag.Float64, 8)
	out := f.NewBase(typetag.Float64, 8)

	va, err := f.NewView(a, 0, []int64{8}, []int64{1})
	if err != nil {
		return err
	}
	vout, err := f.NewView(out, 0, []int64{8}, []int64{1})
	if err != nil {
		return err
	}
	evens, err := f.NewView(out, 0, []int64{4}, []int64{2})
	if err != nil {
		return err
	}

	if err := f.Record(ctx, instr.Instruction{
		Opcode:   instr.OpIdentity,
		Operands: []instr.Operand{instr.FromView(vout), instr.FromView(va)},
	}); err != nil {
		return err
	}
	if err := f.Record(ctx, instr.Instruction{
		Opcode:   instr.OpAdd,
		Operands: []instr.Operand{instr.FromView(evens), instr.FromView(evens), instr.FromView(evens)},
	}); err != nil {
		return err
	}
	if err := f.Flush(ctx); err != nil {
		return err
	}

	g := f.LastGraph()
	if g == nil {
		return fmt.Errorf("no graph was built")
	}
	fmt.Print(graphdump.Text(g))
	fmt.Printf("sub-DAGs: %d\n", g.SubDAGs)
	return nil
}
