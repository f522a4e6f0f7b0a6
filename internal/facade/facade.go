// Package facade is the Recorder API surface the design specifies: the
// one entry point callers use to allocate Bases and Views, record
// Instructions, and trigger a flush that runs the whole pipeline — Lifecycle
// Manager, Flow Graph Builder, then fan-out to the Executor Interface
// across independent sub-DAGs.
package facade

import (
	"context"
	"os"
	"sync"
	"time"

	"bohrium/internal/alias"
	"bohrium/internal/base"
	"bohrium/internal/config"
	"bohrium/internal/dispatch"
	"bohrium/internal/errorsx"
	"bohrium/internal/executor"
	"bohrium/internal/flow"
	"bohrium/internal/graphdump"
	"bohrium/internal/graphstore"
	"bohrium/internal/instr"
	"bohrium/internal/lifecycle"
	"bohrium/internal/recorder"
	"bohrium/internal/typetag"
	"bohrium/internal/view"
)

// Facade ties every component together behind the Recorder API surface.
type Facade struct {
	opts config.Options

	rec *recorder.Recorder
	oracle alias.Oracle
	lifecycle *lifecycle.Manager
	pool *dispatch.Pool
	exec executor.Executor
	store *graphstore.Store

	mu sync.Mutex
	lastGraph *flow.Graph
}

// New constructs a Facade dispatching flushed batches to exec. If
// opts.GraphStoreType is set, a graphstore.Store is opened and every flush
// is recorded to it.
func New(opts config.Options, exec executor.Executor) (*Facade, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	pool := dispatch.New(exec, 0, opts.BatchSize+1)
	if err := pool.Start(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ExecutorFailure, "facade.New", "start dispatch pool")
	}

	if err := exec.Init(context.Background()); err != nil {
		pool.Stop()
		return nil, errorsx.Wrap(err, errorsx.ExecutorFailure, "facade.New", "init executor")
	}

	var store *graphstore.Store
	if opts.GraphStoreType != "" {
		s, err := graphstore.Open(opts.GraphStoreType, opts.GraphStoreDSN)
		if err != nil {
			pool.Stop()
			return nil, err
		}
		if err := s.Init(context.Background()); err != nil {
			pool.Stop()
			return nil, err
		}
		store = s
	}

	return &Facade{
		opts: opts,
		rec: recorder.New(opts.BatchSize),
		oracle: alias.PreciseOracle{},
		lifecycle: lifecycle.NewManager(),
		pool: pool,
		exec: exec,
		store: store,
	}, nil
}

// NewBase allocates a Base for count elements of the given type.
func (f *Facade) NewBase(tag typetag.Tag, count int64) *base.Base {
	return base.New(tag, count)
}

// NewView constructs a View against b and retains it, since a live View
// keeps its Base's refcount above zero.
func (f *Facade) NewView(b *base.Base, start int64, shape, stride []int64) (view.View, error) {
	v, err := view.New(b, start, shape, stride)
	if err != nil {
		return view.View{}, err
	}
	b.Retain()
	return v, nil
}

// Record appends one Instruction to the Recorder. If this crosses a flush
// trigger, the accumulated batch runs through the full pipeline (Lifecycle
// Manager, then Flow Graph Builder, then Executor dispatch) before
// Record returns: a flush is a synchronous barrier.
func (f *Facade) Record(ctx context.Context, ins instr.Instruction) error {
	batch, err := f.rec.Record(ins)
	if err != nil {
		return err
	}
	if batch == nil {
		return nil
	}
	return f.runBatch(ctx, *batch)
}

// Flush forces out whatever is pending, running it through the pipeline.
// A no-op on an empty Recorder.
func (f *Facade) Flush(ctx context.Context) error {
	batch := f.rec.Flush()
	if batch == nil {
		return nil
	}
	return f.runBatch(ctx, *batch)
}

// Sync records an OpSync instruction against v, which always makes the
// Recorder cut everything pending, the sync included, into a forced-flush
// batch: a materializing read is exactly
// the "operation on a View that forces materialization" the design names
// as the second kind of suspension point, alongside Flush itself.
func (f *Facade) Sync(ctx context.Context, v view.View) error {
	return f.Record(ctx, instr.Instruction{Opcode: instr.OpSync, Operands: []instr.Operand{instr.FromView(v)}})
}

// Discard records an OpDiscard instruction against v. The Lifecycle
// Manager decrements v's Base refcount and, once it reaches zero, decides
// whether a discard actually needs forwarding to the Executor.
func (f *Facade) Discard(ctx context.Context, v view.View) error {
	return f.Record(ctx, instr.Instruction{Opcode: instr.OpDiscard, Operands: []instr.Operand{instr.FromView(v)}})
}

// Free records an OpFree (release) instruction against b. The design's
// operand model only carries Views, not bare Base handles, so Free builds
// a rank-0 View standing for the whole Base — the same proxy the naive and
// remote executors already treat an OpFree's write operand as.
func (f *Facade) Free(ctx context.Context, b *base.Base) error {
	v, err := view.New(b, 0, nil, nil)
	if err != nil {
		return err
	}
	return f.Record(ctx, instr.Instruction{Opcode: instr.OpFree, Operands: []instr.Operand{instr.FromView(v)}})
}

// FlushAndRepeat flushes the pending batch n times in a row, returning on
// the first error.
func (f *Facade) FlushAndRepeat(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := f.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FlushAndRepeatWhile flushes up to n times, checking cond's materialized
// value after each flush and stopping as soon as it reads all-zero
// ("false"), the way a façade-level do/while loop construct over a
// recorded condition would.
func (f *Facade) FlushAndRepeatWhile(ctx context.Context, n int, cond view.View) error {
	for i := 0; i < n; i++ {
		if err := f.Flush(ctx); err != nil {
			return err
		}
		data, err := f.DataGet(ctx, cond, true, true, false)
		if err != nil {
			return err
		}
		if !anyNonZero(data) {
			return nil
		}
	}
	return nil
}

func anyNonZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return true
		}
	}
	return false
}

// MessageExecutor is an optional capability an Executor may implement to
// receive Message's opaque pass-through string; not part of the core
// executor.Executor contract since the design specifies message() purely
// as a Recorder API convenience, not an Executor Interface method.
type MessageExecutor interface {
	Message(ctx context.Context, msg string) (string, error)
}

// Message opaquely passes msg through to the Executor if it implements
// MessageExecutor, otherwise echoes it back unchanged.
func (f *Facade) Message(ctx context.Context, msg string) (string, error) {
	if me, ok := f.exec.(MessageExecutor); ok {
		return me.Message(ctx, msg)
	}
	return msg, nil
}

// DataGet forces materialization of v (via Sync) and returns a copy of its
// elements as raw bytes in row-major order. forceAlloc allocates host
// storage first if the Base has none yet; without copyToHost the Base must
// already be host-resident (this reference core never actually populates Device
// storage, so a false copyToHost against a non-Host Base is rejected
// rather than silently misread); nullify zeroes the source bytes after the
// copy, handing the caller the only remaining copy of the data.
func (f *Facade) DataGet(ctx context.Context, v view.View, copyToHost, forceAlloc, nullify bool) ([]byte, error) {
	if err := f.Sync(ctx, v); err != nil {
		return nil, err
	}
	b := v.Base
	if b == nil {
		return nil, errorsx.New(errorsx.ShapeMismatch, "facade.DataGet", "view has no Base")
	}
	if forceAlloc {
		b.AllocateHost()
	}
	if !copyToHost && b.AllocState() != base.Host {
		return nil, errorsx.New(errorsx.ShapeMismatch, "facade.DataGet", "Base is not host-resident and copyToHost was not requested")
	}

	width := int64(b.Tag().Width())
	out := make([]byte, v.Size()*width)
	pos := int64(0)
	err := view.ForEachIndex(v.ShapeSlice(), func(idx []int64) error {
		off := v.Offset(idx) * width
		if off < 0 || off+width > int64(len(b.Data)) {
			return errorsx.New(errorsx.ShapeMismatch, "facade.DataGet", "offset %d out of range for Base of %d bytes", off, len(b.Data))
		}
		src := b.Data[off : off+width]
		copy(out[pos:pos+width], src)
		if nullify {
			for i := range src {
				src[i] = 0
			}
		}
		pos += width
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DataSet writes data into v's elements in row-major order, allocating
// host storage first if the Base has none yet. hostPtrFlag is accepted to
// match the design's signature but does not change behavior here: this
// reference core models storage as a flat host buffer regardless of the
// caller's pointer kind, since the caching/device-allocator layer that
// would give hostPtrFlag operational meaning is out of scope (§1).
func (f *Facade) DataSet(ctx context.Context, v view.View, hostPtrFlag bool, data []byte) error {
	b := v.Base
	if b == nil {
		return errorsx.New(errorsx.ShapeMismatch, "facade.DataSet", "view has no Base")
	}
	b.AllocateHost()

	width := int64(b.Tag().Width())
	if need := v.Size() * width; int64(len(data)) < need {
		return errorsx.New(errorsx.ShapeMismatch, "facade.DataSet", "data too short: got %d bytes, need %d", len(data), need)
	}

	pos := int64(0)
	return view.ForEachIndex(v.ShapeSlice(), func(idx []int64) error {
		off := v.Offset(idx) * width
		if off < 0 || off+width > int64(len(b.Data)) {
			return errorsx.New(errorsx.ShapeMismatch, "facade.DataSet", "offset %d out of range for Base of %d bytes", off, len(b.Data))
		}
		copy(b.Data[off:off+width], data[pos:pos+width])
		pos += width
		return nil
	})
}

// LastGraph returns the most recently built Graph, or nil if none has been
// built yet. Used by graphdump callers and tests; not part of the
// Recorder API surface callers otherwise need.
func (f *Facade) LastGraph() *flow.Graph {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastGraph
}

func (f *Facade) runBatch(ctx context.Context, batch recorder.Batch) error {
	forwarded, err := f.lifecycle.ApplyBatch(batch.Instructions)
	if err != nil {
		return err
	}
	if len(forwarded) == 0 {
		return nil
	}

	g, err := flow.Build(recorder.Batch{Instructions: forwarded, Reason: batch.Reason}, f.oracle)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.lastGraph = g
	f.mu.Unlock()

	if f.opts.DebugGraphPath != "" {
		if err := f.dumpGraph(g); err != nil {
			return err
		}
	}
	if f.store != nil {
		if err := f.store.RecordGraph(ctx, batch.Reason.String(), g, time.Now()); err != nil {
			return err
		}
	}

	return f.dispatchSubDAGs(ctx, g, forwarded)
}

// dispatchSubDAGs groups forwarded by the sub-DAG its node belongs to and
// submits one Batch per sub-DAG to the dispatch pool, then waits for every
// result: independent sub-DAGs may run concurrently, but this flush does
// not return until all of them have.
func (f *Facade) dispatchSubDAGs(ctx context.Context, g *flow.Graph, forwarded []instr.Instruction) error {
	subDAGOf := make(map[int]int, len(forwarded))
	for _, n := range g.Nodes {
		subDAGOf[n.InstrIndex] = n.SubDAG
	}

	groups := make(map[int][]instr.Instruction, g.SubDAGs)
	for i, ins := range forwarded {
		id := subDAGOf[i]
		groups[id] = append(groups[id], ins)
	}

	for id, instrs := range groups {
		f.pool.Submit(executor.Batch{SubDAG: id, Instructions: instrs})
	}

	var firstErr error
	for range groups {
		select {
		case res := <-f.pool.Results():
			if res.Err != nil && firstErr == nil {
				firstErr = res.Err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return firstErr
}

func (f *Facade) dumpGraph(g *flow.Graph) error {
	file, err := os.Create(f.opts.DebugGraphPath)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ExecutorFailure, "facade.dumpGraph", "open %s", f.opts.DebugGraphPath)
	}
	defer file.Close()
	if err := graphdump.WriteText(file, g); err != nil {
		return err
	}

	dotPath := f.opts.DebugGraphPath + ".dot"
	dotFile, err := os.Create(dotPath)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ExecutorFailure, "facade.dumpGraph", "open %s", dotPath)
	}
	defer dotFile.Close()
	return graphdump.WriteDOT(dotFile, g)
}

// Close shuts down the dispatch pool, the Executor, and the history sink
// if one is configured.
func (f *Facade) Close(ctx context.Context) error {
	f.pool.Stop()
	err := f.exec.Shutdown(ctx)
	if f.store != nil {
		f.store.Close()
	}
	return err
}
