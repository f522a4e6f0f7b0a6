// Package remote is a websocket-transport Executor: it ships a Batch to a
// remote process and reports back whatever status/error it returns.
// Grounded on original_source/vem/cluster/bh_vem_cluster_slave.cpp's
// dispatch-message loop (BH_CLUSTER_DISPATCH_INIT/SHUTDOWN/UFUNC/EXEC) and
// original_source/vem/cluster/comm.cpp's comm_array_data (gather array
// data alongside the instruction list so a node with no local copy of a
// Base can still execute against it), with MPI's process-grid broadcast
// simplified to a single point-to-point websocket connection (this core
// has no cluster/process-grid layer, the design — only the Executor
// Interface boundary is in scope).
package remote

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bohrium/internal/base"
	"bohrium/internal/errorsx"
	"bohrium/internal/executor"
	"bohrium/internal/instr"
	"bohrium/internal/view"
)

// messageType mirrors the dispatch message kinds
// bh_vem_cluster_slave.cpp's main loop switches on.
type messageType string

const (
	msgInit messageType = "init"
	msgShutdown messageType = "shutdown"
	msgRegFunc messageType = "reg_func"
	msgExec messageType = "exec"
	msgAck messageType = "ack"
)

type wireMessage struct {
	Type messageType `json:"type"`
	Name string `json:"name,omitempty"`
	ID int `json:"id,omitempty"`
	Batch *wireBatch `json:"batch,omitempty"`
	Status executor.Status `json:"status,omitempty"`
	ErrText string `json:"error,omitempty"`
	OK bool `json:"ok,omitempty"`
}

type wireBatch struct {
	SubDAG int `json:"sub_dag"`
	Instructions []wireInstruction `json:"instructions"`
}

type wireInstruction struct {
	Opcode instr.Opcode `json:"opcode"`
	ExtName string `json:"ext_name,omitempty"`
	Operands []wireOperand `json:"operands"`
}

type wireOperand struct {
	IsConst bool `json:"is_const"`
	ConstHex uint64 `json:"const_bits,omitempty"`
	ConstF float64 `json:"const_float,omitempty"`
	ConstInt bool `json:"const_is_int,omitempty"`

	Handle string `json:"handle,omitempty"`
	Tag byte `json:"tag,omitempty"`
	Count int64 `json:"count,omitempty"`
	Start int64 `json:"start,omitempty"`
	Shape []int64 `json:"shape,omitempty"`
	Stride []int64 `json:"stride,omitempty"`
	// Data carries the Base's bytes the first time the remote side sees a
	// handle, the simplified stand-in for comm_array_data's gather step.
	Data []byte `json:"data,omitempty"`
}

// Executor connects to a single peer over a websocket and forwards
// Batches to it. Known Bases are tracked by Handle so their bytes are only
// shipped once per connection (comm.cpp tracks the same thing via its
// dispatch array-id maps).
type Executor struct {
	url string
	dialer *websocket.Dialer

	mu sync.Mutex
	callMu sync.Mutex // serializes Execute's request/reply exchange on conn
	conn *websocket.Conn
	sent map[base.Handle]bool
	extFuncs map[string]int
}

// New creates a remote Executor that dials url on Init.
func New(url string) *Executor {
	return &Executor{
		url: url,
		dialer: websocket.DefaultDialer,
		sent: make(map[base.Handle]bool),
		extFuncs: make(map[string]int),
	}
}

func (e *Executor) Init(ctx context.Context) error {
	conn, _, err := e.dialer.DialContext(ctx, e.url, nil)
	if err != nil {
		return errorsx.Wrap(err, errorsx.ExecutorFailure, "remote.Init", "dial %s", e.url)
	}
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	if err := e.send(wireMessage{Type: msgInit}); err != nil {
		return err
	}
	_, err = e.recvAck()
	return err
}

// RegisterUserFunction dispatches BH_CLUSTER_DISPATCH_UFUNC-style
// registration, caching the assigned id locally so repeat calls for the
// same name are free.
func (e *Executor) RegisterUserFunction(name string) (int, bool) {
	e.mu.Lock()
	if id, ok := e.extFuncs[name]; ok {
		e.mu.Unlock()
		return id, true
	}
	e.mu.Unlock()

	if err := e.send(wireMessage{Type: msgRegFunc, Name: name}); err != nil {
		return 0, false
	}
	reply, err := e.recvAck()
	if err != nil || !reply.OK {
		return 0, false
	}
	e.mu.Lock()
	e.extFuncs[name] = reply.ID
	e.mu.Unlock()
	return reply.ID, true
}

func (e *Executor) Execute(ctx context.Context, batch executor.Batch) (executor.Status, error) {
	e.callMu.Lock()
	defer e.callMu.Unlock()
	wb, err := e.encodeBatch(batch)
	if err != nil {
		return executor.StatusFailed, err
	}
	if err := e.send(wireMessage{Type: msgExec, Batch: wb}); err != nil {
		return executor.StatusFailed, err
	}
	reply, err := e.recvAck()
	if err != nil {
		return executor.StatusFailed, err
	}
	if reply.ErrText != "" {
		return reply.Status, errorsx.New(errorsx.ExecutorFailure, "remote.Execute", "%s", reply.ErrText)
	}
	return reply.Status, nil
}

func (e *Executor) Shutdown(ctx context.Context) error {
	if err := e.send(wireMessage{Type: msgShutdown}); err != nil {
		return err
	}
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (e *Executor) send(msg wireMessage) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return errorsx.New(errorsx.ExecutorFailure, "remote.send", "not connected")
	}
	if err := conn.SetWriteDeadline(time.Now().Add(30 * time.Second)); err != nil {
		return errorsx.Wrap(err, errorsx.ExecutorFailure, "remote.send", "set write deadline")
	}
	if err := conn.WriteJSON(msg); err != nil {
		return errorsx.Wrap(err, errorsx.ExecutorFailure, "remote.send", "write %s message", msg.Type)
	}
	return nil
}

func (e *Executor) recvAck() (wireMessage, error) {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return wireMessage{}, errorsx.New(errorsx.ExecutorFailure, "remote.recvAck", "not connected")
	}
	var reply wireMessage
	if err := conn.ReadJSON(&reply); err != nil {
		return wireMessage{}, errorsx.Wrap(err, errorsx.ExecutorFailure, "remote.recvAck", "read reply")
	}
	return reply, nil
}

func (e *Executor) encodeBatch(batch executor.Batch) (*wireBatch, error) {
	wb := &wireBatch{SubDAG: batch.SubDAG}
	for _, ins := range batch.Instructions {
		wi := wireInstruction{Opcode: ins.Opcode, ExtName: ins.ExtName}
		for _, op := range ins.Operands {
			wo, err := e.encodeOperand(op)
			if err != nil {
				return nil, err
			}
			wi.Operands = append(wi.Operands, wo)
		}
		wb.Instructions = append(wb.Instructions, wi)
	}
	return wb, nil
}

func (e *Executor) encodeOperand(op instr.Operand) (wireOperand, error) {
	if op.IsConst {
		return wireOperand{
			IsConst: true,
			ConstHex: op.Constant.Bits,
			ConstF: op.Constant.Float,
			ConstInt: op.Constant.IsInt,
		}, nil
	}
	v := op.View
	if v.Base == nil {
		return wireOperand{}, errorsx.New(errorsx.ShapeMismatch, "remote.encodeOperand", "view operand has no Base")
	}
	wo := wireOperand{
		Handle: v.Base.Handle().String(),
		Tag: byte(v.Base.Tag()),
		Count: v.Base.ElementCount(),
		Start: v.Start,
		Shape: v.ShapeSlice(),
		Stride: v.StrideSlice(),
	}
	e.mu.Lock()
	seen := e.sent[v.Base.Handle()]
	if !seen {
		e.sent[v.Base.Handle()] = true
	}
	e.mu.Unlock()
	if !seen {
		wo.Data = v.Base.Data
	}
	return wo, nil
}

// DecodeView reconstructs a View from a wire-format operand against a
// known Base; a test double or a real remote peer implementing this
// protocol's server side uses it to rebuild operands from the JSON batch.
func DecodeView(wo wireOperand, b *base.Base) (view.View, error) {
	return view.New(b, wo.Start, wo.Shape, wo.Stride)
}
