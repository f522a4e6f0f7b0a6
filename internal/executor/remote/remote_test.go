package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"bohrium/internal/base"
	"bohrium/internal/executor"
	"bohrium/internal/instr"
	"bohrium/internal/typetag"
	"bohrium/internal/view"
)

// startFakePeer runs a minimal server implementing the wire protocol's
// server side well enough to exercise the client: it acks init, assigns
// extension-function ids, and replies OK to every exec.
func startFakePeer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	nextID := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for {
			var msg wireMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case msgInit:
				conn.WriteJSON(wireMessage{Type: msgAck, OK: true})
			case msgRegFunc:
				id := nextID
				nextID++
				conn.WriteJSON(wireMessage{Type: msgAck, OK: true, ID: id})
			case msgExec:
				conn.WriteJSON(wireMessage{Type: msgAck, Status: executor.StatusOK})
			case msgShutdown:
				return
			}
		}
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestRemoteExecutor_InitRegisterExecuteShutdown(t *testing.T) {
	srv := startFakePeer(t)
	defer srv.Close()

	e := New(wsURL(srv.URL))
	ctx := context.Background()

	if err := e.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	id, ok := e.RegisterUserFunction("bh_random")
	if !ok {
		t.Fatal("RegisterUserFunction: ok=false")
	}
	id2, ok := e.RegisterUserFunction("bh_random")
	if !ok || id2 != id {
		t.Fatalf("RegisterUserFunction cache mismatch: %d vs %d", id, id2)
	}

	b := base.New(typetag.Float64, 4)
	b.AllocateHost()
	v, err := view.New(b, 0, []int64{4}, []int64{1})
	if err != nil {
		t.Fatalf("view.New: %v", err)
	}
	ins := instr.Instruction{Opcode: instr.OpAdd, Operands: []instr.Operand{instr.FromView(v), instr.FromView(v), instr.FromView(v)}}

	status, err := e.Execute(ctx, executor.Batch{SubDAG: 0, Instructions: []instr.Instruction{ins}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if status != executor.StatusOK {
		t.Fatalf("status = %v, want OK", status)
	}

	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
