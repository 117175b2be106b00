// Package ibustest provides a fake IBus daemon for tests to talk to.
package ibustest

import (
	"context"
	"fmt"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/taskgroup"
	"github.com/go-ibus/ibus"
	"github.com/go-ibus/ibus/wire"
)

// icIface is the interface input context signals are emitted on.
const icIface = "org.freedesktop.IBus.InputContext"

// A Daemon is an in-memory stand-in for ibus-daemon, attached to a
// client connection through a synchronous pipe. It answers the
// handshake and bookkeeping calls on its own and records everything
// it receives; test-specific behavior is scripted through the
// exported fields and the Emit and Call methods.
//
// The daemon writes big-endian messages, so tests exercise the byte
// order a client doesn't use natively.
type Daemon struct {
	t   *testing.T
	srv net.Conn
	ord wire.ByteOrder

	// KeyHandler answers ProcessKeyEvent calls. It runs on the
	// daemon's read loop, so a handler that blocks holds the key
	// event in flight and stalls the daemon until it returns. A nil
	// handler answers false.
	KeyHandler func(keyval, keycode, state uint32) bool

	// Engines is what the engine listing and lookup calls report.
	Engines []*ibus.EngineDesc

	tasks *taskgroup.Group

	writeMu sync.Mutex
	serial  uint32

	mu       sync.Mutex
	closed   bool
	calls    []*ibus.Message
	signals  []*ibus.Message
	matches  []string
	contexts []ibus.ObjectPath
	waiting  map[uint32]chan *ibus.Message
}

// New starts a fake daemon and returns it along with a client
// connection to it. Both shut down when the test ends.
func New(t *testing.T) (*Daemon, *ibus.Conn) {
	t.Helper()
	cli, srv := net.Pipe()
	d := &Daemon{t: t, srv: srv, ord: wire.BigEndian, waiting: map[uint32]chan *ibus.Message{}}
	d.tasks = taskgroup.New(nil)
	d.tasks.Go(d.serve)
	t.Cleanup(d.close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := ibus.NewConn(ctx, cli)
	if err != nil {
		t.Fatalf("connecting to fake daemon: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return d, conn
}

func (d *Daemon) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	d.srv.Close()
	d.tasks.Wait()
}

func (d *Daemon) serve() error {
	for {
		m, err := ibus.ReadMessage(d.srv)
		if err != nil {
			// The client hanging up is the normal end of a test.
			return nil
		}
		d.handle(m)
	}
}

func (d *Daemon) handle(m *ibus.Message) {
	switch m.Type {
	case ibus.MsgSignal:
		d.mu.Lock()
		defer d.mu.Unlock()
		d.signals = append(d.signals, m)
		return
	case ibus.MsgReturn, ibus.MsgError:
		d.mu.Lock()
		ch := d.waiting[m.ReplySerial]
		delete(d.waiting, m.ReplySerial)
		d.mu.Unlock()
		if ch != nil {
			ch <- m
		}
		return
	case ibus.MsgCall:
	default:
		return
	}

	d.mu.Lock()
	d.calls = append(d.calls, m)
	d.mu.Unlock()

	switch m.Member {
	case "Hello":
		d.reply(m, ibus.String(":1.1"))

	case "AddMatch":
		rule, ok := bodyString(m)
		if !ok {
			d.replyInvalidArgs(m)
			return
		}
		d.mu.Lock()
		d.matches = append(d.matches, rule)
		d.mu.Unlock()
		d.reply(m)

	case "RemoveMatch":
		rule, ok := bodyString(m)
		if !ok {
			d.replyInvalidArgs(m)
			return
		}
		d.mu.Lock()
		if i := slices.Index(d.matches, rule); i >= 0 {
			d.matches = slices.Delete(d.matches, i, i+1)
		}
		d.mu.Unlock()
		d.reply(m)

	case "CreateInputContext":
		if _, ok := bodyString(m); !ok {
			d.replyInvalidArgs(m)
			return
		}
		d.mu.Lock()
		path := ibus.ObjectPath(fmt.Sprintf("/org/freedesktop/IBus/InputContext_%d", len(d.contexts)+1))
		d.contexts = append(d.contexts, path)
		d.mu.Unlock()
		d.reply(m, path)

	case "ProcessKeyEvent":
		if got := ibus.SignatureOf(m.Body...).String(); got != "uuu" {
			d.replyInvalidArgs(m)
			return
		}
		handled := false
		if d.KeyHandler != nil {
			handled = d.KeyHandler(
				uint32(m.Body[0].(ibus.Uint32)),
				uint32(m.Body[1].(ibus.Uint32)),
				uint32(m.Body[2].(ibus.Uint32)))
		}
		d.reply(m, ibus.Bool(handled))

	case "GetAddress":
		d.reply(m, ibus.String("unix:path=/nonexistent/ibustest.sock"))

	case "CurrentInputContext":
		d.mu.Lock()
		n := len(d.contexts)
		var last ibus.ObjectPath
		if n > 0 {
			last = d.contexts[n-1]
		}
		d.mu.Unlock()
		if last == "" {
			d.replyErr(m, "org.freedesktop.DBus.Error.Failed", "no input context")
			return
		}
		d.reply(m, last)

	case "ListEngines", "ListActiveEngines":
		vals := make([]ibus.Value, len(d.Engines))
		for i, e := range d.Engines {
			vals[i] = e.Variant()
		}
		d.reply(m, ibus.Array{Elem: ibus.MustParseSignature("v"), Values: vals})

	case "GetGlobalEngine", "GetEngine":
		if len(d.Engines) == 0 {
			d.replyErr(m, "org.freedesktop.DBus.Error.Failed", "no engine available")
			return
		}
		d.reply(m, d.Engines[0].Variant())

	case "FocusIn", "FocusOut", "Reset", "SetCapabilities",
		"SetCursorLocation", "SetSurroundingText", "PropertyActivate",
		"SetEngine", "SetGlobalEngine", "Exit", "Destroy",
		"Enable", "Disable", "CandidateClicked":
		d.reply(m)

	default:
		d.replyErr(m, "org.freedesktop.DBus.Error.UnknownMethod",
			fmt.Sprintf("no method %q", m.Member))
	}
}

func bodyString(m *ibus.Message) (string, bool) {
	if len(m.Body) != 1 {
		return "", false
	}
	s, ok := m.Body[0].(ibus.String)
	return string(s), ok
}

func (d *Daemon) send(m *ibus.Message) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if m.Serial == 0 {
		d.serial++
		m.Serial = d.serial
	}
	bs, err := m.Encode(d.ord)
	if err != nil {
		d.t.Errorf("encoding daemon message: %v", err)
		return
	}
	// Write errors mean the client hung up mid-test; the test will
	// notice on its own.
	d.srv.Write(bs)
}

func (d *Daemon) nextSerial() uint32 {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.serial++
	return d.serial
}

// Call sends a method call to the client, as the daemon does when it
// asks an engine factory for a new engine, and waits for the reply.
// Error replies are returned as an [ibus.CallError].
func (d *Daemon) Call(path ibus.ObjectPath, iface, member string, args ...ibus.Value) ([]ibus.Value, error) {
	m := &ibus.Message{
		Type:        ibus.MsgCall,
		Serial:      d.nextSerial(),
		Path:        path,
		Interface:   iface,
		Member:      member,
		Destination: ":1.1",
		Sender:      ibus.BusName,
		Body:        args,
	}
	ch := make(chan *ibus.Message, 1)
	d.mu.Lock()
	d.waiting[m.Serial] = ch
	d.mu.Unlock()
	d.send(m)

	select {
	case reply := <-ch:
		if reply.Type == ibus.MsgError {
			var detail string
			if len(reply.Body) > 0 {
				if s, ok := reply.Body[0].(ibus.String); ok {
					detail = string(s)
				}
			}
			return nil, ibus.CallError{Name: reply.ErrName, Detail: detail}
		}
		return reply.Body, nil
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("no reply to %s.%s after 10s", iface, member)
	}
}

func (d *Daemon) reply(m *ibus.Message, body ...ibus.Value) {
	if !m.WantReply() {
		return
	}
	d.send(&ibus.Message{
		Type:        ibus.MsgReturn,
		ReplySerial: m.Serial,
		Destination: m.Sender,
		Body:        body,
	})
}

func (d *Daemon) replyErr(m *ibus.Message, name, detail string) {
	if !m.WantReply() {
		return
	}
	d.send(&ibus.Message{
		Type:        ibus.MsgError,
		ReplySerial: m.Serial,
		Destination: m.Sender,
		ErrName:     name,
		Body:        []ibus.Value{ibus.String(detail)},
	})
}

func (d *Daemon) replyInvalidArgs(m *ibus.Message) {
	d.replyErr(m, "org.freedesktop.DBus.Error.InvalidArgs",
		fmt.Sprintf("bad arguments %q for %s", ibus.SignatureOf(m.Body...), m.Member))
}

// Emit sends a signal to the client as if from the daemon.
func (d *Daemon) Emit(path ibus.ObjectPath, iface, member string, body ...ibus.Value) {
	d.send(&ibus.Message{
		Type:      ibus.MsgSignal,
		Path:      path,
		Interface: iface,
		Member:    member,
		Body:      body,
	})
}

// EmitCommitText sends a CommitText signal to the context at path.
func (d *Daemon) EmitCommitText(path ibus.ObjectPath, text ibus.Text) {
	d.Emit(path, icIface, "CommitText", text.Variant())
}

// EmitUpdatePreeditText sends an UpdatePreeditText signal to the
// context at path.
func (d *Daemon) EmitUpdatePreeditText(path ibus.ObjectPath, text ibus.Text, cursor uint32, visible bool) {
	d.Emit(path, icIface, "UpdatePreeditText", text.Variant(), ibus.Uint32(cursor), ibus.Bool(visible))
}

// Calls returns the method calls received so far, oldest first.
func (d *Daemon) Calls() []*ibus.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

// CallsTo returns the received calls to the named method, oldest
// first.
func (d *Daemon) CallsTo(member string) []*ibus.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ret []*ibus.Message
	for _, m := range d.calls {
		if m.Member == member {
			ret = append(ret, m)
		}
	}
	return ret
}

// Signals returns the signals received from the client, oldest first.
func (d *Daemon) Signals() []*ibus.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.signals)
}

// Matches returns the match rules the client has added and not yet
// removed, in order of addition.
func (d *Daemon) Matches() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.matches)
}

// Contexts returns the object paths of the input contexts created so
// far.
func (d *Daemon) Contexts() []ibus.ObjectPath {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.contexts)
}
