package ibus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"net"
	"sync"

	"github.com/creachadair/mds/mapset"
	"github.com/go-ibus/ibus/transport"
	"github.com/go-ibus/ibus/wire"
)

// Dial connects to the IBus daemon at the given bus address and
// performs the connection handshake.
//
// Most callers want [Connect], which discovers the daemon's address
// on its own.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	t, err := transport.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return NewConn(ctx, t)
}

// NewConn performs the connection handshake over an established
// transport. NewConn takes ownership of t, and closes it when the
// connection shuts down.
func NewConn(ctx context.Context, t transport.Transport) (*Conn, error) {
	c := &Conn{
		t:        t,
		ord:      wire.NativeEndian,
		calls:    map[uint32]*pendingCall{},
		handlers: map[ifaceMember]HandlerFunc{},
		signals:  map[signalKey]mapset.Set[*signalHandler]{},
	}

	go c.readLoop()

	reply, err := c.Call(ctx, DBusName, DBusPath, ifaceDBus, "Hello")
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("getting bus client ID: %w", err)
	}
	name, ok := oneString(reply)
	if !ok {
		c.Close()
		return nil, DecodeError{fmt.Errorf("Hello reply signature %q, want \"s\"", SignatureOf(reply...))}
	}
	c.clientID = name

	return c, nil
}

// oneString unpacks a reply body consisting of a single string.
func oneString(body []Value) (string, bool) {
	if len(body) != 1 {
		return "", false
	}
	s, ok := body[0].(String)
	return string(s), ok
}

// Conn is a connection to an IBus daemon.
//
// A Conn carries method calls and signals for any number of input
// contexts. Its methods are safe for concurrent use.
type Conn struct {
	t        transport.Transport
	ord      wire.ByteOrder
	clientID string

	writeMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	lastSerial uint32
	calls      map[uint32]*pendingCall
	handlers   map[ifaceMember]HandlerFunc
	signals    map[signalKey]mapset.Set[*signalHandler]
	contexts   mapset.Set[*InputContext]
}

// ifaceMember names a method or signal within an interface.
type ifaceMember struct {
	Interface string
	Member    string
}

// signalKey identifies a signal source: emitting object, interface
// and signal name. Listeners are routed on the exact triple.
type signalKey struct {
	Path ObjectPath
	ifaceMember
}

type pendingCall struct {
	notify chan struct{}
	reply  *Message
	err    error
}

type signalHandler struct {
	fn func(*Message)
}

// A HandlerFunc handles a method call made by the bus or another
// peer against this connection. It returns the values of the reply
// body. Errors are reported to the caller as an error reply, using
// the name of a [CallError] or a generic failure name otherwise.
//
// Each call is handled on its own goroutine.
type HandlerFunc func(call *Message) ([]Value, error)

// Close closes the connection. Calls in flight fail with
// net.ErrClosed, and input contexts created on the connection stop
// delivering events.
func (c *Conn) Close() error {
	var (
		pend map[uint32]*pendingCall
		ics  mapset.Set[*InputContext]
	)
	{
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.closed = true
		pend, c.calls = c.calls, nil
		ics, c.contexts = c.contexts, nil
		c.signals = nil
		c.mu.Unlock()
	}
	for p := range maps.Values(pend) {
		p.err = net.ErrClosed
		close(p.notify)
	}
	for ic := range ics {
		ic.connClosed()
	}
	return c.t.Close()
}

// LocalName returns the connection's unique bus name, assigned by
// the daemon during the handshake.
func (c *Conn) LocalName() string {
	return c.clientID
}

func (c *Conn) nextSerial() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.lastSerial++
	return c.lastSerial, true
}

func (c *Conn) send(m *Message) error {
	bs, err := m.Encode(c.ord)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.t.Write(bs)
	return err
}

// Call calls a remote method and returns the values of its reply
// body.
//
// It is the caller's responsibility to supply arguments of the
// correct types for the method being called, and to check the shape
// of the reply.
func (c *Conn) Call(ctx context.Context, dest string, path ObjectPath, iface, method string, args ...Value) ([]Value, error) {
	return c.call(ctx, dest, path, iface, method, args, false)
}

// CallNoReply sends a method call with the NoReplyExpected flag set,
// and returns as soon as the message has been written.
func (c *Conn) CallNoReply(ctx context.Context, dest string, path ObjectPath, iface, method string, args ...Value) error {
	_, err := c.call(ctx, dest, path, iface, method, args, true)
	return err
}

func (c *Conn) call(ctx context.Context, dest string, path ObjectPath, iface, method string, args []Value, noReply bool) ([]Value, error) {
	var pending *pendingCall
	serial, ok := func() (uint32, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return 0, false
		}
		c.lastSerial++
		// Only calls that expect an answer get a slot for the reply
		// to land in.
		if !noReply {
			pending = &pendingCall{
				notify: make(chan struct{}, 1),
			}
			c.calls[c.lastSerial] = pending
		}
		return c.lastSerial, true
	}()
	if !ok {
		return nil, net.ErrClosed
	}
	if pending != nil {
		defer func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.calls[serial] == pending {
				delete(c.calls, serial)
			}
		}()
	}

	m := &Message{
		Type:        MsgCall,
		Serial:      serial,
		Path:        path,
		Interface:   iface,
		Member:      method,
		Destination: dest,
		Body:        args,
	}
	if noReply {
		m.Flags |= FlagNoReplyExpected
	}

	if err := c.send(m); err != nil {
		return nil, err
	}

	if pending == nil {
		return nil, nil
	}

	select {
	case <-pending.notify:
		if pending.err != nil {
			return nil, pending.err
		}
		return pending.reply.Body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// EmitSignal broadcasts a signal from the given object path.
func (c *Conn) EmitSignal(path ObjectPath, iface, member string, body ...Value) error {
	serial, ok := c.nextSerial()
	if !ok {
		return net.ErrClosed
	}
	return c.send(&Message{
		Type:      MsgSignal,
		Serial:    serial,
		Path:      path,
		Interface: iface,
		Member:    member,
		Body:      body,
	})
}

// Handle calls fn to handle incoming method calls to member on
// iface, on any object path. A nil fn removes the handler. Calls
// with no handler get an error reply naming the unknown method.
func (c *Conn) Handle(iface, member string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if fn == nil {
		delete(c.handlers, ifaceMember{iface, member})
		return
	}
	c.handlers[ifaceMember{iface, member}] = fn
}

// OnSignal registers fn to be called for every signal whose source
// object, interface and name all equal the given values.
//
// fn runs on the connection's read goroutine and must not block; a
// listener that needs to do slow work should hand the message off to
// its own goroutine. The returned function removes the registration.
//
// Closing the connection drops all registrations without notice: fn
// simply stops being called. A listener that needs to observe
// teardown can watch its own calls fail with [net.ErrClosed].
func (c *Conn) OnSignal(path ObjectPath, iface, member string, fn func(*Message)) (remove func()) {
	h := &signalHandler{fn}
	key := signalKey{path, ifaceMember{iface, member}}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	set, ok := c.signals[key]
	if !ok {
		set = mapset.New[*signalHandler]()
		c.signals[key] = set
	}
	set.Add(h)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		set, ok := c.signals[key]
		if !ok {
			return
		}
		delete(set, h)
		if len(set) == 0 {
			delete(c.signals, key)
		}
	}
}

// AddMatch asks the bus to deliver signals matching m to this
// connection.
func (c *Conn) AddMatch(ctx context.Context, m *Match) error {
	_, err := c.Call(ctx, DBusName, DBusPath, ifaceDBus, "AddMatch", String(m.String()))
	return err
}

// RemoveMatch withdraws a match previously added with AddMatch.
func (c *Conn) RemoveMatch(ctx context.Context, m *Match) error {
	_, err := c.Call(ctx, DBusName, DBusPath, ifaceDBus, "RemoveMatch", String(m.String()))
	return err
}

func (c *Conn) registerContext(ic *InputContext) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.contexts.Add(ic)
	return true
}

func (c *Conn) unregisterContext(ic *InputContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.contexts, ic)
}

func (c *Conn) readLoop() {
	for {
		m, err := ReadMessage(c.t)
		var de DecodeError
		switch {
		case errors.As(err, &de):
			// The malformed message was consumed in full, the stream
			// is still aligned to message boundaries.
			log.Printf("ibus: discarding message: %v", err)
			continue
		case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
			// Conn was shut down.
			return
		case errors.Is(err, io.EOF):
			// Daemon hung up.
			c.Close()
			return
		case err != nil:
			// Anything else means the stream is desynchronized,
			// which is fatal to the Conn.
			log.Printf("ibus: read error: %v", err)
			c.Close()
			return
		}
		c.dispatch(m)
	}
}

func (c *Conn) dispatch(m *Message) {
	switch m.Type {
	case MsgCall:
		go c.dispatchCall(m)
	case MsgReturn, MsgError:
		c.dispatchReply(m)
	case MsgSignal:
		c.dispatchSignal(m)
	default:
		// Unknown message types must be ignored.
	}
}

func (c *Conn) dispatchCall(m *Message) {
	handler := func() HandlerFunc {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.handlers[ifaceMember{m.Interface, m.Member}]
	}()

	if handler == nil {
		if m.WantReply() {
			c.sendReply(&Message{
				Type:        MsgError,
				Destination: m.Sender,
				ReplySerial: m.Serial,
				ErrName:     errNameUnknownMethod,
				Body: []Value{String(fmt.Sprintf("no method %q on interface %q",
					m.Member, m.Interface))},
			})
		}
		return
	}

	resp, err := handler(m)
	if !m.WantReply() {
		return
	}
	reply := &Message{
		Type:        MsgReturn,
		Destination: m.Sender,
		ReplySerial: m.Serial,
		Body:        resp,
	}
	if err != nil {
		name, detail := errNameFailed, err.Error()
		var ce CallError
		if errors.As(err, &ce) {
			name = ce.Name
			if ce.Detail != "" {
				detail = ce.Detail
			}
		}
		reply = &Message{
			Type:        MsgError,
			Destination: m.Sender,
			ReplySerial: m.Serial,
			ErrName:     name,
			Body:        []Value{String(detail)},
		}
	}
	c.sendReply(reply)
}

func (c *Conn) sendReply(m *Message) {
	serial, ok := c.nextSerial()
	if !ok {
		return
	}
	m.Serial = serial
	if err := c.send(m); err != nil {
		log.Printf("ibus: writing reply: %v", err)
	}
}

func (c *Conn) dispatchReply(m *Message) {
	pending := func() *pendingCall {
		c.mu.Lock()
		defer c.mu.Unlock()
		ret := c.calls[m.ReplySerial]
		delete(c.calls, m.ReplySerial)
		return ret
	}()

	if pending == nil {
		// Reply to a canceled or timed out call.
		return
	}

	if m.Type == MsgError {
		var detail string
		if len(m.Body) > 0 {
			if s, ok := m.Body[0].(String); ok {
				detail = string(s)
			}
		}
		pending.err = CallError{Name: m.ErrName, Detail: detail}
	} else {
		pending.reply = m
	}
	close(pending.notify)
}

func (c *Conn) dispatchSignal(m *Message) {
	key := signalKey{m.Path, ifaceMember{m.Interface, m.Member}}
	handlers := func() []*signalHandler {
		c.mu.Lock()
		defer c.mu.Unlock()
		set := c.signals[key]
		if len(set) == 0 {
			return nil
		}
		ret := make([]*signalHandler, 0, len(set))
		for h := range set {
			ret = append(ret, h)
		}
		return ret
	}()

	for _, h := range handlers {
		h.fn(m)
	}
}
