package ibus

import (
	"context"
	"errors"
	"log"
	"net"
	"slices"
	"sync"

	"github.com/creachadair/mds/queue"
)

// An InputContext is one text entry session with the IBus daemon,
// usually corresponding to one focused widget or terminal. The engine
// pushes composition feedback to the context as signals; the context
// decodes them, tracks the resulting state, and hands them to the
// caller's [Callbacks].
//
// A context is live until [InputContext.Destroy] is called or its
// connection closes. Every method of a dead context reports
// [net.ErrClosed].
type InputContext struct {
	p     proxy
	match *Match

	removeListeners []func()
	wakePump        chan struct{}
	stopPump        chan struct{}

	mu        sync.Mutex
	destroyed bool
	cb        Callbacks
	queue     queue.Queue[func()]

	focused        bool
	caps           Capability
	keyBusy        bool
	preedit        Text
	preeditCursor  uint32
	preeditVisible bool
	aux            Text
	auxVisible     bool
	table          LookupTable
	tableVisible   bool
	props          []Property
}

// Callbacks receive engine feedback for one input context. All fields
// are optional; events with no callback still update the context's
// state accessors. Callbacks run one at a time on a goroutine owned
// by the context, in the order the daemon sent the events, so they
// may call back into the context freely.
type Callbacks struct {
	// CommitText delivers finished text for insertion at the cursor.
	CommitText func(text Text)
	// UpdatePreeditText replaces the composition-in-progress shown at
	// the cursor. cursor is a rune offset into the new text.
	UpdatePreeditText func(text Text, cursor uint32, visible bool)
	ShowPreeditText   func()
	HidePreeditText   func()
	// UpdateAuxiliaryText replaces the side note some engines show
	// next to the composition, such as a raw input echo.
	UpdateAuxiliaryText func(text Text, visible bool)
	ShowAuxiliaryText   func()
	HideAuxiliaryText   func()
	// UpdateLookupTable replaces the candidate table. Only sent when
	// the context claims [CapLookupTable].
	UpdateLookupTable func(table LookupTable, visible bool)
	ShowLookupTable   func()
	HideLookupTable   func()
	// ForwardKeyEvent asks the client to process a key event itself,
	// bypassing the engine.
	ForwardKeyEvent func(keyval, keycode uint32, state Modifier)
	// DeleteSurroundingText asks the client to delete nChars runes
	// starting offset runes from the cursor (offset may be negative).
	DeleteSurroundingText func(offset int32, nChars uint32)
	// RegisterProperties replaces the engine's property tree.
	RegisterProperties func(props []Property)
	// UpdateProperty refreshes a single property of the tree.
	UpdateProperty func(prop Property)
}

func newInputContext(ctx context.Context, c *Conn, path ObjectPath) (*InputContext, error) {
	ic := &InputContext{
		p:        proxy{c, BusName, path, ifaceIC},
		match:    MatchAllSignals().Object(path).Interface(ifaceIC),
		wakePump: make(chan struct{}, 1),
		stopPump: make(chan struct{}),
	}
	listeners := []struct {
		member string
		fn     func(*Message)
	}{
		{"CommitText", ic.onCommitText},
		{"UpdatePreeditText", ic.onUpdatePreeditText},
		{"ShowPreeditText", ic.onShowPreeditText},
		{"HidePreeditText", ic.onHidePreeditText},
		{"UpdateAuxiliaryText", ic.onUpdateAuxiliaryText},
		{"ShowAuxiliaryText", ic.onShowAuxiliaryText},
		{"HideAuxiliaryText", ic.onHideAuxiliaryText},
		{"UpdateLookupTable", ic.onUpdateLookupTable},
		{"ShowLookupTable", ic.onShowLookupTable},
		{"HideLookupTable", ic.onHideLookupTable},
		{"ForwardKeyEvent", ic.onForwardKeyEvent},
		{"DeleteSurroundingText", ic.onDeleteSurroundingText},
		{"RegisterProperties", ic.onRegisterProperties},
		{"UpdateProperty", ic.onUpdateProperty},
	}
	for _, l := range listeners {
		ic.removeListeners = append(ic.removeListeners, c.OnSignal(path, ifaceIC, l.member, l.fn))
	}
	go ic.pump()

	if !c.registerContext(ic) {
		ic.teardown()
		return nil, net.ErrClosed
	}
	if err := c.AddMatch(ctx, ic.match); err != nil {
		ic.teardown()
		return nil, err
	}
	return ic, nil
}

// Path returns the context's object path on the daemon.
func (ic *InputContext) Path() ObjectPath { return ic.p.path }

// SetCallbacks installs the context's callback set, replacing any
// previous one. Events that arrived before the switch saw the old
// set.
func (ic *InputContext) SetCallbacks(cb Callbacks) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.cb = cb
}

// Destroy releases the context. Engine signals stop, callbacks not
// yet delivered are dropped, and every later method call reports
// [net.ErrClosed]. The daemon-side object is released on a best
// effort basis; Destroy reports any error from that, but the local
// context is dead regardless.
func (ic *InputContext) Destroy(ctx context.Context) error {
	if !ic.teardown() {
		return nil
	}
	matchErr := ic.p.conn.RemoveMatch(ctx, ic.match)
	svc := ic.p
	svc.iface = ifaceService
	_, callErr := svc.call(ctx, "Destroy", "")
	return errors.Join(matchErr, callErr)
}

// connClosed is called by the connection's Close to tear down the
// context without issuing further calls.
func (ic *InputContext) connClosed() { ic.teardown() }

// teardown cuts the context off from the connection and stops its
// callback pump. It reports whether this call was the one that killed
// the context.
func (ic *InputContext) teardown() bool {
	ic.mu.Lock()
	if ic.destroyed {
		ic.mu.Unlock()
		return false
	}
	ic.destroyed = true
	ic.queue.Clear()
	ic.mu.Unlock()

	for _, remove := range ic.removeListeners {
		remove()
	}
	ic.p.conn.unregisterContext(ic)
	close(ic.stopPump)
	close(ic.wakePump)
	return true
}

func (ic *InputContext) live() error {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return net.ErrClosed
	}
	return nil
}

// FocusIn tells the engine this context now has input focus. The
// daemon routes key events and engine feedback to the focused
// context.
func (ic *InputContext) FocusIn(ctx context.Context) error {
	if err := ic.live(); err != nil {
		return err
	}
	if _, err := ic.p.call(ctx, "FocusIn", ""); err != nil {
		return err
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.focused = true
	return nil
}

// FocusOut tells the engine this context lost input focus.
func (ic *InputContext) FocusOut(ctx context.Context) error {
	if err := ic.live(); err != nil {
		return err
	}
	if _, err := ic.p.call(ctx, "FocusOut", ""); err != nil {
		return err
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.focused = false
	return nil
}

// ProcessKeyEvent feeds one key event to the engine and reports
// whether the engine consumed it. An unconsumed event should be
// handled by the client as an ordinary keystroke.
//
// A context processes one key event at a time: a second call while
// one is in flight fails with [ErrEventPending]. The pending slot
// frees when the engine answers or ctx is done.
func (ic *InputContext) ProcessKeyEvent(ctx context.Context, keyval, keycode uint32, state Modifier) (bool, error) {
	ic.mu.Lock()
	if ic.destroyed {
		ic.mu.Unlock()
		return false, net.ErrClosed
	}
	if ic.keyBusy {
		ic.mu.Unlock()
		return false, ErrEventPending
	}
	ic.keyBusy = true
	ic.mu.Unlock()
	defer func() {
		ic.mu.Lock()
		defer ic.mu.Unlock()
		ic.keyBusy = false
	}()

	v, err := ic.p.get(ctx, "ProcessKeyEvent", "b", Uint32(keyval), Uint32(keycode), Uint32(state))
	if err != nil {
		return false, err
	}
	return bool(v.(Bool)), nil
}

// SetCapabilities tells the engine which parts of the composition UI
// this client draws itself.
func (ic *InputContext) SetCapabilities(ctx context.Context, caps Capability) error {
	if err := ic.live(); err != nil {
		return err
	}
	if _, err := ic.p.call(ctx, "SetCapabilities", "", Uint32(caps)); err != nil {
		return err
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.caps = caps
	return nil
}

// SetCursorLocation reports where the text cursor sits on screen, in
// root window coordinates, so the panel can place candidate windows
// next to it.
func (ic *InputContext) SetCursorLocation(ctx context.Context, x, y, w, h int32) error {
	if err := ic.live(); err != nil {
		return err
	}
	_, err := ic.p.call(ctx, "SetCursorLocation", "", Int32(x), Int32(y), Int32(w), Int32(h))
	return err
}

// SetSurroundingText gives the engine the text around the insertion
// point. cursor and anchor are rune offsets into text; they differ
// when there is a selection.
func (ic *InputContext) SetSurroundingText(ctx context.Context, text Text, cursor, anchor uint32) error {
	if err := ic.live(); err != nil {
		return err
	}
	_, err := ic.p.call(ctx, "SetSurroundingText", "", text.Variant(), Uint32(cursor), Uint32(anchor))
	return err
}

// PropertyActivate reports that the user activated the property named
// key, for example by clicking its panel button.
func (ic *InputContext) PropertyActivate(ctx context.Context, key string, state PropState) error {
	if err := ic.live(); err != nil {
		return err
	}
	_, err := ic.p.call(ctx, "PropertyActivate", "", String(key), Uint32(state))
	return err
}

// Reset discards the composition in progress, on both the engine and
// this context's local view of it.
func (ic *InputContext) Reset(ctx context.Context) error {
	if err := ic.live(); err != nil {
		return err
	}
	if _, err := ic.p.call(ctx, "Reset", ""); err != nil {
		return err
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.preedit, ic.preeditCursor, ic.preeditVisible = Text{}, 0, false
	return nil
}

// SetEngine switches this context to the named engine.
func (ic *InputContext) SetEngine(ctx context.Context, name string) error {
	if err := ic.live(); err != nil {
		return err
	}
	_, err := ic.p.call(ctx, "SetEngine", "", String(name))
	return err
}

// GetEngine returns the description of the engine serving this
// context.
func (ic *InputContext) GetEngine(ctx context.Context) (*EngineDesc, error) {
	if err := ic.live(); err != nil {
		return nil, err
	}
	v, err := ic.p.get(ctx, "GetEngine", "v")
	if err != nil {
		return nil, err
	}
	return EngineDescFromValue(v)
}

// Focused reports whether the context holds input focus, as of the
// last successful FocusIn or FocusOut.
func (ic *InputContext) Focused() bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.focused
}

// Capabilities returns the capability set last installed with
// SetCapabilities.
func (ic *InputContext) Capabilities() Capability {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.caps
}

// Preedit returns the engine's current composition: the text, the
// cursor's rune offset within it, and whether it should be shown.
func (ic *InputContext) Preedit() (text Text, cursor uint32, visible bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.preedit, ic.preeditCursor, ic.preeditVisible
}

// AuxiliaryText returns the engine's current auxiliary note and
// whether it should be shown.
func (ic *InputContext) AuxiliaryText() (text Text, visible bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.aux, ic.auxVisible
}

// LookupTable returns the engine's current candidate table and
// whether it should be shown.
func (ic *InputContext) LookupTable() (table LookupTable, visible bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.table, ic.tableVisible
}

// Properties returns the engine's property tree as of the last
// RegisterProperties or UpdateProperty event. The returned slice is
// shared; callers must not modify it.
func (ic *InputContext) Properties() []Property {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.props
}

// Signal handlers below run on the connection's read loop. They
// decode, update the context's state and queue the callback, but
// never block.

func badSignal(m *Message, err error) {
	log.Printf("ibus: ignoring %s signal: %v", m.Member, err)
}

// signalBody checks that a signal's payload has the wanted signature.
func signalBody(m *Message, want string) error {
	if got := SignatureOf(m.Body...).String(); got != want {
		return decodeErr("signal has signature %q, want %q", got, want)
	}
	return nil
}

func (ic *InputContext) onCommitText(m *Message) {
	if err := signalBody(m, "v"); err != nil {
		badSignal(m, err)
		return
	}
	text, err := TextFromValue(m.Body[0])
	if err != nil {
		badSignal(m, err)
		return
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	// Committing ends the composition, so the preedit it came from is
	// gone.
	ic.preedit, ic.preeditCursor, ic.preeditVisible = Text{}, 0, false
	if fn := ic.cb.CommitText; fn != nil {
		ic.enqueueLocked(func() { fn(text) })
	}
}

func (ic *InputContext) onUpdatePreeditText(m *Message) {
	if err := signalBody(m, "vub"); err != nil {
		badSignal(m, err)
		return
	}
	text, err := TextFromValue(m.Body[0])
	if err != nil {
		badSignal(m, err)
		return
	}
	cursor := uint32(m.Body[1].(Uint32))
	visible := bool(m.Body[2].(Bool))
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	ic.preedit, ic.preeditCursor, ic.preeditVisible = text, cursor, visible
	if fn := ic.cb.UpdatePreeditText; fn != nil {
		ic.enqueueLocked(func() { fn(text, cursor, visible) })
	}
}

func (ic *InputContext) onShowPreeditText(m *Message) {
	ic.onToggle(m, &ic.preeditVisible, true, func(cb Callbacks) func() { return cb.ShowPreeditText })
}

func (ic *InputContext) onHidePreeditText(m *Message) {
	ic.onToggle(m, &ic.preeditVisible, false, func(cb Callbacks) func() { return cb.HidePreeditText })
}

func (ic *InputContext) onUpdateAuxiliaryText(m *Message) {
	if err := signalBody(m, "vb"); err != nil {
		badSignal(m, err)
		return
	}
	text, err := TextFromValue(m.Body[0])
	if err != nil {
		badSignal(m, err)
		return
	}
	visible := bool(m.Body[1].(Bool))
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	ic.aux, ic.auxVisible = text, visible
	if fn := ic.cb.UpdateAuxiliaryText; fn != nil {
		ic.enqueueLocked(func() { fn(text, visible) })
	}
}

func (ic *InputContext) onShowAuxiliaryText(m *Message) {
	ic.onToggle(m, &ic.auxVisible, true, func(cb Callbacks) func() { return cb.ShowAuxiliaryText })
}

func (ic *InputContext) onHideAuxiliaryText(m *Message) {
	ic.onToggle(m, &ic.auxVisible, false, func(cb Callbacks) func() { return cb.HideAuxiliaryText })
}

func (ic *InputContext) onUpdateLookupTable(m *Message) {
	if err := signalBody(m, "vb"); err != nil {
		badSignal(m, err)
		return
	}
	table, err := LookupTableFromValue(m.Body[0])
	if err != nil {
		badSignal(m, err)
		return
	}
	visible := bool(m.Body[1].(Bool))
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	ic.table, ic.tableVisible = table, visible
	if fn := ic.cb.UpdateLookupTable; fn != nil {
		ic.enqueueLocked(func() { fn(table, visible) })
	}
}

func (ic *InputContext) onShowLookupTable(m *Message) {
	ic.onToggle(m, &ic.tableVisible, true, func(cb Callbacks) func() { return cb.ShowLookupTable })
}

func (ic *InputContext) onHideLookupTable(m *Message) {
	ic.onToggle(m, &ic.tableVisible, false, func(cb Callbacks) func() { return cb.HideLookupTable })
}

// onToggle handles the bodyless show/hide signals: flip the visibility
// flag and queue the matching callback.
func (ic *InputContext) onToggle(m *Message, flag *bool, to bool, pick func(Callbacks) func()) {
	if err := signalBody(m, ""); err != nil {
		badSignal(m, err)
		return
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	*flag = to
	if fn := pick(ic.cb); fn != nil {
		ic.enqueueLocked(fn)
	}
}

func (ic *InputContext) onForwardKeyEvent(m *Message) {
	if err := signalBody(m, "uuu"); err != nil {
		badSignal(m, err)
		return
	}
	keyval := uint32(m.Body[0].(Uint32))
	keycode := uint32(m.Body[1].(Uint32))
	state := Modifier(m.Body[2].(Uint32))
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	if fn := ic.cb.ForwardKeyEvent; fn != nil {
		ic.enqueueLocked(func() { fn(keyval, keycode, state) })
	}
}

func (ic *InputContext) onDeleteSurroundingText(m *Message) {
	if err := signalBody(m, "iu"); err != nil {
		badSignal(m, err)
		return
	}
	offset := int32(m.Body[0].(Int32))
	nChars := uint32(m.Body[1].(Uint32))
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	if fn := ic.cb.DeleteSurroundingText; fn != nil {
		ic.enqueueLocked(func() { fn(offset, nChars) })
	}
}

func (ic *InputContext) onRegisterProperties(m *Message) {
	if err := signalBody(m, "v"); err != nil {
		badSignal(m, err)
		return
	}
	props, err := PropListFromValue(m.Body[0])
	if err != nil {
		badSignal(m, err)
		return
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	ic.props = props
	if fn := ic.cb.RegisterProperties; fn != nil {
		ic.enqueueLocked(func() { fn(props) })
	}
}

func (ic *InputContext) onUpdateProperty(m *Message) {
	if err := signalBody(m, "v"); err != nil {
		badSignal(m, err)
		return
	}
	prop, err := PropertyFromValue(m.Body[0])
	if err != nil {
		badSignal(m, err)
		return
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.destroyed {
		return
	}
	if updated, ok := replaceProperty(ic.props, prop); ok {
		ic.props = updated
	}
	if fn := ic.cb.UpdateProperty; fn != nil {
		ic.enqueueLocked(func() { fn(prop) })
	}
}

// replaceProperty returns a copy of props with the entry matching
// p.Key replaced by p, leaving the original tree untouched so that
// previously returned snapshots stay stable.
func replaceProperty(props []Property, p Property) ([]Property, bool) {
	for i := range props {
		if props[i].Key == p.Key {
			out := slices.Clone(props)
			out[i] = p
			return out, true
		}
		if sub, ok := replaceProperty(props[i].SubProps, p); ok {
			out := slices.Clone(props)
			out[i].SubProps = sub
			return out, true
		}
	}
	return nil, false
}

func (ic *InputContext) enqueueLocked(fn func()) {
	ic.queue.Add(fn)
	if ic.queue.Len() == 1 {
		select {
		case ic.wakePump <- struct{}{}:
		default:
		}
	}
}

func (ic *InputContext) pump() {
	for {
		fn := func() func() {
			ic.mu.Lock()
			defer ic.mu.Unlock()
			if ic.destroyed {
				return nil
			}
			ret, _ := ic.queue.Pop()
			return ret
		}()
		if fn == nil {
			select {
			case <-ic.stopPump:
				return
			case <-ic.wakePump:
				continue
			}
		}
		fn()
	}
}

// Not implemented:
//  - SetCursorLocationRelative: only meaningful under Wayland
//    compositors that place candidate windows themselves.
//  - ProcessHandWritingEvent, CancelHandWriting: handwriting input
//    needs stroke capture that terminal clients don't have.
