package ibus_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-ibus/ibus"
	"github.com/go-ibus/ibus/ibustest"
	"github.com/google/go-cmp/cmp"
)

const icIface = "org.freedesktop.IBus.InputContext"

// newTestContext starts a fake daemon and creates one input context
// on it.
func newTestContext(t *testing.T) (*ibustest.Daemon, *ibus.Conn, *ibus.InputContext) {
	t.Helper()
	d, conn := ibustest.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ic, err := ibus.NewBus(conn).CreateInputContext(ctx, "ibus-test")
	if err != nil {
		t.Fatalf("CreateInputContext: %v", err)
	}
	return d, conn, ic
}

// waitFor receives one value from ch, or fails the test after a
// generous timeout.
func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestCreateInputContext(t *testing.T) {
	d, _, ic := newTestContext(t)

	if got, want := ic.Path(), ibus.ObjectPath("/org/freedesktop/IBus/InputContext_1"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
	if paths := d.Contexts(); len(paths) != 1 || paths[0] != ic.Path() {
		t.Errorf("daemon contexts = %v, want [%s]", paths, ic.Path())
	}

	// Creation subscribes to the context's signals.
	matches := d.Matches()
	if len(matches) != 1 {
		t.Fatalf("daemon matches = %v, want exactly one", matches)
	}
	if !strings.Contains(matches[0], "type='signal'") || !strings.Contains(matches[0], string(ic.Path())) {
		t.Errorf("match rule %q does not select the context's signals", matches[0])
	}
}

func TestFocusTracking(t *testing.T) {
	d, _, ic := newTestContext(t)
	ctx := context.Background()

	if ic.Focused() {
		t.Error("new context claims focus")
	}
	if err := ic.FocusIn(ctx); err != nil {
		t.Fatalf("FocusIn got err: %v", err)
	}
	if !ic.Focused() {
		t.Error("Focused() = false after FocusIn")
	}
	if err := ic.FocusOut(ctx); err != nil {
		t.Fatalf("FocusOut got err: %v", err)
	}
	if ic.Focused() {
		t.Error("Focused() = true after FocusOut")
	}

	calls := d.CallsTo("FocusIn")
	if len(calls) != 1 || calls[0].Path != ic.Path() {
		t.Errorf("FocusIn calls = %v, want one to %s", calls, ic.Path())
	}
}

func TestSetCapabilities(t *testing.T) {
	d, _, ic := newTestContext(t)

	caps := ibus.CapPreeditText | ibus.CapLookupTable
	if err := ic.SetCapabilities(context.Background(), caps); err != nil {
		t.Fatalf("SetCapabilities got err: %v", err)
	}
	if got := ic.Capabilities(); got != caps {
		t.Errorf("Capabilities() = %#x, want %#x", got, caps)
	}

	calls := d.CallsTo("SetCapabilities")
	if len(calls) != 1 {
		t.Fatalf("SetCapabilities calls = %d, want 1", len(calls))
	}
	if len(calls[0].Body) != 1 || calls[0].Body[0] != ibus.Uint32(caps) {
		t.Errorf("SetCapabilities body = %v, want [%d]", calls[0].Body, uint32(caps))
	}
}

func TestProcessKeyEvent(t *testing.T) {
	d, _, ic := newTestContext(t)
	ctx := context.Background()

	d.KeyHandler = func(keyval, keycode, state uint32) bool { return keyval == 'a' }

	handled, err := ic.ProcessKeyEvent(ctx, 'a', 38, 0)
	if err != nil {
		t.Fatalf("ProcessKeyEvent(a) got err: %v", err)
	}
	if !handled {
		t.Error("ProcessKeyEvent(a) = false, want engine to consume it")
	}

	handled, err = ic.ProcessKeyEvent(ctx, 'b', 56, ibus.ControlMask)
	if err != nil {
		t.Fatalf("ProcessKeyEvent(b) got err: %v", err)
	}
	if handled {
		t.Error("ProcessKeyEvent(b) = true, want it left to the client")
	}

	calls := d.CallsTo("ProcessKeyEvent")
	if len(calls) != 2 {
		t.Fatalf("ProcessKeyEvent calls = %d, want 2", len(calls))
	}
	want := []ibus.Value{ibus.Uint32('b'), ibus.Uint32(56), ibus.Uint32(ibus.ControlMask)}
	if diff := cmp.Diff(calls[1].Body, want); diff != "" {
		t.Errorf("second key event body wrong (-got+want):\n%s", diff)
	}
}

func TestProcessKeyEventSerialized(t *testing.T) {
	d, _, ic := newTestContext(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	d.KeyHandler = func(keyval, keycode, state uint32) bool {
		entered <- struct{}{}
		<-release
		return true
	}

	type keyResult struct {
		handled bool
		err     error
	}
	res := make(chan keyResult, 1)
	go func() {
		handled, err := ic.ProcessKeyEvent(context.Background(), ibus.KeySpace, 65, 0)
		res <- keyResult{handled, err}
	}()
	waitFor(t, entered, "first key event to reach the engine")

	// One key event at a time: the second is refused while the first
	// is in flight.
	if _, err := ic.ProcessKeyEvent(context.Background(), 'x', 53, 0); !errors.Is(err, ibus.ErrEventPending) {
		t.Errorf("concurrent ProcessKeyEvent = %v, want ErrEventPending", err)
	}

	close(release)
	r := waitFor(t, res, "first key event to finish")
	if r.err != nil || !r.handled {
		t.Errorf("first key event = %v / %v, want handled", r.handled, r.err)
	}

	// The slot frees once the engine answers.
	d.KeyHandler = nil
	if handled, err := ic.ProcessKeyEvent(context.Background(), 'x', 53, 0); err != nil || handled {
		t.Errorf("key event after release = %v / %v, want false", handled, err)
	}
}

func TestPreeditUpdate(t *testing.T) {
	d, _, ic := newTestContext(t)

	type preedit struct {
		text    ibus.Text
		cursor  uint32
		visible bool
	}
	got := make(chan preedit, 4)
	hidden := make(chan struct{}, 1)
	ic.SetCallbacks(ibus.Callbacks{
		UpdatePreeditText: func(text ibus.Text, cursor uint32, visible bool) {
			got <- preedit{text, cursor, visible}
		},
		HidePreeditText: func() { hidden <- struct{}{} },
	})

	want := ibus.Text{
		Text: "hello",
		Attrs: []ibus.Attribute{
			{Type: ibus.AttrUnderline, Value: ibus.UnderlineSingle, Start: 0, End: 5},
		},
	}
	d.EmitUpdatePreeditText(ic.Path(), want, 5, true)

	p := waitFor(t, got, "preedit callback")
	if diff := cmp.Diff(p.text, want); diff != "" {
		t.Errorf("callback text wrong (-got+want):\n%s", diff)
	}
	if p.cursor != 5 || !p.visible {
		t.Errorf("callback cursor/visible = %d/%v, want 5/true", p.cursor, p.visible)
	}

	text, cursor, visible := ic.Preedit()
	if diff := cmp.Diff(text, want); diff != "" {
		t.Errorf("Preedit() text wrong (-got+want):\n%s", diff)
	}
	if cursor != 5 || !visible {
		t.Errorf("Preedit() cursor/visible = %d/%v, want 5/true", cursor, visible)
	}

	// One event, one callback. The hide event backstops the queue:
	// when its callback fires, any earlier one would have too.
	d.Emit(ic.Path(), icIface, "HidePreeditText")
	waitFor(t, hidden, "hide preedit callback")
	if len(got) != 0 {
		t.Errorf("preedit callback fired %d extra times", len(got))
	}
}

func TestCommitText(t *testing.T) {
	d, _, ic := newTestContext(t)

	got := make(chan ibus.Text, 2)
	composed := make(chan struct{}, 2)
	ic.SetCallbacks(ibus.Callbacks{
		CommitText:        func(text ibus.Text) { got <- text },
		UpdatePreeditText: func(ibus.Text, uint32, bool) { composed <- struct{}{} },
	})

	// Compose first, so the commit has a preedit to retire.
	d.EmitUpdatePreeditText(ic.Path(), ibus.Text{Text: "nihao"}, 5, true)
	waitFor(t, composed, "preedit callback")

	want := ibus.Text{Text: "你好"}
	d.EmitCommitText(ic.Path(), want)

	text := waitFor(t, got, "commit callback")
	if diff := cmp.Diff(text, want); diff != "" {
		t.Errorf("committed text wrong (-got+want):\n%s", diff)
	}

	// The commit retires the composition it resolved.
	if text, cursor, visible := ic.Preedit(); text.Text != "" || cursor != 0 || visible {
		t.Errorf("Preedit() = %q/%d/%v after commit, want cleared", text.Text, cursor, visible)
	}
}

func TestVisibilityToggles(t *testing.T) {
	d, _, ic := newTestContext(t)

	fired := make(chan string, 1)
	ic.SetCallbacks(ibus.Callbacks{
		ShowPreeditText:   func() { fired <- "ShowPreeditText" },
		HidePreeditText:   func() { fired <- "HidePreeditText" },
		ShowAuxiliaryText: func() { fired <- "ShowAuxiliaryText" },
		HideAuxiliaryText: func() { fired <- "HideAuxiliaryText" },
		ShowLookupTable:   func() { fired <- "ShowLookupTable" },
		HideLookupTable:   func() { fired <- "HideLookupTable" },
	})

	steps := []struct {
		member  string
		visible func() bool
		want    bool
	}{
		{"ShowPreeditText", func() bool { _, _, v := ic.Preedit(); return v }, true},
		{"HidePreeditText", func() bool { _, _, v := ic.Preedit(); return v }, false},
		{"ShowAuxiliaryText", func() bool { _, v := ic.AuxiliaryText(); return v }, true},
		{"HideAuxiliaryText", func() bool { _, v := ic.AuxiliaryText(); return v }, false},
		{"ShowLookupTable", func() bool { _, v := ic.LookupTable(); return v }, true},
		{"HideLookupTable", func() bool { _, v := ic.LookupTable(); return v }, false},
	}
	for _, s := range steps {
		d.Emit(ic.Path(), icIface, s.member)
		if got := waitFor(t, fired, s.member); got != s.member {
			t.Fatalf("callback for %s fired as %s", s.member, got)
		}
		if got := s.visible(); got != s.want {
			t.Errorf("after %s visibility = %v, want %v", s.member, got, s.want)
		}
	}
}

func TestAuxiliaryTextUpdate(t *testing.T) {
	d, _, ic := newTestContext(t)

	type aux struct {
		text    ibus.Text
		visible bool
	}
	got := make(chan aux, 2)
	ic.SetCallbacks(ibus.Callbacks{
		UpdateAuxiliaryText: func(text ibus.Text, visible bool) { got <- aux{text, visible} },
	})

	want := ibus.Text{Text: "ni hao"}
	d.Emit(ic.Path(), icIface, "UpdateAuxiliaryText", want.Variant(), ibus.Bool(true))

	a := waitFor(t, got, "auxiliary text callback")
	if diff := cmp.Diff(a.text, want); diff != "" {
		t.Errorf("callback text wrong (-got+want):\n%s", diff)
	}
	if !a.visible {
		t.Error("callback visible = false, want true")
	}
	if text, visible := ic.AuxiliaryText(); text.Text != "ni hao" || !visible {
		t.Errorf("AuxiliaryText() = %q/%v, want ni hao/true", text.Text, visible)
	}
}

func TestLookupTableUpdate(t *testing.T) {
	d, _, ic := newTestContext(t)

	type update struct {
		table   ibus.LookupTable
		visible bool
	}
	got := make(chan update, 2)
	ic.SetCallbacks(ibus.Callbacks{
		UpdateLookupTable: func(table ibus.LookupTable, visible bool) { got <- update{table, visible} },
	})

	want := ibus.LookupTable{
		PageSize:      5,
		CursorPos:     2,
		CursorVisible: true,
		Round:         true,
		Orientation:   ibus.OrientationVertical,
		Candidates:    []ibus.Text{{Text: "你"}, {Text: "泥"}, {Text: "妮"}},
		Labels:        []ibus.Text{{Text: "1"}, {Text: "2"}, {Text: "3"}},
	}
	d.Emit(ic.Path(), icIface, "UpdateLookupTable", want.Variant(), ibus.Bool(true))

	u := waitFor(t, got, "lookup table callback")
	if diff := cmp.Diff(u.table, want); diff != "" {
		t.Errorf("callback table wrong (-got+want):\n%s", diff)
	}
	if !u.visible {
		t.Error("callback visible = false, want true")
	}
	table, visible := ic.LookupTable()
	if diff := cmp.Diff(table, want); diff != "" {
		t.Errorf("LookupTable() wrong (-got+want):\n%s", diff)
	}
	if !visible {
		t.Error("LookupTable() visible = false, want true")
	}
}

func TestForwardKeyEvent(t *testing.T) {
	d, _, ic := newTestContext(t)

	type fwd struct {
		keyval, keycode uint32
		state           ibus.Modifier
	}
	got := make(chan fwd, 2)
	ic.SetCallbacks(ibus.Callbacks{
		ForwardKeyEvent: func(keyval, keycode uint32, state ibus.Modifier) {
			got <- fwd{keyval, keycode, state}
		},
	})

	d.Emit(ic.Path(), icIface, "ForwardKeyEvent",
		ibus.Uint32(ibus.KeyBackSpace), ibus.Uint32(22), ibus.Uint32(ibus.ReleaseMask))

	f := waitFor(t, got, "forwarded key event")
	if f.keyval != ibus.KeyBackSpace || f.keycode != 22 || f.state != ibus.ReleaseMask {
		t.Errorf("forwarded event = %#x/%d/%#x, want BackSpace/22/ReleaseMask", f.keyval, f.keycode, f.state)
	}
}

func TestDeleteSurroundingText(t *testing.T) {
	d, _, ic := newTestContext(t)

	type del struct {
		offset int32
		nChars uint32
	}
	got := make(chan del, 2)
	ic.SetCallbacks(ibus.Callbacks{
		DeleteSurroundingText: func(offset int32, nChars uint32) { got <- del{offset, nChars} },
	})

	d.Emit(ic.Path(), icIface, "DeleteSurroundingText", ibus.Int32(-3), ibus.Uint32(3))

	dl := waitFor(t, got, "delete surrounding text")
	if dl.offset != -3 || dl.nChars != 3 {
		t.Errorf("delete = %d/%d, want -3/3", dl.offset, dl.nChars)
	}
}

func TestProperties(t *testing.T) {
	d, _, ic := newTestContext(t)

	registered := make(chan []ibus.Property, 2)
	updated := make(chan ibus.Property, 2)
	ic.SetCallbacks(ibus.Callbacks{
		RegisterProperties: func(props []ibus.Property) { registered <- props },
		UpdateProperty:     func(prop ibus.Property) { updated <- prop },
	})

	props := []ibus.Property{{
		Key:       "InputMode",
		Type:      ibus.PropMenu,
		Label:     ibus.Text{Text: "Input mode"},
		Icon:      "input-mode",
		Tooltip:   ibus.Text{Text: "Switch input mode"},
		Sensitive: true,
		Visible:   true,
		Symbol:    ibus.Text{Text: "中"},
		SubProps: []ibus.Property{
			{Key: "InputMode.Chinese", Type: ibus.PropRadio, Label: ibus.Text{Text: "Chinese"}, Sensitive: true, Visible: true, State: ibus.PropChecked},
			{Key: "InputMode.Latin", Type: ibus.PropRadio, Label: ibus.Text{Text: "Latin"}, Sensitive: true, Visible: true, State: ibus.PropUnchecked},
		},
	}}
	d.Emit(ic.Path(), icIface, "RegisterProperties", ibus.PropListVariant(props))

	snapshot := waitFor(t, registered, "property registration")
	if diff := cmp.Diff(snapshot, props); diff != "" {
		t.Errorf("registered properties wrong (-got+want):\n%s", diff)
	}
	if diff := cmp.Diff(ic.Properties(), props); diff != "" {
		t.Errorf("Properties() wrong (-got+want):\n%s", diff)
	}

	// Patch one nested entry.
	mod := props[0].SubProps[1]
	mod.State = ibus.PropChecked
	d.Emit(ic.Path(), icIface, "UpdateProperty", mod.Variant())

	p := waitFor(t, updated, "property update")
	if diff := cmp.Diff(p, mod); diff != "" {
		t.Errorf("updated property wrong (-got+want):\n%s", diff)
	}
	if got := ic.Properties()[0].SubProps[1].State; got != ibus.PropChecked {
		t.Errorf("tree state after update = %v, want checked", got)
	}
	// The snapshot handed to the registration callback is untouched.
	if got := snapshot[0].SubProps[1].State; got != ibus.PropUnchecked {
		t.Errorf("old snapshot state = %v, want still unchecked", got)
	}
}

func TestMalformedSignalsIgnored(t *testing.T) {
	d, _, ic := newTestContext(t)

	got := make(chan ibus.Text, 2)
	ic.SetCallbacks(ibus.Callbacks{CommitText: func(text ibus.Text) { got <- text }})

	// Wrong arity for the member.
	d.Emit(ic.Path(), icIface, "UpdatePreeditText", ibus.Uint32(1))
	// Right arity, but the variant is not serialized text.
	d.Emit(ic.Path(), icIface, "CommitText", ibus.Variant{Value: ibus.String("bare")})
	// A well formed event still gets through afterwards.
	d.EmitCommitText(ic.Path(), ibus.Text{Text: "ok"})

	text := waitFor(t, got, "commit callback")
	if text.Text != "ok" {
		t.Errorf("committed text = %q, want ok", text.Text)
	}
	if len(got) != 0 {
		t.Errorf("commit callback fired %d extra times", len(got))
	}
	if text, cursor, visible := ic.Preedit(); text.Text != "" || cursor != 0 || visible {
		t.Error("malformed preedit update changed the context's state")
	}
}

func TestSignalRouting(t *testing.T) {
	d, conn := ibustest.New(t)
	bus := ibus.NewBus(conn)
	ctx := context.Background()

	ic1, err := bus.CreateInputContext(ctx, "one")
	if err != nil {
		t.Fatalf("CreateInputContext(one): %v", err)
	}
	ic2, err := bus.CreateInputContext(ctx, "two")
	if err != nil {
		t.Fatalf("CreateInputContext(two): %v", err)
	}

	got1 := make(chan ibus.Text, 2)
	got2 := make(chan ibus.Text, 2)
	ic1.SetCallbacks(ibus.Callbacks{CommitText: func(text ibus.Text) { got1 <- text }})
	ic2.SetCallbacks(ibus.Callbacks{CommitText: func(text ibus.Text) { got2 <- text }})

	d.EmitCommitText(ic2.Path(), ibus.Text{Text: "for two"})
	if text := waitFor(t, got2, "commit on context two"); text.Text != "for two" {
		t.Errorf("context two got %q, want for two", text.Text)
	}
	if len(got1) != 0 {
		t.Error("context one saw context two's signal")
	}

	d.EmitCommitText(ic1.Path(), ibus.Text{Text: "for one"})
	if text := waitFor(t, got1, "commit on context one"); text.Text != "for one" {
		t.Errorf("context one got %q, want for one", text.Text)
	}
	if len(got2) != 0 {
		t.Error("context two saw context one's signal")
	}
}

func TestReset(t *testing.T) {
	d, _, ic := newTestContext(t)

	seen := make(chan struct{}, 1)
	ic.SetCallbacks(ibus.Callbacks{
		UpdatePreeditText: func(ibus.Text, uint32, bool) { seen <- struct{}{} },
	})
	d.EmitUpdatePreeditText(ic.Path(), ibus.Text{Text: "nih"}, 3, true)
	waitFor(t, seen, "preedit callback")

	if err := ic.Reset(context.Background()); err != nil {
		t.Fatalf("Reset got err: %v", err)
	}
	if text, cursor, visible := ic.Preedit(); text.Text != "" || cursor != 0 || visible {
		t.Errorf("Preedit after Reset = %q/%d/%v, want cleared", text.Text, cursor, visible)
	}
	if calls := d.CallsTo("Reset"); len(calls) != 1 {
		t.Errorf("Reset calls = %d, want 1", len(calls))
	}
}

func TestContextEngine(t *testing.T) {
	d, _, ic := newTestContext(t)
	ctx := context.Background()

	d.Engines = []*ibus.EngineDesc{{
		Name: "pinyin", LongName: "Intelligent Pinyin",
		Language: "zh", Layout: "us", Rank: 99,
	}}
	desc, err := ic.GetEngine(ctx)
	if err != nil {
		t.Fatalf("GetEngine got err: %v", err)
	}
	if desc.Name != "pinyin" || desc.Rank != 99 {
		t.Errorf("GetEngine = %q rank %d, want pinyin rank 99", desc.Name, desc.Rank)
	}

	if err := ic.SetEngine(ctx, "anthy"); err != nil {
		t.Fatalf("SetEngine got err: %v", err)
	}
	calls := d.CallsTo("SetEngine")
	if len(calls) != 1 || calls[0].Path != ic.Path() {
		t.Fatalf("SetEngine calls = %v, want one to the context", calls)
	}
	if len(calls[0].Body) != 1 || calls[0].Body[0] != ibus.String("anthy") {
		t.Errorf("SetEngine body = %v, want [anthy]", calls[0].Body)
	}
}

func TestClientInfoCalls(t *testing.T) {
	d, _, ic := newTestContext(t)
	ctx := context.Background()

	if err := ic.SetCursorLocation(ctx, 10, 20, 1, 30); err != nil {
		t.Fatalf("SetCursorLocation got err: %v", err)
	}
	if err := ic.SetSurroundingText(ctx, ibus.Text{Text: "hello world"}, 5, 5); err != nil {
		t.Fatalf("SetSurroundingText got err: %v", err)
	}
	if err := ic.PropertyActivate(ctx, "InputMode.Latin", ibus.PropChecked); err != nil {
		t.Fatalf("PropertyActivate got err: %v", err)
	}

	loc := d.CallsTo("SetCursorLocation")
	if len(loc) != 1 {
		t.Fatalf("SetCursorLocation calls = %d, want 1", len(loc))
	}
	wantLoc := []ibus.Value{ibus.Int32(10), ibus.Int32(20), ibus.Int32(1), ibus.Int32(30)}
	if diff := cmp.Diff(loc[0].Body, wantLoc); diff != "" {
		t.Errorf("SetCursorLocation body wrong (-got+want):\n%s", diff)
	}

	st := d.CallsTo("SetSurroundingText")
	if len(st) != 1 || len(st[0].Body) != 3 {
		t.Fatalf("SetSurroundingText calls = %v, want one with three arguments", st)
	}
	text, err := ibus.TextFromValue(st[0].Body[0])
	if err != nil {
		t.Fatalf("SetSurroundingText sent unreadable text: %v", err)
	}
	if text.Text != "hello world" || st[0].Body[1] != ibus.Uint32(5) || st[0].Body[2] != ibus.Uint32(5) {
		t.Errorf("SetSurroundingText sent %q/%v/%v, want hello world/5/5", text.Text, st[0].Body[1], st[0].Body[2])
	}

	pa := d.CallsTo("PropertyActivate")
	if len(pa) != 1 {
		t.Fatalf("PropertyActivate calls = %d, want 1", len(pa))
	}
	wantPA := []ibus.Value{ibus.String("InputMode.Latin"), ibus.Uint32(ibus.PropChecked)}
	if diff := cmp.Diff(pa[0].Body, wantPA); diff != "" {
		t.Errorf("PropertyActivate body wrong (-got+want):\n%s", diff)
	}
}

func TestDestroy(t *testing.T) {
	d, conn, ic := newTestContext(t)
	ctx := context.Background()
	path := ic.Path()

	got := make(chan ibus.Text, 2)
	ic.SetCallbacks(ibus.Callbacks{CommitText: func(text ibus.Text) { got <- text }})

	if err := ic.Destroy(ctx); err != nil {
		t.Fatalf("Destroy got err: %v", err)
	}
	if matches := d.Matches(); len(matches) != 0 {
		t.Errorf("matches after Destroy = %v, want none", matches)
	}
	destroys := d.CallsTo("Destroy")
	if len(destroys) != 1 || destroys[0].Path != path {
		t.Fatalf("Destroy calls = %v, want one to %s", destroys, path)
	}
	if destroys[0].Interface != "org.freedesktop.IBus.Service" {
		t.Errorf("Destroy interface = %q, want the service interface", destroys[0].Interface)
	}

	// The context is dead to all methods, and destroying again is a
	// no-op.
	if err := ic.FocusIn(ctx); !errors.Is(err, net.ErrClosed) {
		t.Errorf("FocusIn after Destroy = %v, want net.ErrClosed", err)
	}
	if _, err := ic.ProcessKeyEvent(ctx, 'a', 38, 0); !errors.Is(err, net.ErrClosed) {
		t.Errorf("ProcessKeyEvent after Destroy = %v, want net.ErrClosed", err)
	}
	if err := ic.Destroy(ctx); err != nil {
		t.Errorf("second Destroy got err: %v", err)
	}

	// Signals for the dead context are dropped, while the connection
	// stays usable. The follow-up call orders us after the signal.
	d.EmitCommitText(path, ibus.Text{Text: "late"})
	if _, err := ibus.NewBus(conn).GetAddress(ctx); err != nil {
		t.Errorf("GetAddress after Destroy got err: %v", err)
	}
	if len(got) != 0 {
		t.Error("dead context delivered a callback")
	}
}

func TestConnCloseKillsContext(t *testing.T) {
	_, conn, ic := newTestContext(t)
	ctx := context.Background()

	if err := conn.Close(); err != nil {
		t.Fatalf("Close got err: %v", err)
	}
	if err := ic.FocusIn(ctx); !errors.Is(err, net.ErrClosed) {
		t.Errorf("FocusIn after Close = %v, want net.ErrClosed", err)
	}
	if _, err := ic.ProcessKeyEvent(ctx, 'a', 38, 0); !errors.Is(err, net.ErrClosed) {
		t.Errorf("ProcessKeyEvent after Close = %v, want net.ErrClosed", err)
	}
	// The daemon-side object is gone with the connection; Destroy has
	// nothing left to do.
	if err := ic.Destroy(ctx); err != nil {
		t.Errorf("Destroy after Close got err: %v", err)
	}
}

func TestStateWithoutCallbacks(t *testing.T) {
	d, conn, ic := newTestContext(t)

	d.EmitUpdatePreeditText(ic.Path(), ibus.Text{Text: "x"}, 1, true)

	// No callback to wait on; a call round trip orders us after the
	// signal's dispatch.
	if _, err := ibus.NewBus(conn).GetAddress(context.Background()); err != nil {
		t.Fatalf("GetAddress got err: %v", err)
	}
	if text, cursor, visible := ic.Preedit(); text.Text != "x" || cursor != 1 || !visible {
		t.Errorf("Preedit() = %q/%d/%v, want x/1/true", text.Text, cursor, visible)
	}
}
