package ibus

import "context"

// An EngineDesc describes one installed input engine.
type EngineDesc struct {
	// Name is the identifier used with [Bus.SetGlobalEngine] and
	// [InputContext.SetEngine].
	Name        string
	LongName    string
	Description string
	// Language is the primary language the engine composes, as a
	// two-letter code.
	Language string
	License  string
	Author   string
	Icon     string
	// Layout is the XKB keyboard layout the engine wants active.
	Layout string
	// Rank orders engines in pickers, highest first.
	Rank          uint32
	Hotkeys       string
	Symbol        string
	Setup         string
	LayoutVariant string
	LayoutOption  string
	Version       string
	TextDomain    string
}

// Variant returns the wire form of d.
func (d EngineDesc) Variant() Variant {
	return serialize("IBusEngineDesc",
		String(d.Name),
		String(d.LongName),
		String(d.Description),
		String(d.Language),
		String(d.License),
		String(d.Author),
		String(d.Icon),
		String(d.Layout),
		Uint32(d.Rank),
		String(d.Hotkeys),
		String(d.Symbol),
		String(d.Setup),
		String(d.LayoutVariant),
		String(d.LayoutOption),
		String(d.Version),
		String(d.TextDomain))
}

// EngineDescFromValue unpacks a serialized engine description. Fields
// that the sending daemon is too old to know are left empty.
func EngineDescFromValue(v Value) (*EngineDesc, error) {
	fields, err := unserialize(v, "IBusEngineDesc", 11)
	if err != nil {
		return nil, err
	}
	var d EngineDesc
	required := []*string{
		&d.Name, &d.LongName, &d.Description, &d.Language,
		&d.License, &d.Author, &d.Icon, &d.Layout,
	}
	for i, p := range required {
		if *p, err = fieldString("IBusEngineDesc", fields, i+2); err != nil {
			return nil, err
		}
	}
	if d.Rank, err = fieldUint32("IBusEngineDesc", fields, 10); err != nil {
		return nil, err
	}
	optional := []*string{
		&d.Hotkeys, &d.Symbol, &d.Setup, &d.LayoutVariant,
		&d.LayoutOption, &d.Version, &d.TextDomain,
	}
	for i, p := range optional {
		if i+11 >= len(fields) {
			break
		}
		if *p, err = fieldString("IBusEngineDesc", fields, i+11); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// An Engine drives a remote engine object directly, the way the
// daemon does. Input clients normally talk to engines through an
// [InputContext] and let the daemon do the driving; Engine exists for
// tools and tests that stand in for the daemon.
type Engine struct {
	p proxy
}

// NewEngine returns a handle on the engine object served at path by
// the connection's peer, or by dest if the peer is a message bus.
func NewEngine(conn *Conn, dest string, path ObjectPath) *Engine {
	return &Engine{proxy{conn, dest, path, ifaceEngine}}
}

// Path returns the engine's object path.
func (e *Engine) Path() ObjectPath { return e.p.path }

// ProcessKeyEvent feeds one key event to the engine and reports
// whether the engine consumed it.
func (e *Engine) ProcessKeyEvent(ctx context.Context, keyval, keycode uint32, state Modifier) (bool, error) {
	v, err := e.p.get(ctx, "ProcessKeyEvent", "b", Uint32(keyval), Uint32(keycode), Uint32(state))
	if err != nil {
		return false, err
	}
	return bool(v.(Bool)), nil
}

// FocusIn tells the engine it is now composing for a focused context.
func (e *Engine) FocusIn(ctx context.Context) error {
	_, err := e.p.call(ctx, "FocusIn", "")
	return err
}

// FocusOut tells the engine its context lost focus.
func (e *Engine) FocusOut(ctx context.Context) error {
	_, err := e.p.call(ctx, "FocusOut", "")
	return err
}

// Reset discards the engine's composition state.
func (e *Engine) Reset(ctx context.Context) error {
	_, err := e.p.call(ctx, "Reset", "")
	return err
}

// Enable activates the engine.
func (e *Engine) Enable(ctx context.Context) error {
	_, err := e.p.call(ctx, "Enable", "")
	return err
}

// Disable deactivates the engine.
func (e *Engine) Disable(ctx context.Context) error {
	_, err := e.p.call(ctx, "Disable", "")
	return err
}

// SetCapabilities tells the engine what composition UI the client can
// draw itself.
func (e *Engine) SetCapabilities(ctx context.Context, caps Capability) error {
	_, err := e.p.call(ctx, "SetCapabilities", "", Uint32(caps))
	return err
}

// PropertyActivate reports that the user activated the property named
// key, for example by clicking its panel button.
func (e *Engine) PropertyActivate(ctx context.Context, key string, state PropState) error {
	_, err := e.p.call(ctx, "PropertyActivate", "", String(key), Uint32(state))
	return err
}

// CandidateClicked reports a click on the index'th candidate of the
// engine's lookup table.
func (e *Engine) CandidateClicked(ctx context.Context, index, button uint32, state Modifier) error {
	_, err := e.p.call(ctx, "CandidateClicked", "", Uint32(index), Uint32(button), Uint32(state))
	return err
}

// Destroy releases the engine object.
func (e *Engine) Destroy(ctx context.Context) error {
	p := e.p
	p.iface = ifaceService
	_, err := p.call(ctx, "Destroy", "")
	return err
}
