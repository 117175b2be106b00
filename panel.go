package ibus

// PanelPath is the object path panel UIs emit their signals from.
const PanelPath ObjectPath = "/org/freedesktop/IBus/Panel"

// A Panel sends user interactions from a panel UI back to the daemon,
// which relays them to the focused context's engine. The daemon-to-
// panel direction is method calls on a registered panel service, which
// this package does not serve.
type Panel struct {
	conn *Conn
	path ObjectPath
}

// NewPanel returns a Panel emitting from [PanelPath] on conn.
func NewPanel(conn *Conn) *Panel {
	return &Panel{conn, PanelPath}
}

// CandidateClicked reports a click on the index'th candidate of the
// lookup table the panel is showing.
func (p *Panel) CandidateClicked(index, button uint32, state Modifier) error {
	return p.conn.EmitSignal(p.path, ifacePanel, "CandidateClicked",
		Uint32(index), Uint32(button), Uint32(state))
}

// PropertyActivate reports that the user activated an engine
// property, for example by clicking its menu entry.
func (p *Panel) PropertyActivate(key string, state PropState) error {
	return p.conn.EmitSignal(p.path, ifacePanel, "PropertyActivate",
		String(key), Int32(state))
}

// PropertyShow asks the engine to reveal the named property.
func (p *Panel) PropertyShow(key string) error {
	return p.conn.EmitSignal(p.path, ifacePanel, "PropertyShow", String(key))
}

// PropertyHide asks the engine to conceal the named property.
func (p *Panel) PropertyHide(key string) error {
	return p.conn.EmitSignal(p.path, ifacePanel, "PropertyHide", String(key))
}

// PageUp asks the engine to flip the lookup table to the previous
// page.
func (p *Panel) PageUp() error {
	return p.conn.EmitSignal(p.path, ifacePanel, "PageUp")
}

// PageDown asks the engine to flip the lookup table to the next page.
func (p *Panel) PageDown() error {
	return p.conn.EmitSignal(p.path, ifacePanel, "PageDown")
}

// CursorUp asks the engine to move the candidate highlight up.
func (p *Panel) CursorUp() error {
	return p.conn.EmitSignal(p.path, ifacePanel, "CursorUp")
}

// CursorDown asks the engine to move the candidate highlight down.
func (p *Panel) CursorDown() error {
	return p.conn.EmitSignal(p.path, ifacePanel, "CursorDown")
}
