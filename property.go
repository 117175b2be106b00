package ibus

// PropType says how a [Property] behaves in the panel UI.
type PropType uint32

const (
	PropNormal PropType = iota
	PropToggle
	PropRadio
	PropMenu
	PropSeparator
)

// PropState is the check state of a toggle or radio [Property].
type PropState uint32

const (
	PropUnchecked PropState = iota
	PropChecked
	PropInconsistent
)

// A Property is one entry of an engine's property tree: a status
// indicator, button or menu that the panel shows on the engine's
// behalf. Engines publish their tree with RegisterProperties and
// refresh single entries with UpdateProperty.
type Property struct {
	// Key identifies the property within its engine.
	Key       string
	Type      PropType
	Label     Text
	Icon      string
	Tooltip   Text
	Sensitive bool
	Visible   bool
	State     PropState
	// Symbol, when non-empty, is shown in place of Icon.
	Symbol Text
	// SubProps are the entries of a PropMenu property.
	SubProps []Property
}

// Variant returns the wire form of p.
func (p Property) Variant() Variant {
	return serialize("IBusProperty",
		String(p.Key),
		Uint32(p.Type),
		p.Label.Variant(),
		String(p.Icon),
		p.Tooltip.Variant(),
		Bool(p.Sensitive),
		Bool(p.Visible),
		Uint32(p.State),
		PropListVariant(p.SubProps),
		p.Symbol.Variant())
}

// PropListVariant returns the wire form of a property list.
func PropListVariant(props []Property) Variant {
	vals := make([]Value, len(props))
	for i, p := range props {
		vals[i] = p.Variant()
	}
	return serialize("IBusPropList", Array{Elem: sigVariant, Values: vals})
}

// PropertyFromValue unpacks a serialized property.
func PropertyFromValue(v Value) (Property, error) {
	fields, err := unserialize(v, "IBusProperty", 11)
	if err != nil {
		return Property{}, err
	}
	var p Property
	if p.Key, err = fieldString("IBusProperty", fields, 2); err != nil {
		return Property{}, err
	}
	typ, err := fieldUint32("IBusProperty", fields, 3)
	if err != nil {
		return Property{}, err
	}
	p.Type = PropType(typ)
	if p.Label, err = TextFromValue(fields[4]); err != nil {
		return Property{}, err
	}
	if p.Icon, err = fieldString("IBusProperty", fields, 5); err != nil {
		return Property{}, err
	}
	if p.Tooltip, err = TextFromValue(fields[6]); err != nil {
		return Property{}, err
	}
	if p.Sensitive, err = fieldBool("IBusProperty", fields, 7); err != nil {
		return Property{}, err
	}
	if p.Visible, err = fieldBool("IBusProperty", fields, 8); err != nil {
		return Property{}, err
	}
	state, err := fieldUint32("IBusProperty", fields, 9)
	if err != nil {
		return Property{}, err
	}
	p.State = PropState(state)
	if p.SubProps, err = PropListFromValue(fields[10]); err != nil {
		return Property{}, err
	}
	// The symbol text postdates the rest of the layout.
	if len(fields) > 11 {
		if p.Symbol, err = TextFromValue(fields[11]); err != nil {
			return Property{}, err
		}
	}
	return p, nil
}

// PropListFromValue unpacks a serialized property list.
func PropListFromValue(v Value) ([]Property, error) {
	fields, err := unserialize(v, "IBusPropList", 3)
	if err != nil {
		return nil, err
	}
	arr, ok := fields[2].(Array)
	if !ok {
		return nil, decodeErr("IBusPropList field 2 is %s, want an array", SignatureOf(fields[2]))
	}
	if len(arr.Values) == 0 {
		return nil, nil
	}
	props := make([]Property, 0, len(arr.Values))
	for _, pv := range arr.Values {
		p, err := PropertyFromValue(pv)
		if err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}
