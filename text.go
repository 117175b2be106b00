package ibus

// Text is a string with styling attributes attached, the payload of
// preedit, auxiliary and commit updates.
type Text struct {
	// Text is the plain text.
	Text string
	// Attrs are styling instructions for rune ranges of Text.
	Attrs []Attribute
}

func (t Text) String() string { return t.Text }

// AttrType says which aspect of the text an [Attribute] styles.
type AttrType uint32

const (
	AttrUnderline  AttrType = iota + 1 // Value is an Underline style
	AttrForeground                     // Value is a 24-bit RGB color
	AttrBackground                     // Value is a 24-bit RGB color
)

// Underline styles for attributes of type [AttrUnderline].
const (
	UnderlineNone = iota
	UnderlineSingle
	UnderlineDouble
	UnderlineLow
	UnderlineError
)

// An Attribute styles a rune range of a [Text].
type Attribute struct {
	Type AttrType
	// Value is the attribute payload. Its meaning depends on Type.
	Value uint32
	// Start and End delimit the styled runes, End exclusive.
	Start, End uint32
}

// Variant returns the wire form of t, for calls and signals that carry
// serialized text.
func (t Text) Variant() Variant {
	return serialize("IBusText", String(t.Text), attrListVariant(t.Attrs))
}

func (a Attribute) variant() Variant {
	return serialize("IBusAttribute", Uint32(a.Type), Uint32(a.Value), Uint32(a.Start), Uint32(a.End))
}

func attrListVariant(attrs []Attribute) Variant {
	vals := make([]Value, len(attrs))
	for i, a := range attrs {
		vals[i] = a.variant()
	}
	return serialize("IBusAttrList", Array{Elem: sigVariant, Values: vals})
}

// TextFromValue unpacks serialized text received from the daemon.
func TextFromValue(v Value) (Text, error) {
	fields, err := unserialize(v, "IBusText", 4)
	if err != nil {
		return Text{}, err
	}
	s, err := fieldString("IBusText", fields, 2)
	if err != nil {
		return Text{}, err
	}
	attrs, err := attrListFromValue(fields[3])
	if err != nil {
		return Text{}, err
	}
	return Text{Text: s, Attrs: attrs}, nil
}

func attrListFromValue(v Value) ([]Attribute, error) {
	fields, err := unserialize(v, "IBusAttrList", 3)
	if err != nil {
		return nil, err
	}
	arr, ok := fields[2].(Array)
	if !ok {
		return nil, decodeErr("IBusAttrList field 2 is %s, want an array", SignatureOf(fields[2]))
	}
	if len(arr.Values) == 0 {
		return nil, nil
	}
	attrs := make([]Attribute, 0, len(arr.Values))
	for _, av := range arr.Values {
		a, err := attributeFromValue(av)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

func attributeFromValue(v Value) (Attribute, error) {
	fields, err := unserialize(v, "IBusAttribute", 6)
	if err != nil {
		return Attribute{}, err
	}
	var a Attribute
	typ, err := fieldUint32("IBusAttribute", fields, 2)
	if err != nil {
		return Attribute{}, err
	}
	a.Type = AttrType(typ)
	if a.Value, err = fieldUint32("IBusAttribute", fields, 3); err != nil {
		return Attribute{}, err
	}
	if a.Start, err = fieldUint32("IBusAttribute", fields, 4); err != nil {
		return Attribute{}, err
	}
	if a.End, err = fieldUint32("IBusAttribute", fields, 5); err != nil {
		return Attribute{}, err
	}
	return a, nil
}
