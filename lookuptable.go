package ibus

// Layout directions for [LookupTable.Orientation].
const (
	OrientationHorizontal int32 = iota
	OrientationVertical
	OrientationSystem // follow the panel's own setting
)

// A LookupTable is the candidate list an engine offers for the
// current composition, paged for display.
type LookupTable struct {
	// PageSize is how many candidates the panel shows per page.
	PageSize uint32
	// CursorPos is the index of the highlighted candidate, counted
	// across the whole table.
	CursorPos     uint32
	CursorVisible bool
	// Round wraps paging past either end of the table.
	Round       bool
	Orientation int32
	Candidates  []Text
	// Labels replace the default "1." style page labels when set.
	Labels []Text
}

// Variant returns the wire form of t.
func (t LookupTable) Variant() Variant {
	return serialize("IBusLookupTable",
		Uint32(t.PageSize),
		Uint32(t.CursorPos),
		Bool(t.CursorVisible),
		Bool(t.Round),
		Int32(t.Orientation),
		textArray(t.Candidates),
		textArray(t.Labels))
}

// LookupTableFromValue unpacks a serialized lookup table.
func LookupTableFromValue(v Value) (LookupTable, error) {
	fields, err := unserialize(v, "IBusLookupTable", 9)
	if err != nil {
		return LookupTable{}, err
	}
	var t LookupTable
	if t.PageSize, err = fieldUint32("IBusLookupTable", fields, 2); err != nil {
		return LookupTable{}, err
	}
	if t.CursorPos, err = fieldUint32("IBusLookupTable", fields, 3); err != nil {
		return LookupTable{}, err
	}
	if t.CursorVisible, err = fieldBool("IBusLookupTable", fields, 4); err != nil {
		return LookupTable{}, err
	}
	if t.Round, err = fieldBool("IBusLookupTable", fields, 5); err != nil {
		return LookupTable{}, err
	}
	if t.Orientation, err = fieldInt32("IBusLookupTable", fields, 6); err != nil {
		return LookupTable{}, err
	}
	if t.Candidates, err = textArrayFromValue(fields, 7); err != nil {
		return LookupTable{}, err
	}
	if t.Labels, err = textArrayFromValue(fields, 8); err != nil {
		return LookupTable{}, err
	}
	return t, nil
}

func textArray(texts []Text) Array {
	vals := make([]Value, len(texts))
	for i, t := range texts {
		vals[i] = t.Variant()
	}
	return Array{Elem: sigVariant, Values: vals}
}

func textArrayFromValue(fields []Value, i int) ([]Text, error) {
	arr, ok := fields[i].(Array)
	if !ok {
		return nil, decodeErr("IBusLookupTable field %d is %s, want an array", i, SignatureOf(fields[i]))
	}
	if len(arr.Values) == 0 {
		return nil, nil
	}
	texts := make([]Text, 0, len(arr.Values))
	for _, tv := range arr.Values {
		t, err := TextFromValue(tv)
		if err != nil {
			return nil, err
		}
		texts = append(texts, t)
	}
	return texts, nil
}
