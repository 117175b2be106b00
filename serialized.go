package ibus

// IBus carries structured payloads (text, attributes, properties,
// lookup tables, engine descriptions) as serialized objects: a variant
// holding a struct whose first field is the type's name and whose
// second is an attachment dict, followed by the type's own fields.
// Newer daemons append fields to these structs, so decoders check the
// name, require a minimum field count and ignore anything extra.

// serialize wraps fields in the serialized-object envelope for the
// named type, with an empty attachment dict.
func serialize(name string, fields ...Value) Variant {
	vals := make([]Value, 0, len(fields)+2)
	vals = append(vals, String(name), Dict{Key: sigString, Val: sigVariant})
	vals = append(vals, fields...)
	return Variant{Struct{Fields: vals}}
}

// unserialize unpacks the serialized object in v, checking its type
// name and that it has at least min fields, envelope included. It
// returns all the struct's fields.
func unserialize(v Value, name string, min int) ([]Value, error) {
	va, ok := v.(Variant)
	if !ok {
		return nil, decodeErr("%s is %s, want a variant", name, SignatureOf(v))
	}
	st, ok := va.Value.(Struct)
	if !ok {
		return nil, decodeErr("%s variant holds %s, want a struct", name, SignatureOf(va.Value))
	}
	if len(st.Fields) < min {
		return nil, decodeErr("%s struct has %d fields, want at least %d", name, len(st.Fields), min)
	}
	got, ok := st.Fields[0].(String)
	if !ok {
		return nil, decodeErr("serialized object names its type with %s, not a string", SignatureOf(st.Fields[0]))
	}
	if string(got) != name {
		return nil, decodeErr("serialized object is a %s, want %s", got, name)
	}
	return st.Fields, nil
}

// fieldString returns struct field i of a serialized object as a
// string, for decoders that have already checked the field count.
func fieldString(name string, fields []Value, i int) (string, error) {
	s, ok := fields[i].(String)
	if !ok {
		return "", decodeErr("%s field %d is %s, want a string", name, i, SignatureOf(fields[i]))
	}
	return string(s), nil
}

func fieldUint32(name string, fields []Value, i int) (uint32, error) {
	u, ok := fields[i].(Uint32)
	if !ok {
		return 0, decodeErr("%s field %d is %s, want a uint32", name, i, SignatureOf(fields[i]))
	}
	return uint32(u), nil
}

func fieldBool(name string, fields []Value, i int) (bool, error) {
	b, ok := fields[i].(Bool)
	if !ok {
		return false, decodeErr("%s field %d is %s, want a boolean", name, i, SignatureOf(fields[i]))
	}
	return bool(b), nil
}

func fieldInt32(name string, fields []Value, i int) (int32, error) {
	n, ok := fields[i].(Int32)
	if !ok {
		return 0, decodeErr("%s field %d is %s, want an int32", name, i, SignatureOf(fields[i]))
	}
	return int32(n), nil
}
