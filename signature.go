package ibus

import (
	"errors"
	"fmt"
	"strings"
)

// A Signature describes the types of a sequence of values, in the
// notation used by the DBus wire protocol that IBus borrows: a string
// of type codes such as "u" (uint32), "as" (array of string), or
// "(uuv)" (struct of two uint32s and a variant).
type Signature struct {
	str string
}

// Maximum length of a signature string, and maximum nesting depth for
// arrays and for structs/dict entries, from the DBus specification.
const (
	maxSigLen      = 255
	maxSigNesting  = 32
	basicTypeCodes = "ybnquixtdsog"
)

// ParseSignature parses and validates a type signature string.
//
// An empty string is a valid signature describing no values.
func ParseSignature(sig string) (Signature, error) {
	if len(sig) > maxSigLen {
		return Signature{}, sigErr(sig, "signature is %d bytes, limit is %d", len(sig), maxSigLen)
	}
	rest := sig
	for rest != "" {
		var err error
		rest, err = parseOne(rest, 0, 0)
		if err != nil {
			return Signature{}, SignatureError{sig, err}
		}
	}
	return Signature{sig}, nil
}

// MustParseSignature is like [ParseSignature], but panics if the
// signature is invalid. It is intended for signatures known at
// compile time.
func MustParseSignature(sig string) Signature {
	ret, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return ret
}

// String returns the string form of the signature.
func (s Signature) String() string { return s.str }

// IsZero reports whether the signature is empty, describing no
// values.
func (s Signature) IsZero() bool { return s.str == "" }

// parseOne consumes the first complete type from the front of sig and
// returns the remainder of the signature string.
func parseOne(sig string, arrayDepth, structDepth int) (rest string, err error) {
	switch c := sig[0]; c {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v':
		return sig[1:], nil
	case 'a':
		if arrayDepth+1 > maxSigNesting {
			return "", fmt.Errorf("array nesting deeper than %d", maxSigNesting)
		}
		if len(sig) == 1 {
			return "", errors.New("array missing element type")
		}
		if sig[1] == '{' {
			return parseDictEntry(sig[1:], arrayDepth+1, structDepth)
		}
		return parseOne(sig[1:], arrayDepth+1, structDepth)
	case '(':
		if structDepth+1 > maxSigNesting {
			return "", fmt.Errorf("struct nesting deeper than %d", maxSigNesting)
		}
		rest = sig[1:]
		if rest != "" && rest[0] == ')' {
			return "", errors.New("empty struct definition")
		}
		for rest != "" && rest[0] != ')' {
			rest, err = parseOne(rest, arrayDepth, structDepth+1)
			if err != nil {
				return "", err
			}
		}
		if rest == "" {
			return "", errors.New("missing closing ) in struct definition")
		}
		return rest[1:], nil
	case '{':
		return "", errors.New("dict entry type found outside array")
	case ')', '}':
		return "", fmt.Errorf("unexpected %q", c)
	case 'h':
		return "", errors.New("file descriptor types are not supported")
	default:
		return "", fmt.Errorf("unknown type specifier %q", c)
	}
}

// parseDictEntry consumes a complete dict entry type, sig[0] being the
// opening brace.
func parseDictEntry(sig string, arrayDepth, structDepth int) (rest string, err error) {
	if structDepth+1 > maxSigNesting {
		return "", fmt.Errorf("struct nesting deeper than %d", maxSigNesting)
	}
	rest = sig[1:]
	if rest == "" || rest[0] == '}' {
		return "", errors.New("missing dict entry key type")
	}
	if !strings.ContainsRune(basicTypeCodes, rune(rest[0])) {
		return "", fmt.Errorf("invalid dict entry key type %q, must be a basic type", rest[0])
	}
	rest = rest[1:]
	if rest == "" || rest[0] == '}' {
		return "", errors.New("missing dict entry value type")
	}
	rest, err = parseOne(rest, arrayDepth, structDepth+1)
	if err != nil {
		return "", err
	}
	if rest == "" || rest[0] != '}' {
		return "", errors.New("missing closing } in dict entry definition")
	}
	return rest[1:], nil
}

// split returns the sequence of complete types that make up the
// signature. It panics if the signature was not produced by
// ParseSignature.
func (s Signature) split() []Signature {
	var parts []Signature
	rest := s.str
	for rest != "" {
		next, err := parseOne(rest, 0, 0)
		if err != nil {
			panic("split of invalid signature " + s.str)
		}
		parts = append(parts, Signature{rest[:len(rest)-len(next)]})
		rest = next
	}
	return parts
}

// alignment returns the wire alignment of the signature's first
// complete type.
func (s Signature) alignment() int {
	switch s.str[0] {
	case 'y', 'g', 'v':
		return 1
	case 'n', 'q':
		return 2
	case 'b', 'i', 'u', 's', 'o', 'a':
		return 4
	default: // x, t, d, structs and dict entries
		return 8
	}
}

// isDict reports whether the signature's first complete type is a
// dict, an array of dict entries.
func (s Signature) isDict() bool {
	return len(s.str) >= 2 && s.str[0] == 'a' && s.str[1] == '{'
}

// arrayElem returns the element type of an array signature.
func (s Signature) arrayElem() Signature {
	return Signature{s.str[1:]}
}

// dictKeyVal returns the key and value types of a dict signature.
func (s Signature) dictKeyVal() (key, val Signature) {
	inner := s.str[2 : len(s.str)-1]
	key = Signature{inner[:1]}
	val = Signature{inner[1:]}
	return key, val
}

// structFields returns the field types of a struct signature.
func (s Signature) structFields() []Signature {
	return Signature{s.str[1 : len(s.str)-1]}.split()
}

// concat returns the concatenation of the given signatures.
func concatSig(sigs []Signature) Signature {
	if len(sigs) == 1 {
		return sigs[0]
	}
	var sb strings.Builder
	for _, s := range sigs {
		sb.WriteString(s.str)
	}
	return Signature{sb.String()}
}
