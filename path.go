package ibus

import (
	"strings"

	"github.com/go-ibus/ibus/wire"
)

// An ObjectPath names an object exposed by a bus peer. Paths look
// like filesystem paths, for example "/org/freedesktop/IBus".
type ObjectPath string

// Valid reports whether the path is syntactically valid: a leading
// slash followed by slash-separated non-empty elements of ASCII
// letters, digits and underscores.
func (p ObjectPath) Valid() bool {
	if p == "/" {
		return true
	}
	if p == "" || p[0] != '/' || p[len(p)-1] == '/' {
		return false
	}
	for _, elem := range strings.Split(string(p[1:]), "/") {
		if elem == "" {
			return false
		}
		for _, r := range elem {
			if !pathElemRune(r) {
				return false
			}
		}
	}
	return true
}

func pathElemRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

func (p ObjectPath) signature() Signature { return sigObjectPath }

func (p ObjectPath) encodeTo(e *wire.Encoder) error {
	if !p.Valid() {
		return typeErr("ibus.ObjectPath", "invalid object path %q", string(p))
	}
	e.String(string(p))
	return nil
}
