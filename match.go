package ibus

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/creachadair/mds/value"
)

// Match is a filter that selects bus signals. A connection only
// receives the signals it has asked the bus for, using
// [Conn.AddMatch].
type Match struct {
	sender value.Maybe[string]
	object value.Maybe[ObjectPath]
	iface  value.Maybe[string]
	member value.Maybe[string]
	argStr map[int]string
}

// MatchAllSignals returns a Match that selects every signal.
func MatchAllSignals() *Match {
	return &Match{}
}

// Sender restricts the match to signals from the given bus name.
func (m *Match) Sender(name string) *Match {
	m.sender = value.Just(name)
	return m
}

// Object restricts the match to signals emitted by a single object
// path.
func (m *Match) Object(o ObjectPath) *Match {
	m.object = value.Just(o)
	return m
}

// Interface restricts the match to signals of the given interface.
func (m *Match) Interface(iface string) *Match {
	m.iface = value.Just(iface)
	return m
}

// Member restricts the match to signals with the given name.
func (m *Match) Member(member string) *Match {
	m.member = value.Just(member)
	return m
}

// ArgStr restricts the match to signals whose i-th body value is a
// string equal to val.
func (m *Match) ArgStr(i int, val string) *Match {
	if m.argStr == nil {
		m.argStr = map[int]string{}
	}
	m.argStr[i] = val
	return m
}

// String renders the match in the form the bus's AddMatch and
// RemoveMatch methods take.
func (m *Match) String() string {
	ms := []string{"type='signal'"}
	kv := func(k string, v string) {
		ms = append(ms, fmt.Sprintf("%s=%s", k, escapeMatchArg(v)))
	}

	if s, ok := m.sender.GetOK(); ok {
		kv("sender", s)
	}
	if o, ok := m.object.GetOK(); ok {
		kv("path", string(o))
	}
	if i, ok := m.iface.GetOK(); ok {
		kv("interface", i)
	}
	if mb, ok := m.member.GetOK(); ok {
		kv("member", mb)
	}
	for _, i := range slices.Sorted(maps.Keys(m.argStr)) {
		kv(fmt.Sprintf("arg%d", i), m.argStr[i])
	}

	return strings.Join(ms, ",")
}

// Matches reports whether the given message is a signal selected by
// this match, using the same logic the bus applies to
// [Match.String].
//
// A connection receives the union of all its matches' signals, so
// callers routing signals to multiple consumers need to re-filter
// received signals locally.
func (m *Match) Matches(msg *Message) bool {
	if msg.Type != MsgSignal {
		return false
	}
	if s, ok := m.sender.GetOK(); ok && msg.Sender != s {
		return false
	}
	if o, ok := m.object.GetOK(); ok && msg.Path != o {
		return false
	}
	if i, ok := m.iface.GetOK(); ok && msg.Interface != i {
		return false
	}
	if mb, ok := m.member.GetOK(); ok && msg.Member != mb {
		return false
	}
	for i, want := range m.argStr {
		if i >= len(msg.Body) {
			return false
		}
		got, ok := msg.Body[i].(String)
		if !ok || string(got) != want {
			return false
		}
	}
	return true
}

func escapeMatchArg(s string) string {
	s = strings.ReplaceAll(s, "'", "'\\''")
	return "'" + s + "'"
}
