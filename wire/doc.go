// Package wire provides low-level encoding and decoding helpers for
// the IBus message wire format, which is the DBus wire format.
//
// The provided encoder and decoder are very low level, and do not
// enforce any message semantics. They handle byte order and the
// format's alignment rules, and nothing else. It is the caller's
// responsibility to produce valid messages using these tools; the
// ibus package layers type signatures and message framing on top.
package wire
