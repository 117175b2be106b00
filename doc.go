// Package ibus speaks the IBus input method protocol as a client:
// it connects to the session's IBus daemon, creates input contexts,
// feeds them key events and receives composition feedback from the
// active engine.
//
// The usual entry point is [Connect], which finds the daemon through
// the session environment, followed by [Bus.CreateInputContext]. The
// lower layers are exported for programs with unusual needs: [Conn]
// exchanges raw messages built from [Value] trees, and package wire
// handles the byte format beneath those.
package ibus
