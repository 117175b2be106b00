package ibus

import (
	"context"
	"fmt"
)

// proxy is a typed handle on one remote object: the destination, path
// and interface that calls go to. Method wrappers on [Bus],
// [InputContext] and [Engine] all funnel through proxy.call.
type proxy struct {
	conn  *Conn
	dest  string
	path  ObjectPath
	iface string
}

// call invokes member with args and checks that the reply body has
// signature want ("" for an empty reply). A mismatched reply is
// reported as a DecodeError, since it means the peer and this client
// disagree about the method's type.
func (p proxy) call(ctx context.Context, member, want string, args ...Value) ([]Value, error) {
	reply, err := p.conn.Call(ctx, p.dest, p.path, p.iface, member, args...)
	if err != nil {
		return nil, err
	}
	if got := SignatureOf(reply...).String(); got != want {
		return nil, DecodeError{fmt.Errorf("%s.%s reply has signature %q, want %q", p.iface, member, got, want)}
	}
	return reply, nil
}

// get invokes member and returns the single value of its reply, which
// must have signature want.
func (p proxy) get(ctx context.Context, member, want string, args ...Value) (Value, error) {
	reply, err := p.call(ctx, member, want, args...)
	if err != nil {
		return nil, err
	}
	return reply[0], nil
}
