package ibus

import (
	"context"
	"fmt"

	"github.com/go-ibus/ibus/transport"
)

// Bus is a connection to the IBus daemon, wrapping the daemon's
// org.freedesktop.IBus interface.
type Bus struct {
	p proxy
}

// Connect locates the session's IBus daemon, connects to it and
// completes the handshake. The returned Bus is ready for calls.
func Connect(ctx context.Context) (*Bus, error) {
	addr, err := transport.Discover()
	if err != nil {
		return nil, fmt.Errorf("locating ibus daemon: %w", err)
	}
	conn, err := Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return NewBus(conn), nil
}

// NewBus wraps an established connection to an IBus daemon.
func NewBus(conn *Conn) *Bus {
	return &Bus{proxy{conn, BusName, BusPath, ifaceBus}}
}

// Conn returns the connection the bus runs on, for signal
// subscriptions and raw calls.
func (b *Bus) Conn() *Conn { return b.p.conn }

// Close closes the underlying connection.
func (b *Bus) Close() error { return b.p.conn.Close() }

// CreateInputContext asks the daemon for a fresh input context.
// clientName identifies the client program in the daemon's logs and
// panel UI. The returned context receives engine signals until it is
// destroyed.
func (b *Bus) CreateInputContext(ctx context.Context, clientName string) (*InputContext, error) {
	v, err := b.p.get(ctx, "CreateInputContext", "o", String(clientName))
	if err != nil {
		return nil, err
	}
	return newInputContext(ctx, b.p.conn, v.(ObjectPath))
}

// CurrentInputContext returns the object path of the context that
// currently has input focus, as tracked by the daemon.
func (b *Bus) CurrentInputContext(ctx context.Context) (ObjectPath, error) {
	v, err := b.p.get(ctx, "CurrentInputContext", "o")
	if err != nil {
		return "", err
	}
	return v.(ObjectPath), nil
}

// GetAddress returns the daemon's listening address.
func (b *Bus) GetAddress(ctx context.Context) (string, error) {
	v, err := b.p.get(ctx, "GetAddress", "s")
	if err != nil {
		return "", err
	}
	return string(v.(String)), nil
}

// ListEngines returns descriptions of every installed engine.
func (b *Bus) ListEngines(ctx context.Context) ([]*EngineDesc, error) {
	v, err := b.p.get(ctx, "ListEngines", "av")
	if err != nil {
		return nil, err
	}
	return engineDescList(v)
}

// ListActiveEngines returns descriptions of the engines the user has
// enabled.
func (b *Bus) ListActiveEngines(ctx context.Context) ([]*EngineDesc, error) {
	v, err := b.p.get(ctx, "ListActiveEngines", "av")
	if err != nil {
		return nil, err
	}
	return engineDescList(v)
}

// GetGlobalEngine returns the description of the engine currently
// selected for all contexts. The daemon reports an error if global
// engine mode is off.
func (b *Bus) GetGlobalEngine(ctx context.Context) (*EngineDesc, error) {
	v, err := b.p.get(ctx, "GetGlobalEngine", "v")
	if err != nil {
		return nil, err
	}
	return EngineDescFromValue(v)
}

// SetGlobalEngine switches all contexts to the named engine.
func (b *Bus) SetGlobalEngine(ctx context.Context, name string) error {
	_, err := b.p.call(ctx, "SetGlobalEngine", "", String(name))
	return err
}

// Exit shuts down the daemon. If restart is true the daemon execs
// itself again after shutting down.
func (b *Bus) Exit(ctx context.Context, restart bool) error {
	_, err := b.p.call(ctx, "Exit", "", Bool(restart))
	return err
}

func engineDescList(v Value) ([]*EngineDesc, error) {
	arr := v.(Array)
	descs := make([]*EngineDesc, 0, len(arr.Values))
	for _, ev := range arr.Values {
		d, err := EngineDescFromValue(ev)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// Not implemented:
//  - RegisterComponent: registering engines is the business of engine
//    daemons, not input clients.
//  - GetEnginesByNames, PreloadEngines: engine management UIs need
//    these, input clients don't.
//  - GetUseSysLayout, GetUseGlobalEngine, IsGlobalEngineEnabled:
//    deprecated since IBus 1.5, the daemon answers from config.
//  - Ping: AddMatch on a dead connection fails fast enough.
