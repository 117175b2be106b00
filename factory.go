package ibus

import "fmt"

// ServeFactory registers this connection as an engine factory: the
// daemon calls the factory to instantiate engines the connection's
// component registered. create is invoked with the engine name and
// returns the object path the new engine is served on.
//
// create runs on its own goroutine per call. Returning an error
// rejects the engine; a [CallError] return is passed through to the
// daemon under its own name.
func ServeFactory(conn *Conn, create func(name string) (ObjectPath, error)) {
	conn.Handle(ifaceFactory, "CreateEngine", func(call *Message) ([]Value, error) {
		name, ok := oneString(call.Body)
		if !ok {
			return nil, CallError{
				Name:   errNameInvalidArgs,
				Detail: fmt.Sprintf("CreateEngine takes one string, got %q", SignatureOf(call.Body...)),
			}
		}
		path, err := create(name)
		if err != nil {
			return nil, err
		}
		return []Value{path}, nil
	})
}
