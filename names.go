package ibus

// Well-known bus names and object paths of the IBus daemon.
const (
	// BusName is the daemon's well-known bus name, and the
	// destination for portal and input context calls.
	BusName = "org.freedesktop.IBus"
	// BusPath is the object path of the daemon's portal object.
	BusPath ObjectPath = "/org/freedesktop/IBus"

	// DBusName is the bus name of the message bus control service
	// embedded in the daemon.
	DBusName = "org.freedesktop.DBus"
	// DBusPath is the object path of the control service.
	DBusPath ObjectPath = "/org/freedesktop/DBus"
)

// Interfaces spoken over an IBus connection.
const (
	ifaceBus     = "org.freedesktop.IBus"
	ifaceDBus    = "org.freedesktop.DBus"
	ifaceIC      = "org.freedesktop.IBus.InputContext"
	ifaceEngine  = "org.freedesktop.IBus.Engine"
	ifaceFactory = "org.freedesktop.IBus.Factory"
	ifacePanel   = "org.freedesktop.IBus.Panel"
	ifaceService = "org.freedesktop.IBus.Service"
)

// Error names used in error replies.
const (
	errNameUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
	errNameInvalidArgs   = "org.freedesktop.DBus.Error.InvalidArgs"
	errNameFailed        = "org.freedesktop.DBus.Error.Failed"
)
