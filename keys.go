package ibus

// Capability is a bitmask advertising which parts of the composition
// UI a client draws itself. An engine only sends preedit, auxiliary
// text or lookup table updates to clients that claim the matching
// capability; everything else is rendered by the panel.
type Capability uint32

const (
	CapPreeditText Capability = 1 << iota
	CapAuxiliaryText
	CapLookupTable
	CapFocus
	CapProperty
	CapSurroundingText
)

// Modifier is the key and button state bitmask carried with key
// events, in X11 layout.
type Modifier uint32

const (
	ShiftMask   Modifier = 1 << 0
	LockMask    Modifier = 1 << 1
	ControlMask Modifier = 1 << 2
	Mod1Mask    Modifier = 1 << 3 // usually Alt
	Mod2Mask    Modifier = 1 << 4
	Mod3Mask    Modifier = 1 << 5
	Mod4Mask    Modifier = 1 << 6
	Mod5Mask    Modifier = 1 << 7

	Button1Mask Modifier = 1 << 8
	Button2Mask Modifier = 1 << 9
	Button3Mask Modifier = 1 << 10
	Button4Mask Modifier = 1 << 11
	Button5Mask Modifier = 1 << 12

	// HandledMask marks an event the engine already consumed;
	// ForwardMask marks one it wants passed through to the
	// application untouched.
	HandledMask Modifier = 1 << 24
	ForwardMask Modifier = 1 << 25

	SuperMask Modifier = 1 << 26
	HyperMask Modifier = 1 << 27
	MetaMask  Modifier = 1 << 28

	// ReleaseMask marks a key release rather than a press.
	ReleaseMask Modifier = 1 << 30
)

// Keysyms for keys that input clients commonly special-case. The full
// keysym space is X11's; ordinary characters use their Unicode value.
const (
	KeySpace     uint32 = 0x0020
	KeyBackSpace uint32 = 0xff08
	KeyTab       uint32 = 0xff09
	KeyReturn    uint32 = 0xff0d
	KeyEscape    uint32 = 0xff1b
	KeyDelete    uint32 = 0xffff

	KeyHome     uint32 = 0xff50
	KeyLeft     uint32 = 0xff51
	KeyUp       uint32 = 0xff52
	KeyRight    uint32 = 0xff53
	KeyDown     uint32 = 0xff54
	KeyPageUp   uint32 = 0xff55
	KeyPageDown uint32 = 0xff56
	KeyEnd      uint32 = 0xff57
)
