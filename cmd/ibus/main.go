// Command ibus is a command-line client for the IBus input method
// daemon: it inspects the daemon's state and feeds key events through
// an input engine without needing a GUI toolkit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/go-ibus/ibus"
	"github.com/go-ibus/ibus/transport"
	"github.com/kr/pretty"
)

var globalArgs struct {
	Address string        `flag:"address,Connect to this bus address instead of discovering it"`
	Timeout time.Duration `flag:"timeout,default=5s,Time limit for individual daemon calls"`
}

func busConn(ctx context.Context) (*ibus.Bus, error) {
	if globalArgs.Address != "" {
		conn, err := ibus.Dial(ctx, globalArgs.Address)
		if err != nil {
			return nil, err
		}
		return ibus.NewBus(conn), nil
	}
	return ibus.Connect(ctx)
}

// callCtx bounds one daemon call with the global timeout.
func callCtx(env *command.Env) (context.Context, context.CancelFunc) {
	return context.WithTimeout(env.Context(), globalArgs.Timeout)
}

func main() {
	root := &command.C{
		Name:     "ibus",
		Usage:    "command args...",
		Help:     "A command-line client for the IBus input method daemon.",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "address",
				Usage: "address",
				Help:  "Print the daemon's bus address, as discovered from the session.",
				Run:   command.Adapt(runAddress),
			},
			{
				Name:     "engines",
				Usage:    "engines",
				Help:     "List the input engines the daemon knows about.",
				SetFlags: command.Flags(flax.MustBind, &enginesArgs),
				Run:      command.Adapt(runEngines),
			},
			{
				Name:  "monitor",
				Usage: "monitor",
				Help: `Print engine events as they happen.

Creates an input context, focuses it, and prints every event the
engine sends it until interrupted. Key events typed in other windows
go to their own contexts, so this mostly shows global engine chatter;
combine with sendkeys from another terminal to watch a conversation.`,
				Run: command.Adapt(runMonitor),
			},
			{
				Name:  "sendkeys",
				Usage: "sendkeys key...",
				Help: `Send key events through the current input engine.

Each argument is one key press: a single character ("m"), a key name
("Return"), or a keyval number, optionally followed by :keycode and
:state, both numeric. For example, "m u Return" spells out what an
engine does with those three presses, printing preedit updates and
committed text.`,
				SetFlags: command.Flags(flax.MustBind, &sendkeysArgs),
				Run:      runSendkeys,
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func runAddress(env *command.Env) error {
	if globalArgs.Address != "" {
		fmt.Println(globalArgs.Address)
		return nil
	}
	addr, err := transport.Discover()
	if err != nil {
		return fmt.Errorf("discovering ibus address: %w", err)
	}
	fmt.Println(addr)
	return nil
}

var enginesArgs struct {
	Active bool `flag:"active,List only the engines the user has enabled"`
	Full   bool `flag:"full,Dump full engine descriptions"`
}

func runEngines(env *command.Env) error {
	bus, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to ibus: %w", err)
	}
	defer bus.Close()

	ctx, cancel := callCtx(env)
	defer cancel()
	list := bus.ListEngines
	if enginesArgs.Active {
		list = bus.ListActiveEngines
	}
	descs, err := list(ctx)
	if err != nil {
		return fmt.Errorf("listing engines: %w", err)
	}

	for _, d := range descs {
		if enginesArgs.Full {
			fmt.Printf("%# v\n", pretty.Formatter(d))
		} else {
			fmt.Printf("%-30s %-6s %s\n", d.Name, d.Language, d.LongName)
		}
	}
	return nil
}

func runMonitor(env *command.Env) error {
	bus, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to ibus: %w", err)
	}
	defer bus.Close()

	ctx, cancel := callCtx(env)
	defer cancel()
	ic, err := bus.CreateInputContext(ctx, "ibus-cli-monitor")
	if err != nil {
		return fmt.Errorf("creating input context: %w", err)
	}
	ic.SetCallbacks(monitorCallbacks())
	if err := ic.SetCapabilities(ctx, ibus.CapPreeditText|ibus.CapAuxiliaryText|ibus.CapLookupTable|ibus.CapFocus|ibus.CapProperty); err != nil {
		return fmt.Errorf("setting capabilities: %w", err)
	}
	if err := ic.FocusIn(ctx); err != nil {
		return fmt.Errorf("focusing context: %w", err)
	}

	fmt.Printf("Monitoring engine events on %s...\n", ic.Path())
	<-env.Context().Done()

	dtx, dcancel := context.WithTimeout(context.Background(), globalArgs.Timeout)
	defer dcancel()
	ic.Destroy(dtx)
	return nil
}

func monitorCallbacks() ibus.Callbacks {
	event := func(name string, args ...any) {
		fmt.Printf("%s %s", time.Now().Format("15:04:05.000"), name)
		for _, a := range args {
			fmt.Printf(" %# v", pretty.Formatter(a))
		}
		fmt.Println()
	}
	return ibus.Callbacks{
		CommitText: func(t ibus.Text) { event("CommitText", t.Text) },
		UpdatePreeditText: func(t ibus.Text, cursor uint32, visible bool) {
			event("UpdatePreeditText", t.Text, cursor, visible)
		},
		ShowPreeditText: func() { event("ShowPreeditText") },
		HidePreeditText: func() { event("HidePreeditText") },
		UpdateAuxiliaryText: func(t ibus.Text, visible bool) {
			event("UpdateAuxiliaryText", t.Text, visible)
		},
		ShowAuxiliaryText: func() { event("ShowAuxiliaryText") },
		HideAuxiliaryText: func() { event("HideAuxiliaryText") },
		UpdateLookupTable: func(t ibus.LookupTable, visible bool) {
			event("UpdateLookupTable", t, visible)
		},
		ShowLookupTable: func() { event("ShowLookupTable") },
		HideLookupTable: func() { event("HideLookupTable") },
		ForwardKeyEvent: func(keyval, keycode uint32, state ibus.Modifier) {
			event("ForwardKeyEvent", keyval, keycode, uint32(state))
		},
		DeleteSurroundingText: func(offset int32, nChars uint32) {
			event("DeleteSurroundingText", offset, nChars)
		},
		RegisterProperties: func(props []ibus.Property) { event("RegisterProperties", props) },
		UpdateProperty:     func(prop ibus.Property) { event("UpdateProperty", prop) },
	}
}

var sendkeysArgs struct {
	Wait    time.Duration `flag:"wait,default=1s,How long to wait for engine feedback after the last key"`
	Release bool          `flag:"release,Send a release event after each press"`
}

func runSendkeys(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("sendkeys requires at least one key")
	}
	type key struct {
		keyval, keycode uint32
		state           ibus.Modifier
	}
	keys := make([]key, 0, len(env.Args))
	for _, arg := range env.Args {
		kv, kc, st, err := parseKey(arg)
		if err != nil {
			return err
		}
		keys = append(keys, key{kv, kc, st})
	}

	bus, err := busConn(env.Context())
	if err != nil {
		return fmt.Errorf("connecting to ibus: %w", err)
	}
	defer bus.Close()

	ctx, cancel := callCtx(env)
	defer cancel()
	ic, err := bus.CreateInputContext(ctx, "ibus-cli-sendkeys")
	if err != nil {
		return fmt.Errorf("creating input context: %w", err)
	}
	ic.SetCallbacks(ibus.Callbacks{
		CommitText: func(t ibus.Text) { fmt.Printf("commit %q\n", t.Text) },
		UpdatePreeditText: func(t ibus.Text, cursor uint32, visible bool) {
			fmt.Printf("preedit %q cursor=%d visible=%v\n", t.Text, cursor, visible)
		},
		ForwardKeyEvent: func(keyval, keycode uint32, state ibus.Modifier) {
			fmt.Printf("forwarded keyval=%#x keycode=%d state=%#x\n", keyval, keycode, uint32(state))
		},
	})
	if err := ic.SetCapabilities(ctx, ibus.CapPreeditText|ibus.CapFocus); err != nil {
		return fmt.Errorf("setting capabilities: %w", err)
	}
	if err := ic.FocusIn(ctx); err != nil {
		return fmt.Errorf("focusing context: %w", err)
	}

	for _, k := range keys {
		kctx, kcancel := callCtx(env)
		handled, err := ic.ProcessKeyEvent(kctx, k.keyval, k.keycode, k.state)
		if err == nil && sendkeysArgs.Release {
			_, err = ic.ProcessKeyEvent(kctx, k.keyval, k.keycode, k.state|ibus.ReleaseMask)
		}
		kcancel()
		if err != nil {
			return fmt.Errorf("sending keyval %#x: %w", k.keyval, err)
		}
		fmt.Printf("key %#x handled=%v\n", k.keyval, handled)
	}

	// Give the engine a moment to finish composing.
	select {
	case <-env.Context().Done():
	case <-time.After(sendkeysArgs.Wait):
	}

	dtx, dcancel := context.WithTimeout(context.Background(), globalArgs.Timeout)
	defer dcancel()
	ic.Destroy(dtx)
	return nil
}

// keyNames maps the key names sendkeys accepts to keysyms.
var keyNames = map[string]uint32{
	"space":     ibus.KeySpace,
	"BackSpace": ibus.KeyBackSpace,
	"Tab":       ibus.KeyTab,
	"Return":    ibus.KeyReturn,
	"Escape":    ibus.KeyEscape,
	"Delete":    ibus.KeyDelete,
	"Home":      ibus.KeyHome,
	"Left":      ibus.KeyLeft,
	"Up":        ibus.KeyUp,
	"Right":     ibus.KeyRight,
	"Down":      ibus.KeyDown,
	"PageUp":    ibus.KeyPageUp,
	"PageDown":  ibus.KeyPageDown,
	"End":       ibus.KeyEnd,
}

// parseKey parses one sendkeys argument of the form
// key[:keycode[:state]].
func parseKey(arg string) (keyval, keycode uint32, state ibus.Modifier, err error) {
	parts := strings.SplitN(arg, ":", 3)

	name := parts[0]
	if sym, ok := keyNames[name]; ok {
		keyval = sym
	} else if r, size := utf8.DecodeRuneInString(name); size == len(name) && r != utf8.RuneError {
		keyval = uint32(r)
	} else if n, perr := strconv.ParseUint(name, 0, 32); perr == nil {
		keyval = uint32(n)
	} else {
		return 0, 0, 0, fmt.Errorf("unknown key %q", name)
	}

	if len(parts) > 1 {
		n, perr := strconv.ParseUint(parts[1], 0, 32)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("bad keycode in %q: %v", arg, perr)
		}
		keycode = uint32(n)
	}
	if len(parts) > 2 {
		n, perr := strconv.ParseUint(parts[2], 0, 32)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("bad state in %q: %v", arg, perr)
		}
		state = ibus.Modifier(n)
	}
	return keyval, keycode, state, nil
}
