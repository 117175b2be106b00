package ibus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEngineDescRoundTrip(t *testing.T) {
	d := EngineDesc{
		Name:          "pinyin",
		LongName:      "Intelligent Pinyin",
		Description:   "Pinyin input method",
		Language:      "zh",
		License:       "GPL",
		Author:        "Peng Huang",
		Icon:          "ibus-pinyin",
		Layout:        "us",
		Rank:          99,
		Hotkeys:       "Control+space",
		Symbol:        "拼",
		Setup:         "/usr/libexec/ibus-setup-pinyin",
		LayoutVariant: "dvorak",
		LayoutOption:  "grp:alt_shift_toggle",
		Version:       "1.5.0",
		TextDomain:    "ibus-pinyin",
	}

	got, err := EngineDescFromValue(d.Variant())
	if err != nil {
		t.Fatalf("EngineDescFromValue got err: %v", err)
	}
	if diff := cmp.Diff(got, &d); diff != "" {
		t.Errorf("round trip changed the description (-got+want):\n%s", diff)
	}
}

// Older daemons end the description at the rank field, or part way
// through the trailing strings.
func TestEngineDescShortForms(t *testing.T) {
	base := []Value{
		String("anthy"), String("Anthy"), String("Japanese"), String("ja"),
		String("GPL"), String("n/a"), String("ibus-anthy"), String("jp"),
		Uint32(10),
	}
	want := EngineDesc{
		Name: "anthy", LongName: "Anthy", Description: "Japanese",
		Language: "ja", License: "GPL", Author: "n/a",
		Icon: "ibus-anthy", Layout: "jp", Rank: 10,
	}

	t.Run("rank only", func(t *testing.T) {
		got, err := EngineDescFromValue(serialize("IBusEngineDesc", base...))
		if err != nil {
			t.Fatalf("EngineDescFromValue got err: %v", err)
		}
		if diff := cmp.Diff(got, &want); diff != "" {
			t.Errorf("description decoded wrong (-got+want):\n%s", diff)
		}
	})

	t.Run("through symbol", func(t *testing.T) {
		fields := append(append([]Value{}, base...), String("Super+space"), String("あ"))
		got, err := EngineDescFromValue(serialize("IBusEngineDesc", fields...))
		if err != nil {
			t.Fatalf("EngineDescFromValue got err: %v", err)
		}
		want := want
		want.Hotkeys = "Super+space"
		want.Symbol = "あ"
		if diff := cmp.Diff(got, &want); diff != "" {
			t.Errorf("description decoded wrong (-got+want):\n%s", diff)
		}
	})
}

func TestEngineDescFromValueErrors(t *testing.T) {
	tests := []struct {
		name string
		v    Value
	}{
		{"wrong object", Text{}.Variant()},
		{"too few fields", serialize("IBusEngineDesc",
			String("a"), String("b"), String("c"), String("d"),
			String("e"), String("f"), String("g"), String("h"))},
		{"name mistyped", serialize("IBusEngineDesc",
			Uint32(1), String("b"), String("c"), String("d"),
			String("e"), String("f"), String("g"), String("h"),
			Uint32(0))},
		{"rank mistyped", serialize("IBusEngineDesc",
			String("a"), String("b"), String("c"), String("d"),
			String("e"), String("f"), String("g"), String("h"),
			String("99"))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EngineDescFromValue(tc.v)
			if err == nil {
				t.Fatalf("EngineDescFromValue = %#v, want error", got)
			}
			if testing.Verbose() {
				t.Logf("EngineDescFromValue = err: %v", err)
			}
		})
	}
}
