package command

import "testing"

func TestStripPrefix(t *testing.T) {
	cases := []struct {
		prefix, text, rest string
		ok                 bool
	}{
		{"tarrasch", "tarrasch move e4", "move e4", true},
		{"tarrasch", "  Tarrasch   board ", "board", true},
		{"tarrasch", "tarrasch", "", true},
		{"tarrasch", "tarraschy move", "", false},
		{"tarrasch", "hello tarrasch", "", false},
		{"!chess", "!chess\tclaim white", "claim white", true},
		{"", "move e4", "", false},
	}
	for _, c := range cases {
		rest, ok := StripPrefix(c.prefix, c.text)
		if rest != c.rest || ok != c.ok {
			t.Errorf("StripPrefix(%q, %q) = %q, %v; want %q, %v", c.prefix, c.text, rest, ok, c.rest, c.ok)
		}
	}
}
