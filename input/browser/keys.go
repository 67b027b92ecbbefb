package browser

import (
	"strings"
	"unicode/utf8"

	"github.com/go-rod/rod/lib/input"
	"github.com/pkg/errors"

	surface "github.com/clickweave/clickweave/input"
)

var namedKeys = map[string]input.Key{
	"ctrl":      input.ControlLeft,
	"control":   input.ControlLeft,
	"alt":       input.AltLeft,
	"shift":     input.ShiftLeft,
	"cmd":       input.MetaLeft,
	"command":   input.MetaLeft,
	"meta":      input.MetaLeft,
	"enter":     input.Enter,
	"return":    input.Enter,
	"tab":       input.Tab,
	"esc":       input.Escape,
	"escape":    input.Escape,
	"space":     input.Space,
	"backspace": input.Backspace,
	"delete":    input.Delete,
	"insert":    input.Insert,
	"home":      input.Home,
	"end":       input.End,
	"pageup":    input.PageUp,
	"pagedown":  input.PageDown,
	"up":        input.ArrowUp,
	"down":      input.ArrowDown,
	"left":      input.ArrowLeft,
	"right":     input.ArrowRight,
	"f1":        input.F1,
	"f2":        input.F2,
	"f3":        input.F3,
	"f4":        input.F4,
	"f5":        input.F5,
	"f6":        input.F6,
	"f7":        input.F7,
	"f8":        input.F8,
	"f9":        input.F9,
	"f10":       input.F10,
	"f11":       input.F11,
	"f12":       input.F12,
}

// keyFor maps a key name as stored in a step to a rod key. Single printable
// characters map to themselves. Anything else is ErrUnsupported: the page
// has no way to type it.
func keyFor(name string) (input.Key, error) {
	if k, ok := namedKeys[strings.ToLower(name)]; ok {
		return k, nil
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		if r >= ' ' && r <= '~' {
			return input.Key(r), nil
		}
	}
	return 0, errors.Wrapf(surface.ErrUnsupported, "unknown key %q", name)
}
