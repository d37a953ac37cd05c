package keycombo

import (
	"fmt"
	"strings"
)

// Modifier is a bitmask of held modifier keys.
type Modifier uint16

const (
	ModNone Modifier = 0

	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
	ModSym
	ModFunction
)

var modifierOrder = []struct {
	mod  Modifier
	name string
}{
	{ModCtrl, "Ctrl"},
	{ModAlt, "Alt"},
	{ModShift, "Shift"},
	{ModMeta, "Meta"},
	{ModSym, "Sym"},
	{ModFunction, "Fn"},
}

var modifierNameMap = map[string]Modifier{
	"ctrl":     ModCtrl,
	"control":  ModCtrl,
	"alt":      ModAlt,
	"option":   ModAlt,
	"shift":    ModShift,
	"meta":     ModMeta,
	"super":    ModMeta,
	"cmd":      ModMeta,
	"sym":      ModSym,
	"fn":       ModFunction,
	"function": ModFunction,
}

// Has reports whether every bit of mod is set in m.
func (m Modifier) Has(mod Modifier) bool {
	return mod != ModNone && m&mod == mod
}

func (m Modifier) With(mod Modifier) Modifier {
	return m | mod
}

func (m Modifier) Without(mod Modifier) Modifier {
	return m &^ mod
}

func (m Modifier) IsEmpty() bool {
	return m == ModNone
}

// String returns a representation like "Ctrl+Alt".
func (m Modifier) String() string {
	if m == ModNone {
		return ""
	}

	var parts []string
	for _, entry := range modifierOrder {
		if m.Has(entry.mod) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "+")
}

// ParseModifier parses a single modifier name such as "ctrl" or "Alt".
func ParseModifier(name string) (Modifier, error) {
	mod, ok := modifierNameMap[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ModNone, fmt.Errorf("unknown modifier %q", name)
	}
	return mod, nil
}
