package keycombo

import (
	"fmt"
	"strings"
)

// Key is a physical key code.
type Key int

// KeyNone in a combo means the chord is made of modifiers alone.
const KeyNone Key = -1

const (
	KeyUnknown Key = iota
	KeyEnter
	KeySpace
	KeyTab
	KeyEscape
	KeyBackspace
	KeyDelete
	KeyLeft
	KeyRight
	KeyArrowUp
	KeyArrowDown
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown

	KeyShiftLeft
	KeyShiftRight
	KeyCtrlLeft
	KeyCtrlRight
	KeyAltLeft
	KeyAltRight
	KeyMetaLeft
	KeyMetaRight
	KeySym
	KeyFunction

	// KeyA through KeyZ and Key0 through Key9 are contiguous.
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ
	Key0
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
)

var namedKeys = map[Key]string{
	KeyEnter:      "enter",
	KeySpace:      "space",
	KeyTab:        "tab",
	KeyEscape:     "escape",
	KeyBackspace:  "backspace",
	KeyDelete:     "delete",
	KeyLeft:       "left",
	KeyRight:      "right",
	KeyArrowUp:    "up",
	KeyArrowDown:  "down",
	KeyHome:       "home",
	KeyEnd:        "end",
	KeyPageUp:     "pageup",
	KeyPageDown:   "pagedown",
	KeyShiftLeft:  "shift_left",
	KeyShiftRight: "shift_right",
	KeyCtrlLeft:   "ctrl_left",
	KeyCtrlRight:  "ctrl_right",
	KeyAltLeft:    "alt_left",
	KeyAltRight:   "alt_right",
	KeyMetaLeft:   "meta_left",
	KeyMetaRight:  "meta_right",
	KeySym:        "sym",
	KeyFunction:   "function",
}

var keysByName = func() map[string]Key {
	byName := make(map[string]Key, len(namedKeys)+36)
	for key, name := range namedKeys {
		byName[name] = key
	}
	for key := KeyA; key <= Key9; key++ {
		byName[key.String()] = key
	}
	byName["esc"] = KeyEscape
	byName["return"] = KeyEnter
	return byName
}()

func (k Key) String() string {
	switch {
	case k == KeyNone:
		return ""
	case k >= KeyA && k <= KeyZ:
		return string(rune('a' + int(k-KeyA)))
	case k >= Key0 && k <= Key9:
		return string(rune('0' + int(k-Key0)))
	}
	if name, ok := namedKeys[k]; ok {
		return name
	}
	return "unknown"
}

// IsModifier reports whether pressing k changes the modifier state rather
// than producing a key of its own.
func (k Key) IsModifier() bool {
	return k.Modifier() != ModNone
}

// Modifier returns the modifier bit that k toggles.
func (k Key) Modifier() Modifier {
	switch k {
	case KeyShiftLeft, KeyShiftRight:
		return ModShift
	case KeyCtrlLeft, KeyCtrlRight:
		return ModCtrl
	case KeyAltLeft, KeyAltRight:
		return ModAlt
	case KeyMetaLeft, KeyMetaRight:
		return ModMeta
	case KeySym:
		return ModSym
	case KeyFunction:
		return ModFunction
	}
	return ModNone
}

func ParseKey(name string) (Key, error) {
	key, ok := keysByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return KeyUnknown, fmt.Errorf("unknown key %q", name)
	}
	return key, nil
}
