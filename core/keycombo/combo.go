// Package keycombo classifies a live stream of key transitions against a
// static table of modifier chords.
package keycombo

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ComboSuspendResume       = "suspend_resume"
	ComboNext                = "next"
	ComboPrevious            = "previous"
	ComboNextGranularity     = "next_granularity"
	ComboPreviousGranularity = "previous_granularity"
	ComboScrollForward       = "scroll_forward"
	ComboScrollBackward      = "scroll_backward"
	ComboJumpToTop           = "jump_to_top"
	ComboJumpToBottom        = "jump_to_bottom"
	ComboClick               = "click"
	ComboLongClick           = "long_click"
	ComboRepeatLast          = "repeat_last"
	ComboSpellLast           = "spell_last"
	ComboStopSpeech          = "stop_speech"
	ComboReadFromCursor      = "read_from_cursor"
)

// Combo is a chord: every modifier in Modifiers held, plus Key unless Key is
// KeyNone.
type Combo struct {
	ID        string
	Modifiers Modifier
	Key       Key
}

func (c Combo) String() string {
	if c.Key == KeyNone {
		return c.Modifiers.String()
	}
	return c.Modifiers.String() + "+" + c.Key.String()
}

// isModifierOnly reports whether the chord is completed by modifiers alone.
func (c Combo) isModifierOnly() bool {
	return c.Key == KeyNone || c.Key.IsModifier()
}

func (c Combo) matchesExactly(event Event) bool {
	return event.Modifiers == c.Modifiers && (c.Key == KeyNone || event.Key == c.Key)
}

func (c Combo) matchesPartially(event Event) bool {
	return c.isModifierOnly() && event.Modifiers&c.Modifiers == c.Modifiers
}

// ParseChord parses strings like "ctrl+alt+z" or "alt+shift". The last
// non-modifier token is the key.
func ParseChord(chord string) (Modifier, Key, error) {
	modifiers := ModNone
	key := KeyNone

	for _, token := range strings.Split(chord, "+") {
		token = strings.TrimSpace(token)
		if token == "" {
			return ModNone, KeyNone, fmt.Errorf("empty token in chord %q", chord)
		}

		if mod, err := ParseModifier(token); err == nil {
			modifiers = modifiers.With(mod)
			continue
		}

		if key != KeyNone {
			return ModNone, KeyNone, fmt.Errorf("chord %q has more than one key", chord)
		}
		parsed, err := ParseKey(token)
		if err != nil {
			return ModNone, KeyNone, fmt.Errorf("failed to parse chord %q: %w", chord, err)
		}
		key = parsed
	}

	if modifiers.IsEmpty() {
		return ModNone, KeyNone, fmt.Errorf("chord %q has no modifiers", chord)
	}
	return modifiers, key, nil
}

// DefaultCombos is the table used when no combo file is configured.
func DefaultCombos() []Combo {
	return []Combo{
		{ID: ComboSuspendResume, Modifiers: ModCtrl | ModAlt, Key: KeyZ},
		{ID: ComboNext, Modifiers: ModAlt, Key: KeyRight},
		{ID: ComboPrevious, Modifiers: ModAlt, Key: KeyLeft},
		{ID: ComboNextGranularity, Modifiers: ModAlt | ModShift, Key: KeyArrowUp},
		{ID: ComboPreviousGranularity, Modifiers: ModAlt | ModShift, Key: KeyArrowDown},
		{ID: ComboScrollForward, Modifiers: ModAlt, Key: KeyPageDown},
		{ID: ComboScrollBackward, Modifiers: ModAlt, Key: KeyPageUp},
		{ID: ComboJumpToTop, Modifiers: ModAlt, Key: KeyHome},
		{ID: ComboJumpToBottom, Modifiers: ModAlt, Key: KeyEnd},
		{ID: ComboClick, Modifiers: ModAlt, Key: KeyEnter},
		{ID: ComboLongClick, Modifiers: ModAlt | ModShift, Key: KeyEnter},
		{ID: ComboRepeatLast, Modifiers: ModCtrl | ModAlt, Key: KeyR},
		{ID: ComboSpellLast, Modifiers: ModCtrl | ModAlt, Key: KeyS},
		{ID: ComboReadFromCursor, Modifiers: ModCtrl | ModAlt, Key: KeyArrowDown},
		{ID: ComboStopSpeech, Modifiers: ModCtrl | ModAlt, Key: KeySpace},
	}
}

type comboFile struct {
	Combos []struct {
		ID    string `yaml:"id"`
		Chord string `yaml:"chord"`
	} `yaml:"combos"`
}

// ParseCombos decodes a YAML combo table:
//
//	combos:
//	  - id: next
//	    chord: alt+right
func ParseCombos(data []byte) ([]Combo, error) {
	var file comboFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode combo table: %w", err)
	}

	combos := make([]Combo, 0, len(file.Combos))
	seen := make(map[string]bool, len(file.Combos))
	for i, entry := range file.Combos {
		if entry.ID == "" {
			return nil, fmt.Errorf("combo %d has no id", i)
		}
		if seen[entry.ID] {
			return nil, fmt.Errorf("combo %q is defined twice", entry.ID)
		}
		seen[entry.ID] = true

		modifiers, key, err := ParseChord(entry.Chord)
		if err != nil {
			return nil, fmt.Errorf("combo %q: %w", entry.ID, err)
		}
		combos = append(combos, Combo{ID: entry.ID, Modifiers: modifiers, Key: key})
	}
	return combos, nil
}

// LoadCombos reads a YAML combo table from path.
func LoadCombos(path string) ([]Combo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read combo table: %w", err)
	}
	return ParseCombos(data)
}
