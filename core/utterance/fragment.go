package utterance

import "slices"

// Param names a per-fragment engine or playback override.
type Param string

const (
	ParamPan    Param = "pan"
	ParamPitch  Param = "pitch"
	ParamRate   Param = "rate"
	ParamVolume Param = "volume"
)

// Params are multipliers (pitch, rate) or absolute levels (pan, volume).
type Params map[Param]float64

// Get returns the value for p or fallback when it is not set.
func (p Params) Get(param Param, fallback float64) float64 {
	if value, ok := p[param]; ok {
		return value
	}
	return fallback
}

type Fragment struct {
	Text    string
	Earcons []string
	Haptics []string
	Params  Params
}

// AddEarcon adds id to the fragment's earcon set.
func (f *Fragment) AddEarcon(id string) {
	if id == "" || slices.Contains(f.Earcons, id) {
		return
	}
	f.Earcons = append(f.Earcons, id)
}

// AddHaptic adds id to the fragment's haptic set.
func (f *Fragment) AddHaptic(id string) {
	if id == "" || slices.Contains(f.Haptics, id) {
		return
	}
	f.Haptics = append(f.Haptics, id)
}

func (f *Fragment) SetParam(param Param, value float64) {
	if f.Params == nil {
		f.Params = Params{}
	}
	f.Params[param] = value
}

func (f Fragment) clone() Fragment {
	clone := Fragment{
		Text:    f.Text,
		Earcons: slices.Clone(f.Earcons),
		Haptics: slices.Clone(f.Haptics),
	}
	if f.Params != nil {
		clone.Params = make(Params, len(f.Params))
		for key, value := range f.Params {
			clone.Params[key] = value
		}
	}
	return clone
}
