package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Tone is a sine earcon.
type Tone struct {
	Frequency float64
	Duration  time.Duration
}

// Earcon ids played by the feedback pipeline itself.
const (
	EarconBoundary     = "boundary"
	EarconFocus        = "focus"
	EarconTick         = "tick"
	EarconGranularity  = "granularity"
	EarconReadingStart = "reading_start"
)

// ToneTable maps earcon ids to tones.
type ToneTable map[string]Tone

func DefaultTones() ToneTable {
	return ToneTable{
		EarconTick:         {Frequency: 1200, Duration: 25 * time.Millisecond},
		EarconFocus:        {Frequency: 880, Duration: 40 * time.Millisecond},
		EarconBoundary:     {Frequency: 220, Duration: 120 * time.Millisecond},
		EarconGranularity:  {Frequency: 740, Duration: 50 * time.Millisecond},
		EarconReadingStart: {Frequency: 587, Duration: 60 * time.Millisecond},
		"click":            {Frequency: 660, Duration: 30 * time.Millisecond},
		"long_click":       {Frequency: 520, Duration: 90 * time.Millisecond},
		"scroll":           {Frequency: 1000, Duration: 20 * time.Millisecond},
		"content":          {Frequency: 1500, Duration: 15 * time.Millisecond},
		"window":           {Frequency: 440, Duration: 80 * time.Millisecond},
		"notification":     {Frequency: 990, Duration: 150 * time.Millisecond},
	}
}

// With returns a copy of t with overrides applied on top.
func (t ToneTable) With(overrides ToneTable) ToneTable {
	merged := make(ToneTable, len(t)+len(overrides))
	for id, tone := range t {
		merged[id] = tone
	}
	for id, tone := range overrides {
		merged[id] = tone
	}
	return merged
}

const (
	fadeDuration = 5 * time.Millisecond
	maxAmplitude = math.MaxInt16
)

// Synthesize renders tone as little-endian linear16 PCM. Rate speeds the
// tone up, raising its pitch and shortening it, and volume scales its
// amplitude. Edges are faded to avoid clicks.
func Synthesize(tone Tone, rate, volume float64, info EncodingInfo) []byte {
	if info.IsZero() {
		info = GetDefaultEncodingInfo()
	}
	if info.Format != EncodingLinear16 || tone.Frequency <= 0 || tone.Duration <= 0 {
		return nil
	}
	if rate <= 0 {
		rate = 1
	}
	volume = min(max(volume, 0), 1)

	frequency := tone.Frequency * rate
	samples := int(math.Round(tone.Duration.Seconds() / rate * float64(info.SampleRate)))
	fade := min(int(fadeDuration.Seconds()*float64(info.SampleRate)), samples/2)

	pcm := make([]byte, samples*2)
	for i := range samples {
		gain := volume
		if fade > 0 {
			switch {
			case i < fade:
				gain *= float64(i) / float64(fade)
			case i >= samples-fade:
				gain *= float64(samples-1-i) / float64(fade)
			}
		}

		value := math.Sin(2 * math.Pi * frequency * float64(i) / float64(info.SampleRate))
		sample := int16(value * gain * maxAmplitude)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return pcm
}

// Mix adds linear16 src onto dst sample by sample, clipping at the int16
// range, and returns dst extended to fit src.
func Mix(dst, src []byte) []byte {
	if len(src) > len(dst) {
		dst = append(dst, make([]byte, len(src)-len(dst))...)
	}
	for i := 0; i+1 < len(src); i += 2 {
		a := int32(int16(binary.LittleEndian.Uint16(dst[i:])))
		b := int32(int16(binary.LittleEndian.Uint16(src[i:])))
		sum := min(max(a+b, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(dst[i:], uint16(int16(sum)))
	}
	return dst
}
