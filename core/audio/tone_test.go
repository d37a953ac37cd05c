package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func peak(pcm []byte) int {
	peak := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if sample < 0 {
			sample = -sample
		}
		peak = max(peak, sample)
	}
	return peak
}

func TestSynthesizeLength(t *testing.T) {
	info := GetDefaultEncodingInfo()
	tone := Tone{Frequency: 440, Duration: 100 * time.Millisecond}

	testCases := []struct {
		name     string
		rate     float64
		expected int
	}{
		{name: "normal rate", rate: 1, expected: 1600 * 2},
		{name: "double rate", rate: 2, expected: 800 * 2},
		{name: "invalid rate", rate: 0, expected: 1600 * 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(Synthesize(tone, tc.rate, 1, info)); got != tc.expected {
				t.Fatalf("expected %d bytes, got %d", tc.expected, got)
			}
		})
	}
}

func TestSynthesizeVolumeAndFades(t *testing.T) {
	info := GetDefaultEncodingInfo()
	tone := Tone{Frequency: 440, Duration: 100 * time.Millisecond}

	loud := Synthesize(tone, 1, 1, info)
	quiet := Synthesize(tone, 1, 0.25, info)
	if peak(quiet) >= peak(loud)/2 {
		t.Fatalf("expected quarter volume to be quieter, got peaks %d and %d", peak(quiet), peak(loud))
	}
	if got := peak(Synthesize(tone, 1, 0, info)); got != 0 {
		t.Fatalf("expected silence at zero volume, got peak %d", got)
	}

	first := int16(binary.LittleEndian.Uint16(loud[0:]))
	last := int16(binary.LittleEndian.Uint16(loud[len(loud)-2:]))
	if first != 0 || last != 0 {
		t.Fatalf("expected faded edges, got first %d and last %d", first, last)
	}
}

func TestSynthesizeRejectsUnsupportedInput(t *testing.T) {
	if got := Synthesize(Tone{Frequency: 440, Duration: time.Second}, 1, 1, EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}); got != nil {
		t.Fatalf("expected no audio for mulaw, got %d bytes", len(got))
	}
	if got := Synthesize(Tone{}, 1, 1, GetDefaultEncodingInfo()); got != nil {
		t.Fatalf("expected no audio for an empty tone, got %d bytes", len(got))
	}
}

func TestMixClips(t *testing.T) {
	dst := make([]byte, 2)
	binary.LittleEndian.PutUint16(dst, uint16(int16(30000)))
	src := make([]byte, 4)
	binary.LittleEndian.PutUint16(src, uint16(int16(30000)))
	negative := int16(-5)
	binary.LittleEndian.PutUint16(src[2:], uint16(negative))

	mixed := Mix(dst, src)
	if len(mixed) != 4 {
		t.Fatalf("expected mixed audio to grow to 4 bytes, got %d", len(mixed))
	}
	if got := int16(binary.LittleEndian.Uint16(mixed)); got != 32767 {
		t.Fatalf("expected clipped sample 32767, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(mixed[2:])); got != -5 {
		t.Fatalf("expected -5, got %d", got)
	}
}

func TestToneTableWith(t *testing.T) {
	base := DefaultTones()
	merged := base.With(ToneTable{EarconTick: {Frequency: 100, Duration: time.Millisecond}, "custom": {Frequency: 1, Duration: time.Second}})

	if merged[EarconTick].Frequency != 100 {
		t.Fatalf("expected override, got %v", merged[EarconTick])
	}
	if _, ok := merged["custom"]; !ok {
		t.Fatalf("expected custom tone to be added")
	}
	if base[EarconTick].Frequency == 100 {
		t.Fatalf("expected base table to be left alone")
	}
}

func TestEncodingInfo(t *testing.T) {
	info := GetDefaultEncodingInfo()
	if info.BytesPerSecond() != 32000 {
		t.Fatalf("expected 32000 bytes per second, got %d", info.BytesPerSecond())
	}
	if !(EncodingInfo{}).IsZero() {
		t.Fatalf("expected empty encoding info to be zero")
	}
	if got := (EncodingInfo{SampleRate: 8000, Format: EncodingMulaw}).SilenceValue(); got != 0xFF {
		t.Fatalf("expected mulaw silence 0xFF, got %#x", got)
	}
}
