// Package miniaudio plays earcons on the default output device.
package miniaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-access/core/audio"
)

// Player synthesizes earcon tones and plays them through malgo. It has no
// vibration device, so haptics are only logged.
type Player struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	buffer       playbackBuffer

	tones    audio.ToneTable
	encoding audio.EncodingInfo
	volume   float64

	mu     sync.Mutex
	closed bool
}

type PlayerOption func(*Player)

// WithTones adds or replaces earcon tones.
func WithTones(tones audio.ToneTable) PlayerOption {
	return func(p *Player) { p.tones = p.tones.With(tones) }
}

// WithVolume scales every earcon. Values are clamped to [0, 1].
func WithVolume(volume float64) PlayerOption {
	return func(p *Player) { p.volume = min(max(volume, 0), 1) }
}

func newPlayer(opts ...PlayerOption) *Player {
	p := &Player{
		tones:    audio.DefaultTones(),
		encoding: audio.GetDefaultEncodingInfo(),
		volume:   1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPlayer opens and starts the default playback device.
func NewPlayer(opts ...PlayerOption) (*Player, error) {
	p := newPlayer(opts...)

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	p.audioContext = audioCtx

	channels := 1
	format := malgo.FormatS16
	sampleRate := uint32(p.encoding.SampleRate)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 50 // ~20ms keeps earcons responsive
	config.Periods = 4

	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels
	if p.device, err = malgo.InitDevice(audioCtx.Context, config,
		malgo.DeviceCallbacks{Data: p.buffer.processAudio(bytesPerFrame)}); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := p.device.Start(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return p, nil
}

// PlayEarcon mixes the tone for id into the output. Unknown ids are logged
// and ignored.
func (p *Player) PlayEarcon(id string, rate, volume float64) {
	if p == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}

	tone, ok := p.tones[id]
	if !ok {
		logger.Debug("unknown earcon", "earcon", id)
		return
	}

	pcm := audio.Synthesize(tone, rate, volume*p.volume, p.encoding)
	if len(pcm) == 0 {
		return
	}
	p.buffer.mix(pcm)
}

func (p *Player) PlayHaptic(id string) {
	logger.Debug("haptic feedback", "haptic", id)
}

// Stop drops any earcon still playing.
func (p *Player) Stop() {
	if p == nil {
		return
	}
	p.buffer.clear()
}

// Close stops and releases the device. It is safe to call more than once.
func (p *Player) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.device != nil {
		if err := p.device.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playback device: %w", err))
		}
		p.device.Uninit()
		p.device = nil
	}
	if p.audioContext != nil {
		if err := p.audioContext.Uninit(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release audio context: %w", err))
		}
		p.audioContext.Free()
		p.audioContext = nil
	}
	p.buffer.clear()

	return errors.Join(errs...)
}
