package miniaudio

import (
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-access/core/audio"
)

// playbackBuffer holds audio waiting for the device. Earcons queued while
// others still play are mixed in rather than appended.
type playbackBuffer struct {
	mu      sync.Mutex
	pending []byte
}

func (b *playbackBuffer) mix(pcm []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = audio.Mix(b.pending, pcm)
}

func (b *playbackBuffer) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

func (b *playbackBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// processAudio fills each device period from the buffer and pads the rest
// with silence.
func (b *playbackBuffer) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := min(int(frameCount)*bytesPerFrame, len(pOutput))

		b.mu.Lock()
		n := copy(pOutput[:need], b.pending)
		b.pending = b.pending[n:]
		if len(b.pending) == 0 {
			b.pending = nil
		}
		b.mu.Unlock()

		clear(pOutput[n:need])
	}
}
