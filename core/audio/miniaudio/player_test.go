package miniaudio

import (
	"testing"
	"time"

	"github.com/koscakluka/ema-access/core/audio"
)

func TestPlayEarconQueuesAndMixes(t *testing.T) {
	player := newPlayer(WithTones(audio.ToneTable{
		"short": {Frequency: 440, Duration: 10 * time.Millisecond},
		"long":  {Frequency: 660, Duration: 20 * time.Millisecond},
	}))

	player.PlayEarcon("short", 1, 1)
	if got := player.buffer.len(); got != 320 {
		t.Fatalf("expected 320 bytes queued, got %d", got)
	}

	player.PlayEarcon("long", 1, 1)
	if got := player.buffer.len(); got != 640 {
		t.Fatalf("expected earcons to overlap in 640 bytes, got %d", got)
	}

	player.PlayEarcon("missing", 1, 1)
	if got := player.buffer.len(); got != 640 {
		t.Fatalf("expected unknown earcon to be ignored, got %d bytes", got)
	}

	player.Stop()
	if got := player.buffer.len(); got != 0 {
		t.Fatalf("expected stop to clear the buffer, got %d bytes", got)
	}
}

func TestPlayEarconAfterCloseIsIgnored(t *testing.T) {
	player := newPlayer()
	if err := player.Close(); err != nil {
		t.Fatalf("expected close without a device to succeed, got %v", err)
	}

	player.PlayEarcon(audio.EarconTick, 1, 1)
	if got := player.buffer.len(); got != 0 {
		t.Fatalf("expected nothing queued after close, got %d bytes", got)
	}
}

func TestZeroVolumePlayerStaysSilent(t *testing.T) {
	player := newPlayer(WithVolume(0))
	player.PlayEarcon(audio.EarconTick, 1, 1)

	output := make([]byte, player.buffer.len())
	player.buffer.processAudio(2)(output, nil, uint32(len(output)/2))
	for i, b := range output {
		if b != 0 {
			t.Fatalf("expected silence, got byte %d = %d", i, b)
		}
	}
}

func TestProcessAudioDrainsAndPads(t *testing.T) {
	var buffer playbackBuffer
	buffer.mix([]byte{1, 0, 2, 0, 3, 0})
	process := buffer.processAudio(2)

	output := []byte{9, 9, 9, 9}
	process(output, nil, 2)
	if output[0] != 1 || output[2] != 2 {
		t.Fatalf("expected first two samples, got %v", output)
	}

	output = []byte{9, 9, 9, 9}
	process(output, nil, 2)
	if output[0] != 3 || output[2] != 0 || output[3] != 0 {
		t.Fatalf("expected last sample then silence, got %v", output)
	}
	if got := buffer.len(); got != 0 {
		t.Fatalf("expected drained buffer, got %d bytes", got)
	}
}
