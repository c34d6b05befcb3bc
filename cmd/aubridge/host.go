package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/evancourt/aubridge/internal/config"
	"github.com/evancourt/aubridge/pkg/audio"
	"github.com/evancourt/aubridge/pkg/bridge"
)

// loopbackDepth bounds the loopback FIFO. At 20 ms ptime this is 160 ms of
// buffered echo; beyond that the oldest frames are dropped, keeping the echo
// latency bounded when the peer sends faster than real time.
const loopbackDepth = 8

// host is the demo host pipeline driven by the bridge's two callbacks. It
// stands in for a real media stack so a peer process can be developed
// against a running daemon.
type host struct {
	mode   config.HostMode
	format audio.Format

	// loopback: captured frames queued for the render side.
	mu    sync.Mutex
	queue [][]byte

	// tone: continuous generator state (render goroutine only).
	tone audio.ToneGenerator

	// capture peak tracking, logged once per second.
	peak     float64
	lastPeak time.Time
}

func newHost(cfg config.HostConfig, stream bridge.StreamConfig) *host {
	return &host{
		mode:     cfg.Mode,
		format:   stream.Format,
		tone:     audio.ToneGenerator{Freq: cfg.ToneHz, Amplitude: 0.5},
		lastPeak: time.Now(),
	}
}

// Capture is the bridge's capture callback (peer → host), invoked once per
// frame period.
func (h *host) Capture(frame audio.Frame) {
	switch h.mode {
	case config.HostLoopback:
		cp := make([]byte, len(frame.Data))
		copy(cp, frame.Data)
		h.mu.Lock()
		if len(h.queue) >= loopbackDepth {
			h.queue = h.queue[1:]
		}
		h.queue = append(h.queue, cp)
		h.mu.Unlock()

	case config.HostTone:
		h.trackPeak(frame.Data)
	}
}

// Render is the bridge's render callback (host → peer), invoked once per
// frame period to fill pcm.
func (h *host) Render(pcm []byte) {
	switch h.mode {
	case config.HostLoopback:
		h.mu.Lock()
		var next []byte
		if len(h.queue) > 0 {
			next = h.queue[0]
			h.queue = h.queue[1:]
		}
		h.mu.Unlock()
		if next == nil {
			audio.Silence(pcm)
			return
		}
		copy(pcm, next)

	case config.HostTone:
		h.tone.Fill(pcm, h.format)

	default:
		audio.Silence(pcm)
	}
}

func (h *host) trackPeak(pcm []byte) {
	if p := audio.PeakLevel(pcm); p > h.peak {
		h.peak = p
	}
	if time.Since(h.lastPeak) >= time.Second {
		slog.Info("capture level", "peak", h.peak)
		h.peak = 0
		h.lastPeak = time.Now()
	}
}
