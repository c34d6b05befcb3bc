// Package bridge implements the aubridge streaming engine: a full-duplex
// PCM audio bridge between a host media pipeline and a single external peer
// connected over a Unix domain stream socket.
//
// A [Bridge] owns the listening endpoint and the connection slot holding the
// current peer. The host creates one [Source] (peer → host) and/or one
// [Sink] (host → peer) per session; each runs its own goroutine, paced to
// the session's frame period by a drift-free deadline scheduler. The two
// directions never synchronise with each other — they share only the
// connection slot.
//
// The peer protocol is a raw byte stream of concatenated fixed-size S16LE
// frames in each direction: no framing, no handshake, one peer at a time.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/evancourt/aubridge/internal/observe"
	"github.com/evancourt/aubridge/pkg/audio"
)

const (
	// DefaultSocketPath is the listening endpoint used when neither
	// [Config.SocketPath] nor the environment override is set.
	DefaultSocketPath = "/tmp/aubridge.sock"

	// SocketPathEnv names the environment variable that overrides the
	// default socket path.
	SocketPathEnv = "AUBRIDGE_SOCKET"
)

// ErrClosed is returned by stream factories called after [Bridge.Close].
var ErrClosed = errors.New("bridge: closed")

// Config configures a [Bridge].
type Config struct {
	// SocketPath is the filesystem path of the listening Unix socket.
	// Empty means the AUBRIDGE_SOCKET environment variable, then
	// [DefaultSocketPath].
	SocketPath string

	// Metrics receives the bridge's instrumentation. Nil means
	// [observe.DefaultMetrics], which records through the global OTel
	// meter provider (a no-op unless the application installed one).
	Metrics *observe.Metrics
}

// StreamConfig fixes the audio format of one stream direction for its whole
// lifetime. The host pipeline chooses these per session.
type StreamConfig struct {
	// Format is the PCM sample format; the peer must speak the same.
	Format audio.Format

	// Ptime is the frame period. Frame size in bytes is
	// Format.BytesPerFrame(Ptime), fixed at creation.
	Ptime time.Duration
}

func (c StreamConfig) validate() error {
	if err := c.Format.Validate(); err != nil {
		return err
	}
	if c.Ptime <= 0 {
		return fmt.Errorf("bridge: ptime %v is invalid", c.Ptime)
	}
	if c.Format.SamplesPerFrame(c.Ptime) == 0 {
		return fmt.Errorf("bridge: format %v at ptime %v yields empty frames", c.Format, c.Ptime)
	}
	return nil
}

// Bridge owns the listening socket, the peer connection slot, and all
// streams created from it. Safe for concurrent use.
type Bridge struct {
	path string
	ln   net.Listener
	slot *slot
	met  *observe.Metrics

	mu      sync.Mutex
	closed  bool
	streams map[io.Closer]struct{}
}

// New removes any stale socket artifact at the configured path, binds and
// listens on it, and starts accepting a peer. A bind or listen failure is
// fatal: no retry, the error is returned to the caller.
func New(cfg Config) (*Bridge, error) {
	path := cfg.SocketPath
	if path == "" {
		path = os.Getenv(SocketPathEnv)
	}
	if path == "" {
		path = DefaultSocketPath
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("bridge: remove stale socket %q: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bridge: listen on %q: %w", path, err)
	}

	met := cfg.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}

	b := &Bridge{
		path:    path,
		ln:      ln,
		met:     met,
		streams: make(map[io.Closer]struct{}),
	}
	b.slot = newSlot(ln, met)
	go b.slot.acceptLoop()
	return b, nil
}

// SocketPath returns the filesystem path the bridge is listening on.
func (b *Bridge) SocketPath() string {
	return b.path
}

// NewSource creates a capture stream (peer → host) and starts its loop. The
// callback is invoked exactly once per frame period with one full frame —
// peer audio or silence — for the stream's whole lifetime.
func (b *Bridge) NewSource(cfg StreamConfig, cb audio.CaptureFunc) (*Source, error) {
	if cb == nil {
		return nil, errors.New("bridge: nil capture callback")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Source{
		cfg:  cfg,
		cb:   cb,
		slot: b.slot,
		met:  b.met,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := b.register(s); err != nil {
		return nil, err
	}
	s.unregister = func() { b.remove(s) }
	go s.run()
	return s, nil
}

// NewSink creates a render stream (host → peer) and starts its loop. The
// callback is invoked exactly once per frame period to produce one full
// frame, whether or not a peer is connected.
func (b *Bridge) NewSink(cfg StreamConfig, cb audio.RenderFunc) (*Sink, error) {
	if cb == nil {
		return nil, errors.New("bridge: nil render callback")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Sink{
		cfg:  cfg,
		cb:   cb,
		slot: b.slot,
		met:  b.met,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := b.register(s); err != nil {
		return nil, err
	}
	s.unregister = func() { b.remove(s) }
	go s.run()
	return s, nil
}

func (b *Bridge) register(s io.Closer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.streams[s] = struct{}{}
	return nil
}

func (b *Bridge) remove(s io.Closer) {
	b.mu.Lock()
	delete(b.streams, s)
	b.mu.Unlock()
}

// Close tears the bridge down: any still-active streams are stopped and
// joined, the held peer connection and the listener are closed, and the
// socket file is removed. Idempotent; streams created afterwards fail with
// [ErrClosed].
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	active := make([]io.Closer, 0, len(b.streams))
	for s := range b.streams {
		active = append(active, s)
	}
	b.streams = nil
	b.mu.Unlock()

	for _, s := range active {
		s.Close()
	}
	b.slot.close()
	err := b.ln.Close()
	if rmErr := os.Remove(b.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
