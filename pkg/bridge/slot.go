package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/evancourt/aubridge/internal/observe"
)

// slot arbitrates ownership of the single peer connection shared by the
// capture and render loops. It holds at most one [net.Conn]; a dedicated
// acceptor goroutine blocks in Accept only while the slot is vacant, so any
// further connectors queue in the OS accept backlog until the current peer
// is dropped.
//
// The mutex covers only the check-and-set of the held connection — never the
// blocking I/O performed on it — so one direction's socket traffic can never
// stall the other direction's ability to look up, install, or drop the peer.
type slot struct {
	ln  net.Listener
	met *observe.Metrics

	mu     sync.Mutex
	vacant *sync.Cond // signalled when conn is cleared
	conn   net.Conn
	closed bool
}

func newSlot(ln net.Listener, met *observe.Metrics) *slot {
	s := &slot{ln: ln, met: met}
	s.vacant = sync.NewCond(&s.mu)
	return s
}

// current returns the connection currently held, or nil when no peer is
// connected. Never blocks. The caller may perform I/O on the returned
// connection but must route any failure through drop rather than closing the
// connection itself.
func (s *slot) current() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// drop closes and clears c if it is the connection currently held.
// Idempotent: dropping a connection that is not held — because the other
// loop dropped it first, or because it was never installed — is a no-op and
// never touches an unrelated connection. Both loops call drop independently
// on I/O failure without coordinating.
func (s *slot) drop(c net.Conn) {
	if c == nil {
		return
	}
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.vacant.Signal()
	s.mu.Unlock()

	c.Close()
	slog.Debug("peer disconnected")
	s.met.PeerDrops.Add(context.Background(), 1)
	s.met.PeerActive.Add(context.Background(), -1)
}

// acceptLoop runs on its own goroutine for the lifetime of the slot. It
// accepts a new peer whenever the slot is vacant and parks otherwise. If an
// accepted connection finds the slot occupied again (the vacancy was filled
// while the accept was in flight), the newcomer is closed and discarded —
// the single-peer contract resolves that race silently in favour of the
// holder.
func (s *slot) acceptLoop() {
	for {
		s.mu.Lock()
		for s.conn != nil && !s.closed {
			s.vacant.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		c, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Debug("accept failed", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if !s.install(c) {
			c.Close()
		}
	}
}

// install stores c as the held connection if the slot is vacant and open.
// Returns false when the caller must discard c.
func (s *slot) install(c net.Conn) bool {
	s.mu.Lock()
	if s.closed || s.conn != nil {
		s.mu.Unlock()
		return false
	}
	s.conn = c
	s.mu.Unlock()

	slog.Debug("peer connected", "addr", c.RemoteAddr())
	s.met.PeerConnects.Add(context.Background(), 1)
	s.met.PeerActive.Add(context.Background(), 1)
	return true
}

// close shuts the slot: the held peer connection (if any) is closed and the
// acceptor goroutine is released. The listener itself is owned and closed by
// the bridge, which also unblocks a pending Accept.
func (s *slot) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	c := s.conn
	s.conn = nil
	s.vacant.Broadcast()
	s.mu.Unlock()

	if c != nil {
		c.Close()
		s.met.PeerActive.Add(context.Background(), -1)
	}
}
