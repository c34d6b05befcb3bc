package bridge

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/evancourt/aubridge/internal/observe"
	"github.com/evancourt/aubridge/pkg/audio"
)

// Source is the capture side of the bridge: an independent paced loop that
// reads peer audio from the socket and delivers exactly one frame per frame
// period to the host pipeline, substituting silence whenever the peer is
// absent, slow, or gone mid-frame. Peer failures never reach the callback —
// from the host's point of view a broken peer is indistinguishable from a
// silent one.
//
// Create with [Bridge.NewSource]; stop with [Source.Close].
type Source struct {
	cfg  StreamConfig
	cb   audio.CaptureFunc
	slot *slot
	met  *observe.Metrics

	unregister func()

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Source) run() {
	defer close(s.done)

	frameBytes := s.cfg.Format.BytesPerFrame(s.cfg.Ptime)
	buf := make([]byte, frameBytes) // reused for the stream's lifetime
	p := newPacer(s.cfg.Ptime, time.Now())

	ctx := context.Background()
	attrPeer := metric.WithAttributes(attribute.String("fed", "peer"))
	attrSilence := metric.WithAttributes(attribute.String("fed", "silence"))

	var ts time.Duration
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		deadline := p.next()
		start := time.Now()

		filled := 0
		if c := s.slot.current(); c != nil {
			filled = s.readFrame(c, buf, deadline)
		}
		// Anything the peer did not supply this period is silence.
		audio.Silence(buf[filled:])

		if filled == frameBytes {
			s.met.FramesCaptured.Add(ctx, 1, attrPeer)
		} else {
			s.met.FramesCaptured.Add(ctx, 1, attrSilence)
		}
		s.met.FrameService.Record(ctx, time.Since(start).Seconds(), observe.DirCapture)

		sleep, overrun := p.finish(time.Now())
		if overrun {
			s.met.Overruns.Add(ctx, 1, observe.DirCapture)
		}
		if sleep > 0 {
			t := time.NewTimer(sleep)
			select {
			case <-s.stop:
				t.Stop()
				return
			case <-t.C:
			}
		}

		s.cb(audio.Frame{Data: buf, Format: s.cfg.Format, Timestamp: ts})
		ts += s.cfg.Ptime
	}
}

// readFrame reads up to one full frame from c, bounded by the frame
// deadline, and returns how many bytes of buf it filled. A deadline expiry
// keeps the peer (it merely had nothing more to say this period); any other
// error or EOF drops it, making the slot eligible for the next connection.
func (s *Source) readFrame(c net.Conn, buf []byte, deadline time.Time) int {
	if err := c.SetReadDeadline(deadline); err != nil {
		s.slot.drop(c)
		return 0
	}
	off := 0
	for off < len(buf) {
		n, err := c.Read(buf[off:])
		off += n
		if err != nil {
			if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
				s.slot.drop(c)
			}
			break
		}
	}
	return off
}

// Close signals the capture loop to stop and waits for it to exit. The loop
// observes the signal at an iteration boundary, so Close returns within
// roughly one frame period. Safe to call more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.unregister()
	})
	return nil
}
