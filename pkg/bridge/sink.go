package bridge

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/evancourt/aubridge/internal/observe"
	"github.com/evancourt/aubridge/pkg/audio"
)

// Sink is the render side of the bridge: an independent paced loop that
// pulls exactly one frame per frame period from the host pipeline and writes
// it to the peer socket. With no peer connected the frame is discarded
// silently; on a write failure the peer is dropped and the frame is lost,
// never requeued — in a real-time stream a stale frame is worse than a
// missing one.
//
// Create with [Bridge.NewSink]; stop with [Sink.Close].
type Sink struct {
	cfg  StreamConfig
	cb   audio.RenderFunc
	slot *slot
	met  *observe.Metrics

	unregister func()

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Sink) run() {
	defer close(s.done)

	buf := make([]byte, s.cfg.Format.BytesPerFrame(s.cfg.Ptime)) // reused for the stream's lifetime
	p := newPacer(s.cfg.Ptime, time.Now())

	ctx := context.Background()
	attrPeer := metric.WithAttributes(attribute.String("sink", "peer"))
	attrDiscard := metric.WithAttributes(attribute.String("sink", "discarded"))

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		deadline := p.next()
		start := time.Now()

		// The host sets the pace: pull the frame whether or not anyone is
		// listening on the socket.
		s.cb(buf)

		sent := false
		if c := s.slot.current(); c != nil {
			// The write deadline bounds a stalled peer to one frame period.
			// net.Conn retries partial writes internally until the frame is
			// fully sent or an error occurs.
			if err := c.SetWriteDeadline(deadline); err != nil {
				s.slot.drop(c)
			} else if _, err := c.Write(buf); err != nil {
				s.slot.drop(c)
			} else {
				sent = true
			}
		}

		if sent {
			s.met.FramesRendered.Add(ctx, 1, attrPeer)
		} else {
			s.met.FramesRendered.Add(ctx, 1, attrDiscard)
		}
		s.met.FrameService.Record(ctx, time.Since(start).Seconds(), observe.DirRender)

		sleep, overrun := p.finish(time.Now())
		if overrun {
			s.met.Overruns.Add(ctx, 1, observe.DirRender)
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
	}
}

// Close signals the render loop to stop and waits for it to exit, returning
// within roughly one frame period. Safe to call more than once.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		s.unregister()
	})
	return nil
}
