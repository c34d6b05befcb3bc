// Package observe provides the aubridge observability primitives:
// OpenTelemetry metric instruments and a Prometheus-backed meter provider so
// metrics can be scraped from the standard /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) records
// through the global OTel meter provider, which is a no-op until the
// application installs one via [InitProvider]. Tests should use [NewMetrics]
// with a private provider to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all aubridge metrics.
const meterName = "github.com/evancourt/aubridge"

// Per-direction attribute sets, precomputed because the streaming loops
// record on every frame.
var (
	DirCapture = metric.WithAttributeSet(attribute.NewSet(attribute.String("direction", "capture")))
	DirRender  = metric.WithAttributeSet(attribute.NewSet(attribute.String("direction", "render")))
)

// Metrics holds all OpenTelemetry metric instruments for the bridge. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesCaptured counts frames delivered to the host capture callback.
	// Attribute "fed" is "peer" for full peer frames and "silence" when any
	// part of the frame was zero-filled.
	FramesCaptured metric.Int64Counter

	// FramesRendered counts frames pulled from the host render callback.
	// Attribute "sink" is "peer" when the frame reached the socket and
	// "discarded" when no peer was connected or the write failed.
	FramesRendered metric.Int64Counter

	// Overruns counts loop iterations that finished past their frame
	// deadline and reset the timing cursor. Attribute: "direction".
	Overruns metric.Int64Counter

	// PeerConnects counts accepted peer connections.
	PeerConnects metric.Int64Counter

	// PeerDrops counts peer connections dropped after an I/O failure or EOF.
	PeerDrops metric.Int64Counter

	// PeerActive tracks whether a peer is currently connected (0 or 1).
	PeerActive metric.Int64UpDownCounter

	// FrameService tracks per-frame work time (callback plus socket I/O,
	// excluding the pacing sleep). Attribute: "direction".
	FrameService metric.Float64Histogram
}

// serviceBuckets defines histogram bucket boundaries (in seconds) sized for
// sub-frame-period work on telephony ptimes.
var serviceBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("aubridge.frames.captured",
		metric.WithDescription("Frames delivered to the host capture callback, by fed=peer|silence."),
	); err != nil {
		return nil, err
	}
	if met.FramesRendered, err = m.Int64Counter("aubridge.frames.rendered",
		metric.WithDescription("Frames pulled from the host render callback, by sink=peer|discarded."),
	); err != nil {
		return nil, err
	}
	if met.Overruns, err = m.Int64Counter("aubridge.overruns",
		metric.WithDescription("Loop iterations that missed their frame deadline and reset the cursor."),
	); err != nil {
		return nil, err
	}
	if met.PeerConnects, err = m.Int64Counter("aubridge.peer.connects",
		metric.WithDescription("Accepted peer connections."),
	); err != nil {
		return nil, err
	}
	if met.PeerDrops, err = m.Int64Counter("aubridge.peer.drops",
		metric.WithDescription("Peer connections dropped after an I/O failure or EOF."),
	); err != nil {
		return nil, err
	}
	if met.PeerActive, err = m.Int64UpDownCounter("aubridge.peer.active",
		metric.WithDescription("Whether a peer is currently connected."),
	); err != nil {
		return nil, err
	}
	if met.FrameService, err = m.Float64Histogram("aubridge.frame.service",
		metric.WithDescription("Per-frame work time excluding the pacing sleep."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(serviceBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics init: " + err.Error())
		}
	})
	return defaultMetrics
}
