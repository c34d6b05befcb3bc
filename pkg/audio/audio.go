// Package audio defines the sample formats, frame types, and host-pipeline
// callback contracts shared by the aubridge streaming engine.
//
// Everything in this package is deliberately small and allocation-free: the
// bridge core reuses one frame buffer per stream for the stream's whole
// lifetime, so the types here describe buffers rather than own them.
//
// All PCM data is linear 16-bit signed little-endian (S16LE), the wire format
// of the peer socket. The bridge performs no resampling or channel
// conversion — a stream's [Format] is fixed at creation and the peer is
// expected to speak the same format.
package audio

import (
	"fmt"
	"time"
)

// BytesPerSample is the size of one S16LE sample on the wire.
const BytesPerSample = 2

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	// SampleRate in Hz (e.g. 8000 for telephony-grade streams).
	SampleRate int

	// Channels per frame. The bridge runs each direction as an independent
	// stream, typically mono.
	Channels int
}

// Validate reports whether f describes a usable PCM format.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate %d is invalid", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("audio: channel count %d is invalid", f.Channels)
	}
	return nil
}

// SamplesPerFrame returns the number of samples in one frame of duration
// ptime at this format. The result is exact when sampleRate*ptime is a whole
// number of milliseconds-worth of samples, which holds for all telephony
// ptimes (10/20/30/40 ms).
func (f Format) SamplesPerFrame(ptime time.Duration) int {
	return int(int64(f.SampleRate) * int64(f.Channels) * ptime.Milliseconds() / 1000)
}

// BytesPerFrame returns the wire size of one frame of duration ptime.
func (f Format) BytesPerFrame(ptime time.Duration) int {
	return f.SamplesPerFrame(ptime) * BytesPerSample
}

// String returns a compact human-readable description, e.g. "8000Hz/1ch".
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Frame is one fixed-size block of S16LE PCM handed across the host-pipeline
// boundary. The Data slice is owned by the bridge and reused between
// callbacks — callbacks that need the samples past their own return must
// copy them.
type Frame struct {
	// Data holds the raw S16LE bytes. len(Data) == Format.BytesPerFrame(ptime)
	// for the stream's configured ptime, always.
	Data []byte

	// Format of the samples in Data.
	Format Format

	// Timestamp is the frame's position relative to stream start, advancing
	// by exactly one ptime per frame regardless of peer connectivity.
	Timestamp time.Duration
}
