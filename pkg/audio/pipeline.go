package audio

// CaptureFunc is the host-pipeline callback for the capture direction
// (peer → host). The bridge invokes it exactly once per frame period with one
// full frame of PCM — real peer audio when available, silence otherwise — so
// the host always sees a steady stream.
//
// The callback runs on the stream's own goroutine and gates the next
// iteration: it should return promptly (well under one frame period). The
// frame's Data is reused by the bridge after the callback returns.
type CaptureFunc func(frame Frame)

// RenderFunc is the host-pipeline callback for the render direction
// (host → peer). The bridge invokes it exactly once per frame period; the
// callback must fill pcm (one frame's worth of S16LE bytes) with the audio to
// send. The buffer's previous contents are unspecified — fill it completely,
// using [Silence] when there is nothing to say.
//
// Like [CaptureFunc], it runs on the stream's goroutine and sets the pace:
// it must return promptly. Whether the frame actually reaches a peer is
// invisible to the callback; with no peer connected the frame is discarded.
type RenderFunc func(pcm []byte)
