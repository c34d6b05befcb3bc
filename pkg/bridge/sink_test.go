package bridge

import (
	"bytes"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

func TestSink_PullsOnCadenceWithoutPeer(t *testing.T) {
	b := newTestBridge(t)

	var pulls atomic.Int64
	snk, err := b.NewSink(testStream, func(pcm []byte) {
		if len(pcm) != testFrameBytes {
			t.Errorf("render buffer length %d, want %d", len(pcm), testFrameBytes)
		}
		pulls.Add(1)
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	time.Sleep(time.Second)
	snk.Close()
	got := pulls.Load()

	// Ideal is 50 pulls at 20 ms. The host must see a steady pull cadence
	// even though every frame lands in the void.
	if got < 30 || got > 60 {
		t.Fatalf("render pulls in 1s: got %d, want about 50", got)
	}
}

func TestSink_WritesFramesToPeer(t *testing.T) {
	b := newTestBridge(t)

	var seq atomic.Int64
	snk, err := b.NewSink(testStream, func(pcm []byte) {
		n := byte(1 + seq.Add(1)%200)
		for i := range pcm {
			pcm[i] = n
		}
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer snk.Close()

	peer, err := net.Dial("unix", b.SocketPath())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer peer.Close()

	// Read three frames off the socket; each must be a uniform fill and
	// consecutive frames must carry consecutive fill values.
	var fills []byte
	buf := make([]byte, testFrameBytes)
	if err := peer.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	for range 3 {
		if _, err := io.ReadFull(peer, buf); err != nil {
			t.Fatalf("peer read: %v", err)
		}
		if !bytes.Equal(buf, bytes.Repeat([]byte{buf[0]}, testFrameBytes)) {
			t.Fatal("frame is not a uniform fill; partial or torn write")
		}
		fills = append(fills, buf[0])
	}
	for i := 1; i < len(fills); i++ {
		want := fills[i-1]%200 + 1
		if fills[i] != want {
			t.Fatalf("frame %d fill: got %d, want %d (lost or reordered frame)", i, fills[i], want)
		}
	}
}

func TestSink_PeerCloseDropsAndContinues(t *testing.T) {
	b := newTestBridge(t)

	var pulls atomic.Int64
	snk, err := b.NewSink(testStream, func(pcm []byte) {
		pulls.Add(1)
		for i := range pcm {
			pcm[i] = 9
		}
	})
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	defer snk.Close()

	peer, err := net.Dial("unix", b.SocketPath())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForConn(t, b.slot)
	peer.Close()

	// The write failure surfaces within a frame or two; the slot is vacated
	// and the render cadence is unaffected.
	deadline := time.Now().Add(2 * time.Second)
	for b.slot.current() != nil {
		if !time.Now().Before(deadline) {
			t.Fatal("peer not dropped after close")
		}
		time.Sleep(time.Millisecond)
	}

	before := pulls.Load()
	time.Sleep(5 * testStream.Ptime)
	if pulls.Load() <= before {
		t.Fatal("render cadence stalled after peer drop")
	}

	// A replacement peer receives frames again.
	replacement, err := net.Dial("unix", b.SocketPath())
	if err != nil {
		t.Fatalf("dial replacement: %v", err)
	}
	defer replacement.Close()
	if err := replacement.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}
	buf := make([]byte, testFrameBytes)
	if _, err := io.ReadFull(replacement, buf); err != nil {
		t.Fatalf("replacement read: %v", err)
	}
}

func TestSink_CloseJoinsPromptly(t *testing.T) {
	b := newTestBridge(t)

	var pulls atomic.Int64
	snk, err := b.NewSink(testStream, func(pcm []byte) { pulls.Add(1) })
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for pulls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	if err := snk.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*testStream.Ptime {
		t.Fatalf("Close took %v, want about one frame period", elapsed)
	}

	n := pulls.Load()
	time.Sleep(3 * testStream.Ptime)
	if pulls.Load() != n {
		t.Fatal("render callback invoked after Close returned")
	}

	snk.Close() // idempotent
}
