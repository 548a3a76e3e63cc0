package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"
)

// ramp returns n samples whose values encode their stream index, so window
// contents can be checked exactly.
func ramp(from, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(from+i) / 10000
	}
	return out
}

// newTestChunker returns a 1 kHz chunker with 100 ms windows and 20 ms
// overlap: 100 new samples per window, 20 overlapping.
func newTestChunker(opts ...ChunkerOption) *Chunker {
	base := []ChunkerOption{
		WithInterval(100 * time.Millisecond),
		WithOverlap(20 * time.Millisecond),
	}
	return NewChunker(1000, append(base, opts...)...)
}

func TestChunker_NoAudioNoWindow(t *testing.T) {
	t.Parallel()
	c := newTestChunker()
	if _, ok := c.Cut(); ok {
		t.Fatal("Cut produced a window without audio")
	}
	if c.Queued() != 0 {
		t.Errorf("Queued = %d, want 0", c.Queued())
	}
}

func TestChunker_WindowsOverlap(t *testing.T) {
	t.Parallel()
	c := newTestChunker()

	_ = c.Feed(ramp(0, 100))
	w1, ok := c.Cut()
	if !ok {
		t.Fatal("first Cut produced nothing")
	}
	if w1.Seq != 1 || len(w1.Samples) != 100 || w1.Start != 0 || w1.Length != 100*time.Millisecond {
		t.Errorf("w1 = seq %d, %d samples, start %v, length %v", w1.Seq, len(w1.Samples), w1.Start, w1.Length)
	}

	_ = c.Feed(ramp(100, 100))
	w2, ok := c.Cut()
	if !ok {
		t.Fatal("second Cut produced nothing")
	}
	if len(w2.Samples) != 120 {
		t.Fatalf("w2 has %d samples, want 120 (20 overlap + 100 new)", len(w2.Samples))
	}
	if w2.Start != 80*time.Millisecond {
		t.Errorf("w2.Start = %v, want 80ms", w2.Start)
	}
	if w2.Samples[0] != ramp(80, 1)[0] || w2.Samples[119] != ramp(199, 1)[0] {
		t.Errorf("w2 spans wrong samples: first %f last %f", w2.Samples[0], w2.Samples[119])
	}
	if w2.End() != 200*time.Millisecond {
		t.Errorf("w2.End = %v, want 200ms", w2.End())
	}
}

func TestChunker_BoundedQueueDropsOldest(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		evicted []uint64
	)
	c := newTestChunker(WithBackpressure(func(w Window) {
		mu.Lock()
		evicted = append(evicted, w.Seq)
		mu.Unlock()
	}))

	for i := range 5 {
		_ = c.Feed(ramp(i*100, 100))
		c.Cut()
		if q := c.Queued(); q > 2 {
			t.Fatalf("Queued = %d, want <= 2", q)
		}
	}

	mu.Lock()
	got := append([]uint64(nil), evicted...)
	mu.Unlock()
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("evicted = %v, want [1 2 3]", got)
	}
	if c.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", c.Dropped())
	}

	for _, want := range []uint64{4, 5} {
		w, err := c.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if w.Seq != want {
			t.Errorf("Next seq = %d, want %d", w.Seq, want)
		}
	}
}

func TestChunker_CloseEndsSequence(t *testing.T) {
	t.Parallel()
	c := newTestChunker()
	_ = c.Feed(ramp(0, 100))
	c.Cut()
	c.Close()

	if _, err := c.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after Close = %v, want ErrClosed", err)
	}
	if err := c.Feed(ramp(0, 10)); !errors.Is(err, ErrClosed) {
		t.Errorf("Feed after Close = %v, want ErrClosed", err)
	}
	if err := c.FeedPCM([]byte{0, 0}); !errors.Is(err, ErrClosed) {
		t.Errorf("FeedPCM after Close = %v, want ErrClosed", err)
	}
	if _, ok := c.Cut(); ok {
		t.Error("Cut after Close produced a window")
	}
	c.Close()
}

func TestChunker_SilenceGate(t *testing.T) {
	t.Parallel()
	c := newTestChunker(WithSilenceThreshold(0.01))

	_ = c.Feed(make([]float32, 100))
	if _, ok := c.Cut(); ok {
		t.Fatal("silent audio produced a window")
	}

	loud := make([]float32, 100)
	for i := range loud {
		loud[i] = 0.5
	}
	_ = c.Feed(loud)
	w, ok := c.Cut()
	if !ok {
		t.Fatal("loud audio produced no window")
	}
	if len(w.Samples) != 100 {
		t.Errorf("window after silence has %d samples, want 100 (no stale overlap)", len(w.Samples))
	}
}

func TestChunker_PendingBufferIsBounded(t *testing.T) {
	t.Parallel()
	c := newTestChunker()

	_ = c.Feed(ramp(0, 1000))
	w, ok := c.Cut()
	if !ok {
		t.Fatal("Cut produced nothing")
	}
	if len(w.Samples) != 400 {
		t.Errorf("window has %d samples, want 400 (four intervals)", len(w.Samples))
	}
	if w.Start != 600*time.Millisecond {
		t.Errorf("Start = %v, want 600ms", w.Start)
	}
}

func TestChunker_FeedPCMCarriesOddByte(t *testing.T) {
	t.Parallel()
	c := newTestChunker()

	pcm := make([]byte, 6)
	for i := range 3 {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(16384))
	}
	_ = c.FeedPCM(pcm[:3])
	_ = c.FeedPCM(pcm[3:])

	w, ok := c.Cut()
	if !ok {
		t.Fatal("Cut produced nothing")
	}
	if len(w.Samples) != 3 {
		t.Fatalf("window has %d samples, want 3", len(w.Samples))
	}
	for i, s := range w.Samples {
		if s != 0.5 {
			t.Errorf("sample %d = %f, want 0.5", i, s)
		}
	}
}

func TestChunker_OverlapClampedBelowInterval(t *testing.T) {
	t.Parallel()
	c := NewChunker(1000, WithInterval(100*time.Millisecond), WithOverlap(time.Second))

	_ = c.Feed(ramp(0, 100))
	c.Cut()
	_ = c.Feed(ramp(100, 100))
	w, _ := c.Cut()
	if len(w.Samples) != 150 {
		t.Errorf("window has %d samples, want 150 (overlap clamped to half the interval)", len(w.Samples))
	}
}

func TestChunker_RunCutsOnTicker(t *testing.T) {
	t.Parallel()
	c := NewChunker(1000, WithInterval(100*time.Millisecond), WithOverlap(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_ = c.Feed(ramp(0, 50))

	nextCtx, nextCancel := context.WithTimeout(ctx, time.Second)
	defer nextCancel()
	w, err := c.Next(nextCtx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(w.Samples) != 50 {
		t.Errorf("window has %d samples, want 50", len(w.Samples))
	}

	c.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestChunker_RunCutsCappedBuffer(t *testing.T) {
	t.Parallel()
	// 10 ms windows at 1 kHz cap the uncut buffer at 4 * 10 = 40 samples.
	c := NewChunker(1000, WithInterval(10*time.Millisecond), WithOverlap(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		c.Close()
		<-done
	}()

	_ = c.Feed(ramp(0, 50))

	nextCtx, nextCancel := context.WithTimeout(ctx, time.Second)
	defer nextCancel()
	w, err := c.Next(nextCtx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(w.Samples) != 40 {
		t.Fatalf("window has %d samples, want 40", len(w.Samples))
	}
	if w.Start != 10*time.Millisecond {
		t.Errorf("Start = %v, want 10ms (oldest 10 samples dropped)", w.Start)
	}
	if w.Samples[0] != ramp(10, 1)[0] {
		t.Errorf("first sample = %v, want %v", w.Samples[0], ramp(10, 1)[0])
	}
}
