package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/countrycall/internal/observe"
	"github.com/MrWong99/countrycall/pkg/audio"
)

const (
	defaultInterval      = 2 * time.Second
	defaultOverlap       = 500 * time.Millisecond
	defaultQueueCapacity = 2

	// maxPendingWindows bounds the not-yet-cut buffer in multiples of the
	// window interval.
	maxPendingWindows = 4
)

// ChunkerOption is a functional option for configuring a [Chunker].
type ChunkerOption func(*Chunker)

// WithInterval sets how much new audio each window carries and how often
// [Chunker.Run] cuts. Default: 2 s.
func WithInterval(d time.Duration) ChunkerOption {
	return func(c *Chunker) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithOverlap sets how much of the previous window's tail is repeated at the
// start of the next one. It is clamped below the interval. Default: 500 ms.
func WithOverlap(d time.Duration) ChunkerOption {
	return func(c *Chunker) {
		c.overlap = max(d, 0)
	}
}

// WithQueueCapacity sets the number of cut windows that may wait for the
// consumer before the oldest is dropped. Default: 2.
func WithQueueCapacity(n int) ChunkerOption {
	return func(c *Chunker) {
		c.queueCapacity = n
	}
}

// WithSilenceThreshold skips windows whose new audio has an RMS energy below
// rms (normalised units, 0.0–1.0). Zero disables the gate. Default: 0.
func WithSilenceThreshold(rms float64) ChunkerOption {
	return func(c *Chunker) {
		c.silenceRMS = rms
	}
}

// WithBackpressure registers fn to be called with every window evicted from
// the full queue. fn runs on the cutting goroutine and must not block.
func WithBackpressure(fn func(Window)) ChunkerOption {
	return func(c *Chunker) {
		c.onBackpressure = fn
	}
}

// WithChunkerMetrics records emitted and dropped windows on m.
func WithChunkerMetrics(m *observe.Metrics) ChunkerOption {
	return func(c *Chunker) {
		c.metrics = m
	}
}

// Chunker buffers fed samples and cuts them into overlapping windows.
//
// A single producer calls Feed or FeedPCM, one goroutine cuts (Run or Cut)
// and one consumer calls Next. All methods are safe for concurrent use.
// Once closed, a Chunker cannot be restarted.
type Chunker struct {
	sampleRate     int
	interval       time.Duration
	overlap        time.Duration
	queueCapacity  int
	silenceRMS     float64
	onBackpressure func(Window)
	metrics        *observe.Metrics

	mu        sync.Mutex
	pending   []float32
	tail      []float32
	tailStart int64 // stream sample index of tail[0]
	fed       int64 // total samples ever fed
	seq       uint64
	closed    bool
	conv      *audio.Converter

	queue *DropQueue[Window]
	done  chan struct{}
}

// NewChunker returns a Chunker for mono audio at sampleRate Hz.
func NewChunker(sampleRate int, opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		sampleRate:    sampleRate,
		interval:      defaultInterval,
		overlap:       defaultOverlap,
		queueCapacity: defaultQueueCapacity,
		done:          make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.overlap >= c.interval {
		c.overlap = c.interval / 2
	}
	c.queue = NewDropQueue[Window](c.queueCapacity)
	c.conv = audio.NewConverter(audio.Format{SampleRate: sampleRate, Channels: 1}, sampleRate)
	return c
}

// Interval returns the configured cut interval.
func (c *Chunker) Interval() time.Duration {
	return c.interval
}

// Feed appends mono samples to the buffer. When the uncut buffer exceeds
// four intervals of audio the oldest samples are discarded. Returns
// [ErrClosed] after Close.
func (c *Chunker) Feed(samples []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feedLocked(samples)
}

// FeedPCM decodes 16-bit signed little-endian mono PCM and feeds it. A
// trailing odd byte is kept until the next call.
func (c *Chunker) FeedPCM(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.feedLocked(c.conv.Convert(pcm))
}

func (c *Chunker) feedLocked(samples []float32) error {
	if c.closed {
		return ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}
	c.pending = append(c.pending, samples...)
	c.fed += int64(len(samples))

	limit := maxPendingWindows * durationToSamples(c.interval, c.sampleRate)
	if limit > 0 && len(c.pending) > limit {
		excess := len(c.pending) - limit
		c.pending = append(c.pending[:0], c.pending[excess:]...)
		// The overlap tail no longer precedes the buffer.
		c.tail = nil
		if c.metrics != nil {
			c.metrics.RecordWindowDropped(context.Background(), observe.DropStageBuffer)
		}
		slog.Debug("chunker buffer full, dropped oldest samples", "samples", excess)
	}
	return nil
}

// Cut builds a window from the previous window's overlap tail plus every
// sample fed since the last cut and queues it. It returns false when there
// is no new audio, the new audio is below the silence threshold, or the
// chunker is closed.
func (c *Chunker) Cut() (Window, bool) {
	c.mu.Lock()
	if c.closed || len(c.pending) == 0 {
		c.mu.Unlock()
		return Window{}, false
	}

	fresh := c.pending
	c.pending = nil
	freshStart := c.fed - int64(len(fresh))

	if c.silenceRMS > 0 && audio.RMS(fresh) < c.silenceRMS {
		c.tail = nil
		c.mu.Unlock()
		return Window{}, false
	}

	start := freshStart
	samples := fresh
	if len(c.tail) > 0 && c.tailStart+int64(len(c.tail)) == freshStart {
		samples = make([]float32, 0, len(c.tail)+len(fresh))
		samples = append(samples, c.tail...)
		samples = append(samples, fresh...)
		start = c.tailStart
	}

	overlapN := min(durationToSamples(c.overlap, c.sampleRate), len(samples))
	c.tail = append([]float32(nil), samples[len(samples)-overlapN:]...)
	c.tailStart = start + int64(len(samples)-overlapN)

	c.seq++
	w := Window{
		Seq:        c.seq,
		Samples:    samples,
		SampleRate: c.sampleRate,
		Start:      samplesToDuration(start, c.sampleRate),
		Length:     samplesToDuration(int64(len(samples)), c.sampleRate),
	}
	c.mu.Unlock()

	evicted, dropped := c.queue.Push(w)
	if c.metrics != nil {
		c.metrics.WindowsEmitted.Add(context.Background(), 1)
	}
	if dropped {
		if c.metrics != nil {
			c.metrics.RecordWindowDropped(context.Background(), observe.DropStageQueue)
		}
		if c.onBackpressure != nil {
			c.onBackpressure(evicted)
		}
	}
	return w, true
}

// Run cuts a window every interval until ctx is done or the chunker is
// closed. It always returns nil.
func (c *Chunker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-ticker.C:
			c.Cut()
		}
	}
}

// Next returns the next queued window, blocking until one is cut. After
// Close it returns [ErrClosed]; queued windows are discarded.
func (c *Chunker) Next(ctx context.Context) (Window, error) {
	return c.queue.Pop(ctx)
}

// Queued returns the number of windows waiting for the consumer.
func (c *Chunker) Queued() int {
	return c.queue.Len()
}

// Dropped returns the number of windows evicted by backpressure.
func (c *Chunker) Dropped() int64 {
	return c.queue.Dropped()
}

// Close ends the window sequence. Further Feed calls return [ErrClosed].
// Calling Close more than once is safe.
func (c *Chunker) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = nil
	c.tail = nil
	close(c.done)
	c.mu.Unlock()

	c.queue.Close()
}
