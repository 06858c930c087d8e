package buffer

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hoopship/hoopship/agent/internal/metrics"
	"github.com/hoopship/hoopship/agent/internal/shipper"
)

// Default values applied to zero Options fields.
const (
	DefaultFlushInterval   = 60 * time.Second
	DefaultSliceWait       = 10 * time.Second
	DefaultRetryLimit      = 17
	DefaultChunkLimit      = 8 << 20
	DefaultShutdownTimeout = 30 * time.Second
)

const (
	retryInitial = 1 * time.Second
	retryMax     = 60 * time.Second
)

// Writer delivers one chunk. *shipper.Shipper implements it.
type Writer interface {
	Write(ctx context.Context, chunk shipper.Chunk) (string, error)
}

// Options configures a Buffer.
type Options struct {
	Writer Writer
	// KeyFunc maps a timestamp to its partition key. Keys of one KeyFunc
	// must sort lexically in time order.
	KeyFunc func(time.Time) string

	FlushInterval   time.Duration
	SliceWait       time.Duration
	RetryLimit      int
	ChunkLimit      int
	ShutdownTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Registry

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Chunk is a batch of lines sharing one partition key.
type Chunk struct {
	id   string
	key  string
	data []byte

	retries int
	next    time.Time // not written again before next
}

func newChunk(key string) *Chunk {
	return &Chunk{id: uuid.NewString(), key: key}
}

// ID identifies the chunk in logs.
func (c *Chunk) ID() string { return c.id }

// Key returns the partition key.
func (c *Chunk) Key() string { return c.key }

// Read returns the chunk body.
func (c *Chunk) Read() ([]byte, error) { return c.data, nil }

// Len returns the body size in bytes.
func (c *Chunk) Len() int { return len(c.data) }

// Buffer accumulates lines per time slice. Append is safe for concurrent use
// with Run.
type Buffer struct {
	w               Writer
	keyFunc         func(time.Time) string
	flushInterval   time.Duration
	sliceWait       time.Duration
	retryLimit      int
	chunkLimit      int
	shutdownTimeout time.Duration
	log             *slog.Logger
	metrics         *metrics.Registry
	now             func() time.Time

	mu       sync.Mutex
	open     map[string]*Chunk
	queue    []*Chunk // closed chunks, oldest first
	inflight map[string]bool
	wg       sync.WaitGroup

	kick chan struct{}
}

// New returns a Buffer. Writer and KeyFunc are required.
func New(opts Options) (*Buffer, error) {
	if opts.Writer == nil {
		return nil, errors.New("buffer: writer is required")
	}
	if opts.KeyFunc == nil {
		return nil, errors.New("buffer: key func is required")
	}
	b := &Buffer{
		w:               opts.Writer,
		keyFunc:         opts.KeyFunc,
		flushInterval:   opts.FlushInterval,
		sliceWait:       opts.SliceWait,
		retryLimit:      opts.RetryLimit,
		chunkLimit:      opts.ChunkLimit,
		shutdownTimeout: opts.ShutdownTimeout,
		log:             opts.Logger,
		metrics:         opts.Metrics,
		now:             opts.Now,
		open:            make(map[string]*Chunk),
		inflight:        make(map[string]bool),
		kick:            make(chan struct{}, 1),
	}
	if b.flushInterval <= 0 {
		b.flushInterval = DefaultFlushInterval
	}
	if b.sliceWait < 0 {
		b.sliceWait = 0
	}
	if b.retryLimit < 0 {
		b.retryLimit = DefaultRetryLimit
	}
	if b.chunkLimit <= 0 {
		b.chunkLimit = DefaultChunkLimit
	}
	if b.shutdownTimeout <= 0 {
		b.shutdownTimeout = DefaultShutdownTimeout
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.metrics == nil {
		b.metrics = metrics.New()
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.metrics.NewGaugeFunc("buffer_chunks", "Chunks held in the buffer, open or queued.", func() float64 {
		return float64(b.Pending())
	})
	return b, nil
}

// Append adds line to the open chunk for key. A chunk that would exceed the
// chunk limit is closed first and queued for immediate delivery.
func (b *Buffer) Append(key string, line []byte) {
	if len(line) == 0 {
		return
	}
	b.mu.Lock()
	c := b.open[key]
	if c != nil && c.Len() > 0 && c.Len()+len(line) > b.chunkLimit {
		b.queue = append(b.queue, c)
		c = nil
		b.signal()
	}
	if c == nil {
		c = newChunk(key)
		b.open[key] = c
	}
	c.data = append(c.data, line...)
	b.mu.Unlock()
}

// AppendAt is Append with the key of t.
func (b *Buffer) AppendAt(t time.Time, line []byte) {
	b.Append(b.keyFunc(t), line)
}

func (b *Buffer) signal() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Pending returns the number of chunks not yet delivered, in flight included.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.open) + len(b.queue) + len(b.inflight)
}

// Run flushes on every tick until ctx is cancelled, then drains.
func (b *Buffer) Run(ctx context.Context) {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.Wait()
			b.drain()
			return
		case <-ticker.C:
			b.Flush(ctx)
		case <-b.kick:
			b.Flush(ctx)
		}
	}
}

// Flush closes every expired slice and starts writing each due chunk whose
// key has nothing in flight. It does not wait for the writes; see Wait.
func (b *Buffer) Flush(ctx context.Context) {
	now := b.now()
	cutoff := b.keyFunc(now.Add(-b.sliceWait))

	b.mu.Lock()
	defer b.mu.Unlock()

	for key, c := range b.open {
		if key < cutoff {
			b.queue = append(b.queue, c)
			delete(b.open, key)
		}
	}

	// held marks keys with an earlier chunk still waiting or in flight.
	held := make(map[string]bool)
	rest := b.queue[:0]
	for _, c := range b.queue {
		if held[c.key] || b.inflight[c.key] || c.next.After(now) {
			held[c.key] = true
			rest = append(rest, c)
			continue
		}
		held[c.key] = true
		b.inflight[c.key] = true
		b.wg.Add(1)
		go b.deliver(ctx, c)
	}
	b.queue = rest
}

func (b *Buffer) deliver(ctx context.Context, c *Chunk) {
	defer b.wg.Done()

	path, err := b.w.Write(ctx, c)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, c.key)

	if err == nil {
		b.log.Debug("buffer: chunk written", "chunk", c.id, "key", c.key, "path", path, "bytes", c.Len())
		return
	}
	if ctx.Err() != nil {
		// Shutdown interrupted the write; drain retries it.
		b.queue = append([]*Chunk{c}, b.queue...)
		return
	}

	c.retries++
	if c.retries > b.retryLimit {
		b.log.Error("buffer: dropping chunk after retry limit",
			"chunk", c.id,
			"key", c.key,
			"bytes", c.Len(),
			"retries", c.retries-1,
			"err", err)
		b.metrics.ChunksDropped.Inc()
		return
	}
	wait := retryDelay(c.retries)
	c.next = b.now().Add(wait)
	b.log.Warn("buffer: chunk write failed, will retry",
		"chunk", c.id,
		"key", c.key,
		"retry", c.retries,
		"retry_in", wait,
		"err", err)
	b.queue = append([]*Chunk{c}, b.queue...)
}

// retryDelay returns the wait before retry n, counted from 1: 1s doubling
// per retry up to 60s, with ±25 % jitter.
func retryDelay(n int) time.Duration {
	d := retryInitial
	for i := 1; i < n && d < retryMax; i++ {
		d *= 2
	}
	if d > retryMax {
		d = retryMax
	}
	return d + time.Duration(float64(d)*0.25*(rand.Float64()*2-1)) //nolint:gosec // not crypto
}

// Wait blocks until every write started by Flush has returned.
func (b *Buffer) Wait() {
	b.wg.Wait()
}

// drain writes every remaining chunk once, queued chunks first.
func (b *Buffer) drain() {
	b.mu.Lock()
	chunks := b.queue
	b.queue = nil
	keys := make([]string, 0, len(b.open))
	for key := range b.open {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		chunks = append(chunks, b.open[key])
		delete(b.open, key)
	}
	b.mu.Unlock()

	if len(chunks) > 0 {
		b.log.Info("buffer: flushing remaining chunks", "chunks", len(chunks))
	}
	for _, c := range chunks {
		ctx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
		_, err := b.w.Write(ctx, c)
		cancel()
		if err != nil {
			b.log.Error("buffer: chunk lost at shutdown",
				"chunk", c.id, "key", c.key, "bytes", c.Len(), "err", err)
			b.metrics.ChunksDropped.Inc()
		}
	}
}
