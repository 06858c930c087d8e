package shipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hoopship/hoopship/agent/internal/format"
	"github.com/hoopship/hoopship/agent/internal/hoop"
	"github.com/hoopship/hoopship/agent/internal/metrics"
	"github.com/hoopship/hoopship/agent/internal/partition"
)

// Chunk is a finalized batch of formatted lines sharing one partition key.
// It must not change while a Write for it is in progress.
type Chunk interface {
	Key() string
	Read() ([]byte, error)
}

// Deliverer performs the append-or-create transfer. *hoop.Client implements it.
type Deliverer interface {
	Deliver(ctx context.Context, path string, body []byte) (*hoop.Response, error)
}

// Options wires a Shipper's collaborators.
type Options struct {
	Formatter *format.Formatter
	Router    *partition.Router
	Client    Deliverer

	// Endpoint is the store address, used in failure logs.
	Endpoint hoop.Endpoint

	// Codec compresses chunk bodies; nil sends them as-is.
	Codec Codec

	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// Shipper orchestrates path resolution and delivery for each chunk.
type Shipper struct {
	formatter atomic.Pointer[format.Formatter]
	router    *partition.Router
	client    Deliverer
	endpoint  hoop.Endpoint
	codec     Codec
	log       *slog.Logger
	metrics   *metrics.Registry
}

// New returns a Shipper. Router and Client are required.
func New(opts Options) (*Shipper, error) {
	if opts.Router == nil {
		return nil, errors.New("shipper: router is required")
	}
	if opts.Client == nil {
		return nil, errors.New("shipper: client is required")
	}
	s := &Shipper{
		router:   opts.Router,
		client:   opts.Client,
		endpoint: opts.Endpoint,
		codec:    opts.Codec,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	if s.codec == nil {
		s.codec = plainCodec{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if opts.Formatter != nil {
		s.formatter.Store(opts.Formatter)
	}
	return s, nil
}

// SetFormatter replaces the line formatter used by Format.
func (s *Shipper) SetFormatter(f *format.Formatter) {
	s.formatter.Store(f)
}

// Format renders one event with the current formatter.
func (s *Shipper) Format(tag string, t time.Time, rec format.Record) []byte {
	f := s.formatter.Load()
	if f == nil {
		return nil
	}
	return f.Format(tag, t, rec)
}

// Key returns the partition key of the time slice containing t.
func (s *Shipper) Key(t time.Time) string {
	return s.router.Key(t)
}

// Write delivers chunk and returns its destination path.
func (s *Shipper) Write(ctx context.Context, chunk Chunk) (string, error) {
	path, err := s.router.Resolve(chunk.Key())
	if err != nil {
		return "", s.fail(chunk, "", fmt.Errorf("shipper: %w", err))
	}
	path += s.codec.Ext()

	data, err := chunk.Read()
	if err != nil {
		return "", s.fail(chunk, path, fmt.Errorf("shipper: read chunk %s: %w", chunk.Key(), err))
	}
	body, err := s.codec.Encode(data)
	if err != nil {
		return "", s.fail(chunk, path, fmt.Errorf("shipper: encode chunk %s: %w", chunk.Key(), err))
	}

	start := time.Now()
	res, err := s.client.Deliver(ctx, path, body)
	if err != nil {
		return "", s.fail(chunk, path, err)
	}

	if !res.Delivered() {
		// Surfaced through the client's warning log only; the host may
		// re-flush, the chunk is not failed here.
		s.metrics.Chunks.Inc("rejected")
		return path, nil
	}

	s.metrics.Chunks.Inc("delivered")
	s.metrics.BytesWritten.Add(float64(len(body)))
	s.log.Debug("shipper: chunk delivered",
		"path", path,
		"bytes", len(body),
		"created", res.Created,
		"attempts", res.Attempts,
		"took", time.Since(start))
	return path, nil
}

// fail logs a failed write with the store address and returns err unchanged.
func (s *Shipper) fail(chunk Chunk, path string, err error) error {
	s.log.Error("shipper: failed to communicate with server",
		"host", s.endpoint.Host,
		"port", s.endpoint.Port,
		"key", chunk.Key(),
		"path", path,
		"err", err)
	s.metrics.Chunks.Inc("failed")
	return err
}
