// Package metrics keeps the agent's delivery counters and exposes them in the
// Prometheus text exposition format.
//
// Counters are plain atomic-backed series rendered into client_model
// MetricFamily values on every scrape and encoded with expfmt. Methods on a
// nil *Counter or nil *Registry record nothing.
package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const namespace = "hoopship"

// Counter is a monotonically increasing value partitioned by label values.
type Counter struct {
	name   string
	help   string
	labels []string

	mu     sync.Mutex
	series map[string]*series
}

type series struct {
	values []string
	value  float64
}

// Add increases the series identified by labelValues by v.
// labelValues must match the counter's label names in number and order.
func (c *Counter) Add(v float64, labelValues ...string) {
	if c == nil || v < 0 {
		return
	}
	key := strings.Join(labelValues, "\xff")
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.series[key]
	if !ok {
		s = &series{values: append([]string(nil), labelValues...)}
		c.series[key] = s
	}
	s.value += v
}

// Inc adds one.
func (c *Counter) Inc(labelValues ...string) { c.Add(1, labelValues...) }

// Value returns the current value of one series.
func (c *Counter) Value(labelValues ...string) float64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.series[strings.Join(labelValues, "\xff")]; ok {
		return s.value
	}
	return 0
}

func (c *Counter) family() *dto.MetricFamily {
	c.mu.Lock()
	defer c.mu.Unlock()

	mf := &dto.MetricFamily{
		Name: proto.String(c.name),
		Help: proto.String(c.help),
		Type: dto.MetricType_COUNTER.Enum(),
	}
	keys := make([]string, 0, len(c.series))
	for k := range c.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := c.series[k]
		m := &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(s.value)}}
		for i, name := range c.labels {
			m.Label = append(m.Label, &dto.LabelPair{
				Name:  proto.String(name),
				Value: proto.String(s.values[i]),
			})
		}
		mf.Metric = append(mf.Metric, m)
	}
	if len(mf.Metric) == 0 && len(c.labels) == 0 {
		mf.Metric = []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(0)}}}
	}
	return mf
}

type gaugeFunc struct {
	name string
	help string
	fn   func() float64
}

func (g *gaugeFunc) family() *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(g.name),
		Help: proto.String(g.help),
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{
			{Gauge: &dto.Gauge{Value: proto.Float64(g.fn())}},
		},
	}
}

type collector interface {
	family() *dto.MetricFamily
}

// Registry holds every agent metric.
type Registry struct {
	// EventsReceived counts events read from inputs, by input type.
	EventsReceived *Counter
	// EventsInvalid counts input lines that could not be parsed, by input type.
	EventsInvalid *Counter
	// Chunks counts Shipper.Write outcomes: delivered | rejected | failed.
	Chunks *Counter
	// ChunksDropped counts chunks discarded after the requeue limit.
	ChunksDropped *Counter
	// BytesWritten counts chunk bytes accepted by the store.
	BytesWritten *Counter
	// Requests counts HTTP requests to the store, by op and status code.
	Requests *Counter
	// Retries counts server-error retries inside a delivery.
	Retries *Counter

	mu         sync.Mutex
	collectors []collector
}

// New returns a Registry with all agent counters registered.
func New() *Registry {
	r := &Registry{}
	r.EventsReceived = r.NewCounter("events_received_total", "Events read from inputs.", "input")
	r.EventsInvalid = r.NewCounter("events_invalid_total", "Input lines that could not be parsed.", "input")
	r.Chunks = r.NewCounter("chunks_total", "Chunk write outcomes.", "outcome")
	r.ChunksDropped = r.NewCounter("chunks_dropped_total", "Chunks discarded after exhausting requeues.")
	r.BytesWritten = r.NewCounter("written_bytes_total", "Chunk bytes accepted by the store.")
	r.Requests = r.NewCounter("requests_total", "HTTP requests sent to the store.", "op", "code")
	r.Retries = r.NewCounter("retries_total", "Requests repeated after a server error.")
	return r
}

// NewCounter registers a counter named hoopship_<name>.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := &Counter{
		name:   namespace + "_" + name,
		help:   help,
		labels: labels,
		series: make(map[string]*series),
	}
	if len(labels) == 0 {
		// Unlabelled counters are exported at zero before the first Inc.
		c.series[""] = &series{}
	}
	r.register(c)
	return c
}

// NewGaugeFunc registers a gauge whose value is read from fn at scrape time.
func (r *Registry) NewGaugeFunc(name, help string, fn func() float64) {
	if r == nil {
		return
	}
	r.register(&gaugeFunc{name: namespace + "_" + name, help: help, fn: fn})
}

func (r *Registry) register(c collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors = append(r.collectors, c)
}

// ObserveRequest implements hoop.Observer.
func (r *Registry) ObserveRequest(op string, code int) {
	if r == nil {
		return
	}
	r.Requests.Inc(op, strconv.Itoa(code))
}

// ObserveRetry implements hoop.Observer.
func (r *Registry) ObserveRetry() {
	if r == nil {
		return
	}
	r.Retries.Inc()
}

// Gather renders every registered metric, sorted by name. Labelled counters
// without any series yet are left out; expfmt rejects empty families.
func (r *Registry) Gather() []*dto.MetricFamily {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	cs := append([]collector(nil), r.collectors...)
	r.mu.Unlock()

	out := make([]*dto.MetricFamily, 0, len(cs))
	for _, c := range cs {
		if mf := c.family(); len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// WriteText writes all metrics to w in the text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Handler serves the metrics in the text exposition format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := r.WriteText(w); err != nil {
			slog.Warn("metrics: write response failed", "err", err)
		}
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
