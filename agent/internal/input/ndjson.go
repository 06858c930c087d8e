package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/valyala/fastjson"

	"github.com/hoopship/hoopship/agent/internal/format"
	"github.com/hoopship/hoopship/agent/internal/metrics"
)

const (
	// DefaultNDJSONTag is used for lines without a "tag" field.
	DefaultNDJSONTag = "stdin"

	maxLineSize = 1 << 20
)

// NDJSON reads newline-delimited JSON events:
//
//	{"tag": "app.access", "time": 1388534400, "record": {"k": "v"}}
//
// "time" is epoch seconds (fractions allowed) or an RFC 3339 string and
// defaults to the read time. Without a "record" object the whole line, minus
// "tag" and "time", is the record.
type NDJSON struct {
	Tag     string
	Logger  *slog.Logger
	Metrics *metrics.Registry

	// Now is the clock used for events without a time; nil means time.Now.
	Now func() time.Time
}

// Read parses r until EOF or ctx is cancelled.
func (n *NDJSON) Read(ctx context.Context, r io.Reader, emit Emit) error {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := n.Metrics
	if reg == nil {
		reg = metrics.New()
	}

	var p fastjson.Parser
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := n.parse(&p, line)
		if err != nil {
			reg.EventsInvalid.Inc("ndjson")
			log.Debug("input: skipping malformed ndjson line", "err", err)
			continue
		}
		reg.EventsReceived.Inc("ndjson")
		emit(ev)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("input: read ndjson: %w", err)
	}
	return nil
}

func (n *NDJSON) parse(p *fastjson.Parser, line []byte) (format.Event, error) {
	v, err := p.ParseBytes(line)
	if err != nil {
		return format.Event{}, err
	}
	obj, err := v.Object()
	if err != nil {
		return format.Event{}, err
	}

	ev := format.Event{Tag: n.Tag}
	if ev.Tag == "" {
		ev.Tag = DefaultNDJSONTag
	}
	if tv := obj.Get("tag"); tv != nil {
		tag, err := tv.StringBytes()
		if err != nil {
			return format.Event{}, fmt.Errorf("tag: %w", err)
		}
		ev.Tag = string(tag)
	}

	ev.Time, err = n.eventTime(obj.Get("time"))
	if err != nil {
		return format.Event{}, err
	}

	if rv := obj.Get("record"); rv != nil {
		ro, err := rv.Object()
		if err != nil {
			return format.Event{}, fmt.Errorf("record: %w", err)
		}
		ev.Record = objectRecord(ro, false)
	} else {
		ev.Record = objectRecord(obj, true)
	}
	return ev, nil
}

func (n *NDJSON) eventTime(v *fastjson.Value) (time.Time, error) {
	if v == nil || v.Type() == fastjson.TypeNull {
		if n.Now != nil {
			return n.Now(), nil
		}
		return time.Now(), nil
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("time: %w", err)
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)), nil
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		t, err := time.Parse(time.RFC3339Nano, string(b))
		if err != nil {
			return time.Time{}, fmt.Errorf("time: %w", err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("time: unsupported type %s", v.Type())
	}
}

func objectRecord(o *fastjson.Object, skipEnvelope bool) format.Record {
	rec := make(format.Record, o.Len())
	o.Visit(func(key []byte, v *fastjson.Value) {
		k := string(key)
		if skipEnvelope && (k == "tag" || k == "time") {
			return
		}
		rec[k] = toValue(v)
	})
	return rec
}

// toValue copies v out of the parser's arena. Integral numbers that fit
// become int64, the rest float64.
func toValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		return map[string]any(objectRecord(o, false))
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toValue(item)
		}
		return out
	case fastjson.TypeString:
		b, _ := v.StringBytes()
		return string(b)
	case fastjson.TypeNumber:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}
