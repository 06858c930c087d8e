package input

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/leodido/go-syslog/v4"
	"github.com/leodido/go-syslog/v4/rfc5424"

	"github.com/hoopship/hoopship/agent/internal/format"
	"github.com/hoopship/hoopship/agent/internal/metrics"
)

const (
	// DefaultSyslogTagPrefix is used when Syslog.TagPrefix is empty.
	DefaultSyslogTagPrefix = "syslog"

	maxDatagram = 64 * 1024
)

// Syslog receives RFC 5424 messages over UDP. Each message becomes an event
// tagged <TagPrefix>.<app-name> with the header fields as its record.
type Syslog struct {
	Addr      string
	TagPrefix string
	Logger    *slog.Logger
	Metrics   *metrics.Registry
}

// Listen binds Addr and serves until ctx is cancelled.
func (s *Syslog) Listen(ctx context.Context, emit Emit) error {
	conn, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		return fmt.Errorf("input: syslog listen %s: %w", s.Addr, err)
	}
	return s.Serve(ctx, conn, emit)
}

// Serve reads datagrams from conn until ctx is cancelled and closes conn on
// return. A datagram may carry several newline-separated messages.
func (s *Syslog) Serve(ctx context.Context, conn net.PacketConn, emit Emit) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	reg := s.Metrics
	if reg == nil {
		reg = metrics.New()
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()

	log.Info("input: syslog listening", "addr", conn.LocalAddr().String())

	parser := rfc5424.NewParser(rfc5424.WithBestEffort())
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("input: syslog read: %w", err)
		}

		for _, part := range bytes.Split(buf[:n], []byte("\n")) {
			part = bytes.TrimSpace(part)
			if len(part) == 0 {
				continue
			}
			ev, err := s.parse(parser, part)
			if err != nil {
				reg.EventsInvalid.Inc("syslog")
				log.Debug("input: skipping malformed syslog message", "err", err)
				continue
			}
			reg.EventsReceived.Inc("syslog")
			emit(ev)
		}
	}
}

// parse accepts partial messages from the best-effort parser as long as the
// header up to the app-name was read.
func (s *Syslog) parse(parser syslog.Machine, data []byte) (format.Event, error) {
	msg, err := parser.Parse(data)
	if msg == nil {
		if err == nil {
			err = errors.New("empty message")
		}
		return format.Event{}, err
	}
	m, ok := msg.(*rfc5424.SyslogMessage)
	if !ok {
		return format.Event{}, fmt.Errorf("unexpected message type %T", msg)
	}

	prefix := s.TagPrefix
	if prefix == "" {
		prefix = DefaultSyslogTagPrefix
	}
	app := deref(m.Appname)
	tag := prefix
	if app != "" {
		tag = prefix + "." + app
	}

	ts := time.Now()
	if m.Timestamp != nil {
		ts = *m.Timestamp
	}

	rec := format.Record{
		"host":    deref(m.Hostname),
		"ident":   app,
		"pid":     deref(m.ProcID),
		"msgid":   deref(m.MsgID),
		"message": deref(m.Message),
	}
	if m.Priority != nil {
		rec["facility"] = int64(*m.Priority / 8)
		rec["severity"] = int64(*m.Priority % 8)
	}
	if m.StructuredData != nil && len(*m.StructuredData) > 0 {
		sd := make(map[string]any, len(*m.StructuredData))
		for id, params := range *m.StructuredData {
			p := make(map[string]any, len(params))
			for k, v := range params {
				p[k] = v
			}
			sd[id] = p
		}
		rec["sd"] = sd
	}
	return format.Event{Tag: tag, Time: ts, Record: rec}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
