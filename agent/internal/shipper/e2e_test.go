package shipper_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/hoopship/hoopship/agent/internal/buffer"
	"github.com/hoopship/hoopship/agent/internal/format"
	"github.com/hoopship/hoopship/agent/internal/hoop"
	"github.com/hoopship/hoopship/agent/internal/partition"
	"github.com/hoopship/hoopship/agent/internal/shipper"
	"github.com/hoopship/hoopship/server/emulator"
)

// These tests run the shipper and the delivery client against the WebHDFS
// emulator over real HTTP.

const pattern = "/logs/%Y/%m/%d/app.log"

type chunk struct {
	key  string
	data []byte
}

func (c chunk) Key() string            { return c.key }
func (c chunk) Read() ([]byte, error) { return c.data, nil }

func startEmulator(t *testing.T, opts emulator.Options) (*emulator.Emulator, hoop.Endpoint) {
	t.Helper()
	emu := emulator.New(opts)
	srv := httptest.NewServer(emu)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return emu, hoop.Endpoint{Host: host, Port: port, Username: "hoop"}
}

func newLiveShipper(t *testing.T, ep hoop.Endpoint, codec string) *shipper.Shipper {
	t.Helper()
	router, err := partition.NewRouter(pattern, nil)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	f, err := format.New(format.DefaultConfig())
	if err != nil {
		t.Fatalf("format.New() error = %v", err)
	}
	c, err := shipper.NewCodec(codec)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	s, err := shipper.New(shipper.Options{
		Formatter: f,
		Router:    router,
		Client:    hoop.New(ep),
		Endpoint:  ep,
		Codec:     c,
	})
	if err != nil {
		t.Fatalf("shipper.New() error = %v", err)
	}
	return s
}

func TestLive_CreateThenAppend(t *testing.T) {
	emu, ep := startEmulator(t, emulator.Options{})
	s := newLiveShipper(t, ep, "")
	ctx := context.Background()

	for _, line := range []string{"one\n", "two\n"} {
		path, err := s.Write(ctx, chunk{key: "20140101", data: []byte(line)})
		if err != nil {
			t.Fatalf("Write(%q) error = %v", line, err)
		}
		if path != "/logs/2014/01/01/app.log" {
			t.Errorf("path = %q", path)
		}
	}

	got, err := emu.Open("/logs/2014/01/01/app.log")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(got) != "one\ntwo\n" {
		t.Errorf("file = %q, want %q", got, "one\ntwo\n")
	}
}

func TestLive_ServerErrors(t *testing.T) {
	tests := []struct {
		faults  int
		wantErr bool
	}{
		{3, false},
		{4, true},
	}
	for _, tc := range tests {
		t.Run(strconv.Itoa(tc.faults), func(t *testing.T) {
			emu, ep := startEmulator(t, emulator.Options{})
			emu.InjectFault("append", http.StatusInternalServerError, tc.faults)
			s := newLiveShipper(t, ep, "")

			_, err := s.Write(context.Background(), chunk{key: "20140101", data: []byte("x\n")})
			if tc.wantErr {
				if !errors.Is(err, hoop.ErrServerError) {
					t.Fatalf("Write() error = %v, want ErrServerError", err)
				}
				if emu.Files() != 0 {
					t.Errorf("files = %d, want 0", emu.Files())
				}
				return
			}
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if got, _ := emu.Open("/logs/2014/01/01/app.log"); string(got) != "x\n" {
				t.Errorf("file = %q, want %q", got, "x\n")
			}
		})
	}
}

func TestLive_Unauthorized(t *testing.T) {
	emu, ep := startEmulator(t, emulator.Options{AuthMode: "pseudo", Users: []string{"hdfs"}})
	s := newLiveShipper(t, ep, "")

	_, err := s.Write(context.Background(), chunk{key: "20140101", data: []byte("x\n")})
	if !errors.Is(err, hoop.ErrUnauthorized) {
		t.Fatalf("Write() error = %v, want ErrUnauthorized", err)
	}
	if emu.Files() != 0 {
		t.Errorf("files = %d, want 0", emu.Files())
	}
}

func TestLive_GzipAppendsStayReadable(t *testing.T) {
	emu, ep := startEmulator(t, emulator.Options{})
	s := newLiveShipper(t, ep, "gzip")

	for _, line := range []string{"one\n", "two\n"} {
		if _, err := s.Write(context.Background(), chunk{key: "20140101", data: []byte(line)}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	raw, err := emu.Open("/logs/2014/01/01/app.log.gz")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if string(got) != "one\ntwo\n" {
		t.Errorf("decoded = %q, want %q", got, "one\ntwo\n")
	}
}

func TestLive_BufferDrainsOnShutdown(t *testing.T) {
	emu, ep := startEmulator(t, emulator.Options{})
	s := newLiveShipper(t, ep, "")

	b, err := buffer.New(buffer.Options{
		Writer:        s,
		KeyFunc:       s.Key,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("buffer.New() error = %v", err)
	}

	jan1 := time.Date(2014, 1, 1, 12, 0, 0, 0, time.UTC)
	jan2 := jan1.Add(24 * time.Hour)
	b.AppendAt(jan1, s.Format("app", jan1, format.Record{"n": 1}))
	b.AppendAt(jan2, s.Format("app", jan2, format.Record{"n": 2}))
	b.AppendAt(jan1, s.Format("app", jan1, format.Record{"n": 3}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Run(ctx)

	want := map[string]string{
		"/logs/2014/01/01/app.log": "2014-01-01T12:00:00Z\tapp\t{\"n\":1}\n2014-01-01T12:00:00Z\tapp\t{\"n\":3}\n",
		"/logs/2014/01/02/app.log": "2014-01-02T12:00:00Z\tapp\t{\"n\":2}\n",
	}
	for path, body := range want {
		got, err := emu.Open(path)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", path, err)
		}
		if string(got) != body {
			t.Errorf("%s = %q, want %q", path, got, body)
		}
	}
	if b.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", b.Pending())
	}
}
