package input

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hoopship/hoopship/agent/internal/format"
	"github.com/hoopship/hoopship/agent/internal/metrics"
)

func collect(t *testing.T, n *NDJSON, input string) []format.Event {
	t.Helper()
	var got []format.Event
	if err := n.Read(context.Background(), strings.NewReader(input), func(ev format.Event) {
		got = append(got, ev)
	}); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return got
}

func TestNDJSON_Envelope(t *testing.T) {
	got := collect(t, &NDJSON{}, `{"tag":"app.access","time":1388534400,"record":{"k":"v","n":3,"f":1.5,"ok":true,"nil":null}}`+"\n")
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	ev := got[0]
	if ev.Tag != "app.access" {
		t.Errorf("Tag = %q", ev.Tag)
	}
	if !ev.Time.Equal(time.Unix(1388534400, 0)) {
		t.Errorf("Time = %v", ev.Time)
	}
	want := format.Record{"k": "v", "n": int64(3), "f": 1.5, "ok": true, "nil": nil}
	for k, v := range want {
		if ev.Record[k] != v {
			t.Errorf("Record[%q] = %#v, want %#v", k, ev.Record[k], v)
		}
	}
	if _, ok := ev.Record["nil"]; !ok {
		t.Error("null field missing from record")
	}
}

func TestNDJSON_BareObject(t *testing.T) {
	now := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	n := &NDJSON{Tag: "raw", Now: func() time.Time { return now }}

	got := collect(t, n, `{"message":"hello","level":"info"}`+"\n")
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	ev := got[0]
	if ev.Tag != "raw" {
		t.Errorf("Tag = %q, want default tag", ev.Tag)
	}
	if !ev.Time.Equal(now) {
		t.Errorf("Time = %v, want clock time", ev.Time)
	}
	if ev.Record["message"] != "hello" || ev.Record["level"] != "info" || len(ev.Record) != 2 {
		t.Errorf("Record = %v", ev.Record)
	}
}

func TestNDJSON_TimeForms(t *testing.T) {
	tests := []struct {
		name string
		line string
		want time.Time
	}{
		{"epoch seconds", `{"time":1388534400}`, time.Unix(1388534400, 0)},
		{"fractional epoch", `{"time":1388534400.5}`, time.Unix(1388534400, 500000000)},
		{"rfc3339", `{"time":"2014-01-01T00:00:00Z"}`, time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"rfc3339 nano offset", `{"time":"2014-01-01T09:00:00.25+09:00"}`, time.Date(2014, 1, 1, 0, 0, 0, 250000000, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := collect(t, &NDJSON{}, tc.line)
			if len(got) != 1 {
				t.Fatalf("events = %d, want 1", len(got))
			}
			if !got[0].Time.Equal(tc.want) {
				t.Errorf("Time = %v, want %v", got[0].Time, tc.want)
			}
			if _, ok := got[0].Record["time"]; ok {
				t.Error("time field leaked into record")
			}
		})
	}
}

func TestNDJSON_SkipsMalformed(t *testing.T) {
	reg := metrics.New()
	input := strings.Join([]string{
		`{"tag":"a","record":{"n":1}}`,
		`not json`,
		`[1,2,3]`,
		``,
		`{"tag":5}`,
		`{"time":"yesterday"}`,
		`{"record":"scalar"}`,
		`{"tag":"b","record":{"n":2}}`,
	}, "\n")

	got := collect(t, &NDJSON{Metrics: reg}, input)
	if len(got) != 2 || got[0].Tag != "a" || got[1].Tag != "b" {
		t.Fatalf("events = %+v, want tags a and b", got)
	}
	if v := reg.EventsInvalid.Value("ndjson"); v != 5 {
		t.Errorf("invalid = %v, want 5", v)
	}
	if v := reg.EventsReceived.Value("ndjson"); v != 2 {
		t.Errorf("received = %v, want 2", v)
	}
}

func TestNDJSON_NestedValuesSurviveParserReuse(t *testing.T) {
	got := collect(t, &NDJSON{}, `{"record":{"m":{"a":[1,"x"]}}}`+"\n"+`{"record":{"m":{"a":[2,"y"]}}}`)
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	f, err := format.New(format.Config{DataType: "json"})
	if err != nil {
		t.Fatal(err)
	}
	if line := string(f.FormatEvent(got[0])); line != `{"m":{"a":[1,"x"]}}` {
		t.Errorf("first event rendered as %s", line)
	}
}

func TestNDJSON_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := (&NDJSON{}).Read(ctx, strings.NewReader("{}\n{}\n"), func(format.Event) { calls++ })
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if calls != 0 {
		t.Errorf("emitted %d events after cancel", calls)
	}
}
