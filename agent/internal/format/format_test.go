package format

import (
	"errors"
	"testing"
	"time"
)

// jan1 is 2014-01-01T00:00:00Z.
var jan1 = time.Unix(1388534400, 0)

func mustNew(t *testing.T, cfg Config) *Formatter {
	t.Helper()
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}

func TestFormat_DefaultLayout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FieldSeparator = "\t" // not a token; falls back to tab

	f := mustNew(t, cfg)
	got := string(f.Format("app.access", jan1, Record{"k": "v"}))
	want := "2014-01-01T00:00:00Z\tapp.access\t{\"k\":\"v\"}\n"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormat_BodyOnly(t *testing.T) {
	rec := Record{"b": 2, "a": "x<y>&z", "nested": map[string]any{"ok": true}}
	const body = `{"a":"x<y>&z","b":2,"nested":{"ok":true}}`

	for _, newline := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.IncludeTime = false
		cfg.IncludeTag = false
		cfg.AddNewline = newline

		want := body
		if newline {
			want += "\n"
		}
		if got := string(mustNew(t, cfg).Format("any.tag", jan1, rec)); got != want {
			t.Errorf("newline=%v: Format() = %q, want %q", newline, got, want)
		}
	}
}

func TestFormat_PartCombinations(t *testing.T) {
	rec := Record{"message": "hi"}
	tests := []struct {
		name        string
		time, tag   bool
		sep         string
		want        string
	}{
		{"time and tag", true, true, "SPACE", "2014-01-01T00:00:00Z web hi"},
		{"time only", true, false, "COMMA", "2014-01-01T00:00:00Z,hi"},
		{"tag only", false, true, "TAB", "web\thi"},
		{"neither", false, false, "COMMA", "hi"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := mustNew(t, Config{
				IncludeTime:    tc.time,
				IncludeTag:     tc.tag,
				DataType:       "attr:message",
				FieldSeparator: tc.sep,
			})
			if got := string(f.Format("web", jan1, rec)); got != tc.want {
				t.Errorf("Format() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSeparator(t *testing.T) {
	tests := map[string]string{
		"SPACE": " ",
		"COMMA": ",",
		"TAB":   "\t",
		"":      "\t",
		"PIPE":  "\t",
		"space": "\t",
	}
	for token, want := range tests {
		if got := Separator(token); got != want {
			t.Errorf("Separator(%q) = %q, want %q", token, got, want)
		}
	}
}

func TestTag_RemovePrefix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RemovePrefix = "app"
	cfg.DefaultTag = "unknown"
	f := mustNew(t, cfg)

	tests := []struct {
		in, want string
	}{
		{"app.access", "access"},
		{"app.access.error", "access.error"},
		{"app", "unknown"},
		{"app.", "app."},
		{"apple.pie", "apple.pie"},
		{"other.app", "other.app"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := f.Tag(tc.in); got != tc.want {
			t.Errorf("Tag(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	got := string(f.Format("app", jan1, Record{}))
	if want := "2014-01-01T00:00:00Z\tunknown\t{}\n"; got != want {
		t.Errorf("Format(prefix tag) = %q, want %q", got, want)
	}
}

func TestTag_NoStripWhenTagExcluded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludeTag = false
	cfg.RemovePrefix = "app" // default_tag not required when the tag is not emitted

	f := mustNew(t, cfg)
	if got := f.Tag("app.x"); got != "app.x" {
		t.Errorf("Tag() = %q, want unchanged", got)
	}
}

func TestFormat_Attributes(t *testing.T) {
	rec := Record{
		"host":   "web01",
		"status": float64(200),
		"ok":     true,
		"empty":  nil,
		"meta":   map[string]any{"a": 1},
		"query":  map[string]any{"q": "a&b<c>"},
	}
	tests := []struct {
		dataType string
		want     string
	}{
		{"attr:host", "web01"},
		{"attr:missing", "NULL"},
		{"attr:empty", "NULL"},
		{"attr:status", "200"},
		{"attr:ok", "true"},
		{"attr:meta", `{"a":1}`},
		{"attr:host,status,missing", "web01,200,NULL"},
		{"attr:empty,host", "NULL,web01"},
		{"attr:query", `{"q":"a&b<c>"}`},
		{"attr:host,,status", "web01,NULL,200"},
		{"attr:host,", "web01"},
	}
	for _, tc := range tests {
		t.Run(tc.dataType, func(t *testing.T) {
			f := mustNew(t, Config{DataType: tc.dataType, FieldSeparator: "COMMA"})
			if got := string(f.Format("t", jan1, rec)); got != tc.want {
				t.Errorf("Format() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormat_TimeFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IncludeTag = false
	cfg.AddNewline = false
	cfg.DataType = "attr:m"
	cfg.TimeFormat = "%Y/%m/%d %H:%M:%S"

	f := mustNew(t, cfg)
	ts := time.Date(2014, 3, 5, 7, 8, 9, 0, time.FixedZone("JST", 9*3600))
	if got, want := string(f.Format("t", ts, Record{"m": "x"})), "2014/03/04 22:08:09\tx"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestFormat_Localtime(t *testing.T) {
	orig := time.Local
	time.Local = time.FixedZone("TEST", -5*3600)
	t.Cleanup(func() { time.Local = orig })

	cfg := DefaultConfig()
	cfg.IncludeTag = false
	cfg.AddNewline = false
	cfg.DataType = "attr:m"
	cfg.Localtime = true

	f := mustNew(t, cfg)
	if got, want := string(f.Format("t", jan1, Record{})), "2013-12-31T19:00:00-05:00\tNULL"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"unknown data type", Config{DataType: "csv"}, "output_data_type"},
		{"empty attribute list", Config{DataType: "attr:"}, "output_data_type"},
		{"only commas", Config{DataType: "attr:,,"}, "output_data_type"},
		{"missing default tag", Config{IncludeTag: true, RemovePrefix: "app"}, "default_tag"},
		{"bad time format", Config{IncludeTime: true, TimeFormat: "%Y-%Q"}, "time_format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("New() error = %v, want *ConfigError", err)
			}
			if ce.Field != tc.field {
				t.Errorf("ConfigError.Field = %q, want %q", ce.Field, tc.field)
			}
		})
	}
}

func TestFormat_Pure(t *testing.T) {
	f := mustNew(t, DefaultConfig())
	rec := Record{"k": "v", "n": 1}
	a := f.Format("x", jan1, rec)
	b := f.Format("x", jan1, rec)
	if string(a) != string(b) {
		t.Errorf("Format() not deterministic: %q vs %q", a, b)
	}
	if len(rec) != 2 {
		t.Errorf("Format() mutated the record: %v", rec)
	}
}
