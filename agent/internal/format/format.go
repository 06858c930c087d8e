package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/strftime"
)

// DataTypeJSON serializes the whole record as JSON.
const DataTypeJSON = "json"

// attrPrefix introduces an attribute list in Config.DataType.
const attrPrefix = "attr:"

// nullValue is rendered for absent or null attribute values.
const nullValue = "NULL"

// Record is one log record: field name to value. Values are strings, numbers,
// booleans, nested records/slices or nil.
type Record map[string]any

// Event is a record tagged with its source label and timestamp.
type Event struct {
	Tag    string
	Time   time.Time
	Record Record
}

// Config selects how events are rendered. The zero value is not useful;
// start from DefaultConfig.
type Config struct {
	IncludeTime bool
	IncludeTag  bool

	// DataType is "json" or "attr:FIELD[,FIELD...]".
	DataType string

	// FieldSeparator is a token: SPACE, COMMA; everything else means tab.
	FieldSeparator string

	AddNewline bool

	// RemovePrefix strips "RemovePrefix." from tags. DefaultTag replaces a
	// tag that becomes empty and is required when the tag is emitted.
	RemovePrefix string
	DefaultTag   string

	// TimeFormat is a strftime pattern. Empty means RFC 3339.
	TimeFormat string

	// Localtime renders timestamps in the local zone instead of UTC.
	Localtime bool
}

// DefaultConfig returns the configuration used when nothing is overridden:
// time, tag and JSON body separated by tabs, newline terminated.
func DefaultConfig() Config {
	return Config{
		IncludeTime:    true,
		IncludeTag:     true,
		DataType:       DataTypeJSON,
		FieldSeparator: "TAB",
		AddNewline:     true,
	}
}

// ConfigError reports an invalid formatter setting.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("format: %s: %s", e.Field, e.Msg)
}

// Separator maps a separator token to the literal separator string.
// Unrecognized tokens fall back to a tab.
func Separator(token string) string {
	switch token {
	case "SPACE":
		return " "
	case "COMMA":
		return ","
	default:
		return "\t"
	}
}

type bodyKind int

const (
	bodyJSON bodyKind = iota
	bodyAttr
	bodyAttrs
)

// Formatter renders events into lines. Build it with New.
type Formatter struct {
	sep         string
	includeTime bool
	includeTag  bool
	newline     bool

	strip      bool
	prefix     string
	prefixDot  string
	defaultTag string

	body  bodyKind
	attrs []string

	timef *strftime.Strftime // nil means RFC 3339
	loc   *time.Location
}

// New validates cfg and returns a Formatter for it.
func New(cfg Config) (*Formatter, error) {
	f := &Formatter{
		sep:         Separator(cfg.FieldSeparator),
		includeTime: cfg.IncludeTime,
		includeTag:  cfg.IncludeTag,
		newline:     cfg.AddNewline,
		loc:         time.UTC,
	}
	if cfg.Localtime {
		f.loc = time.Local
	}

	switch dt := cfg.DataType; {
	case dt == "" || dt == DataTypeJSON:
		f.body = bodyJSON
	case strings.HasPrefix(dt, attrPrefix):
		// Trailing empty names are dropped; inner ones keep their slot and
		// render as NULL.
		attrs := strings.Split(strings.TrimPrefix(dt, attrPrefix), ",")
		for len(attrs) > 0 && attrs[len(attrs)-1] == "" {
			attrs = attrs[:len(attrs)-1]
		}
		f.attrs = attrs
		switch len(f.attrs) {
		case 0:
			return nil, &ConfigError{Field: "output_data_type",
				Msg: fmt.Sprintf("invalid attributes specification %q, needs one or more attributes", dt)}
		case 1:
			f.body = bodyAttr
		default:
			f.body = bodyAttrs
		}
	default:
		return nil, &ConfigError{Field: "output_data_type",
			Msg: fmt.Sprintf("invalid value %q: specify json, attr:ATTRIBUTE or attr:ATTR1,ATTR2,...", dt)}
	}

	if cfg.IncludeTag && cfg.RemovePrefix != "" {
		if cfg.DefaultTag == "" {
			return nil, &ConfigError{Field: "default_tag",
				Msg: "required with output_include_tag and remove_prefix"}
		}
		f.strip = true
		f.prefix = cfg.RemovePrefix
		f.prefixDot = cfg.RemovePrefix + "."
		f.defaultTag = cfg.DefaultTag
	}

	if cfg.IncludeTime && cfg.TimeFormat != "" {
		p, err := strftime.New(cfg.TimeFormat)
		if err != nil {
			return nil, &ConfigError{Field: "time_format", Msg: err.Error()}
		}
		f.timef = p
	}
	return f, nil
}

// Format renders one event as a line.
func (f *Formatter) Format(tag string, t time.Time, rec Record) []byte {
	buf := make([]byte, 0, 256)
	if f.includeTime {
		buf = append(buf, f.formatTime(t)...)
		buf = append(buf, f.sep...)
	}
	if f.includeTag {
		buf = append(buf, f.Tag(tag)...)
		buf = append(buf, f.sep...)
	}
	buf = f.appendBody(buf, rec)
	if f.newline {
		buf = append(buf, '\n')
	}
	return buf
}

// FormatEvent is Format for an Event.
func (f *Formatter) FormatEvent(ev Event) []byte {
	return f.Format(ev.Tag, ev.Time, ev.Record)
}

// Tag returns tag with the configured prefix removed. Tags outside the
// prefix namespace are returned unchanged.
func (f *Formatter) Tag(tag string) string {
	if !f.strip {
		return tag
	}
	if tag == f.prefix {
		return f.defaultTag
	}
	if len(tag) > len(f.prefixDot) && strings.HasPrefix(tag, f.prefixDot) {
		return tag[len(f.prefixDot):]
	}
	return tag
}

func (f *Formatter) formatTime(t time.Time) string {
	t = t.In(f.loc)
	if f.timef == nil {
		return t.Format(time.RFC3339)
	}
	return f.timef.FormatString(t)
}

func (f *Formatter) appendBody(buf []byte, rec Record) []byte {
	switch f.body {
	case bodyAttr:
		return append(buf, stringify(rec[f.attrs[0]])...)
	case bodyAttrs:
		for i, a := range f.attrs {
			if i > 0 {
				buf = append(buf, f.sep...)
			}
			buf = append(buf, stringify(rec[a])...)
		}
		return buf
	default:
		b, err := marshal(rec)
		if err != nil {
			return append(buf, nullValue...)
		}
		return append(buf, b...)
	}
}

// stringify renders an attribute value. Strings are emitted raw, everything
// else as its JSON text.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return nullValue
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	b, err := marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// marshal renders v as JSON with sorted map keys and without HTML escaping.
func marshal(v any) ([]byte, error) {
	return json.MarshalWithOption(v, json.DisableHTMLEscape())
}
