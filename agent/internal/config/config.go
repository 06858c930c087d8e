package config

import (
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hoopship/hoopship/agent/internal/format"
	"github.com/hoopship/hoopship/agent/internal/hoop"
	"github.com/hoopship/hoopship/agent/internal/partition"
	"github.com/hoopship/hoopship/agent/internal/shipper"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultFlushInterval    = 60 * time.Second
	DefaultTimeSliceWait    = 10 * time.Second
	DefaultRetryLimit       = 17
	DefaultBufferChunkLimit = 8 * 1024 * 1024
	DefaultMetricsAddr      = ":24231"
	DefaultSyslogListen     = ":5514"
)

// serverPattern is the accepted form of hoop_server.
var serverPattern = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9.]*):(\d+)$`)

// Config is the top-level configuration file.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// HoopServer is the store address, host:port.
	HoopServer string `yaml:"hoop_server"`

	// Path is the strftime destination pattern; it must start with "/".
	Path string `yaml:"path"`

	// Username is sent as the user.name query parameter when set.
	Username string `yaml:"username"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers"`

	// Compress is "", "none", "gzip" or "zstd".
	Compress string `yaml:"compress"`

	OutputIncludeTime bool   `yaml:"output_include_time"`
	OutputIncludeTag  bool   `yaml:"output_include_tag"`
	OutputDataType    string `yaml:"output_data_type"`
	FieldSeparator    string `yaml:"field_separator"`
	AddNewline        bool   `yaml:"add_newline"`
	RemovePrefix      string `yaml:"remove_prefix"`
	DefaultTag        string `yaml:"default_tag"`
	TimeFormat        string `yaml:"time_format"`

	// Localtime renders times and slice keys in the local zone. UTC wins
	// when both are set.
	Localtime bool `yaml:"localtime"`
	UTC       bool `yaml:"utc"`

	FlushInterval    time.Duration `yaml:"flush_interval"`
	TimeSliceWait    time.Duration `yaml:"time_slice_wait"`
	RetryLimit       int           `yaml:"retry_limit"`
	BufferChunkLimit int           `yaml:"buffer_chunk_limit"`

	// MetricsAddr is the /metrics listen address; empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	Inputs []Input `yaml:"inputs"`
}

// Input describes one event source.
type Input struct {
	// Type is stdin | syslog.
	Type string `yaml:"type"`

	// Tag overrides the default tag of stdin events.
	Tag string `yaml:"tag"`

	// Listen is the UDP address of a syslog input.
	Listen string `yaml:"listen"`

	// TagPrefix prefixes syslog tags.
	TagPrefix string `yaml:"tag_prefix"`
}

// UseLocaltime reports whether times are rendered in the local zone.
func (a AgentConfig) UseLocaltime() bool {
	return a.Localtime && !a.UTC
}

// Location returns the zone used for slice keys.
func (a AgentConfig) Location() *time.Location {
	if a.UseLocaltime() {
		return time.Local
	}
	return time.UTC
}

// FormatConfig returns the line formatter settings.
func (a AgentConfig) FormatConfig() format.Config {
	return format.Config{
		IncludeTime:    a.OutputIncludeTime,
		IncludeTag:     a.OutputIncludeTag,
		DataType:       a.OutputDataType,
		FieldSeparator: a.FieldSeparator,
		AddNewline:     a.AddNewline,
		RemovePrefix:   a.RemovePrefix,
		DefaultTag:     a.DefaultTag,
		TimeFormat:     a.TimeFormat,
		Localtime:      a.UseLocaltime(),
	}
}

// Endpoint returns the store endpoint. HoopServer must have been validated.
func (a AgentConfig) Endpoint() hoop.Endpoint {
	ep := hoop.Endpoint{Username: a.Username}
	if m := serverPattern.FindStringSubmatch(a.HoopServer); m != nil {
		ep.Host = m[1]
		ep.Port, _ = strconv.Atoi(m[2])
	}
	if len(a.Headers) > 0 {
		ep.Header = make(http.Header, len(a.Headers))
		for k, v := range a.Headers {
			ep.Header.Set(k, v)
		}
	}
	return ep
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			OutputIncludeTime: true,
			OutputIncludeTag:  true,
			OutputDataType:    format.DataTypeJSON,
			FieldSeparator:    "TAB",
			AddNewline:        true,
			FlushInterval:     DefaultFlushInterval,
			TimeSliceWait:     DefaultTimeSliceWait,
			RetryLimit:        DefaultRetryLimit,
			BufferChunkLimit:  DefaultBufferChunkLimit,
			MetricsAddr:       DefaultMetricsAddr,
		},
	}
}

// validate checks required fields and structural constraints. Formatter,
// path and compression settings are validated by building them.
func validate(cfg *Config) error {
	a := &cfg.Agent
	if a.HoopServer == "" {
		return fmt.Errorf("agent.hoop_server is required")
	}
	m := serverPattern.FindStringSubmatch(a.HoopServer)
	if m == nil {
		return fmt.Errorf("agent.hoop_server: invalid format %q, want HOST:PORT", a.HoopServer)
	}
	if port, err := strconv.Atoi(m[2]); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("agent.hoop_server: port out of range in %q", a.HoopServer)
	}
	if a.Path == "" {
		return fmt.Errorf("agent.path is required")
	}
	if _, err := partition.NewRouter(a.Path, a.Location()); err != nil {
		return fmt.Errorf("agent.path: %w", err)
	}
	if _, err := format.New(a.FormatConfig()); err != nil {
		return err
	}
	if _, err := shipper.NewCodec(a.Compress); err != nil {
		return fmt.Errorf("agent.compress: %w", err)
	}
	if a.FlushInterval <= 0 {
		return fmt.Errorf("agent.flush_interval must be positive")
	}
	if a.TimeSliceWait < 0 {
		return fmt.Errorf("agent.time_slice_wait must not be negative")
	}
	if a.RetryLimit < 0 {
		return fmt.Errorf("agent.retry_limit must not be negative")
	}
	if a.BufferChunkLimit <= 0 {
		return fmt.Errorf("agent.buffer_chunk_limit must be positive")
	}
	for i := range a.Inputs {
		in := &a.Inputs[i]
		switch in.Type {
		case "stdin":
		case "syslog":
			if in.Listen == "" {
				in.Listen = DefaultSyslogListen
			}
		default:
			return fmt.Errorf("inputs[%d]: unknown type %q", i, in.Type)
		}
	}
	return nil
}
