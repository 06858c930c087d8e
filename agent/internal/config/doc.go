// Package config loads and watches the agent configuration file.
//
// Top-level types:
//   - Config{Agent}: the file's root
//   - AgentConfig: store address (hoop_server), destination path pattern,
//     username, extra headers, compression, the output_* formatter settings,
//     buffer tuning (flush_interval, time_slice_wait, retry_limit,
//     buffer_chunk_limit), metrics_addr and inputs
//   - Input: type (stdin|syslog), tag, listen, tag_prefix
//
// Load(path) reads the YAML file, applies defaults (60s flush, 10s slice
// wait, 17 retries, 8 MiB chunks, metrics on :24231), then validates. The
// formatter, path pattern and compression settings are checked by building
// them, so a config that loads is one the agent can run with.
//
// AgentConfig.FormatConfig and AgentConfig.Endpoint translate the file into
// format.Config and hoop.Endpoint.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
