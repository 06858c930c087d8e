// Package format turns one (tag, time, record) event into a single output line.
//
// New(Config) validates the configuration once and selects the line layout:
// which of [time] [tag] body are emitted, the field separator, the trailing
// newline, tag prefix stripping and the body serializer:
//
//   - json         : the whole record as JSON (keys sorted, no HTML escaping)
//   - attr:f       : the string value of field f, or NULL
//   - attr:f1,f2,..: the values of the listed fields joined by the separator;
//     an empty name inside the list renders as NULL
//
// Field separators are given as tokens: SPACE, COMMA, anything else is a tab.
// Timestamps render in UTC unless Localtime is set. An empty TimeFormat uses
// RFC 3339; otherwise the format is a strftime pattern.
//
// Formatter.Format is a pure function and safe for concurrent use. All
// validation errors are *ConfigError and surface from New only.
package format
