// Package input turns external log sources into format.Events.
//
//   - NDJSON reads one JSON object per line ({"tag", "time", "record"}) from
//     a reader, typically stdin.
//   - Syslog receives RFC 5424 datagrams over UDP.
//
// Both hand every event to an Emit callback on the reading goroutine. Lines
// that cannot be parsed are counted, logged at debug and skipped.
package input

import "github.com/hoopship/hoopship/agent/internal/format"

// Emit receives one parsed event.
type Emit func(format.Event)
