// Package ws implements the WebSocket tail hub of the WebHDFS emulator.
//
// New(store) creates a Hub. Hub.Run(ctx) subscribes to the store and forwards
// every write to all connected clients; it blocks until ctx is cancelled,
// then closes all active connections. Hub.ServeHTTP upgrades an HTTP
// connection to WebSocket, sends a hello message, then streams events.
// Clients may pass ?prefix=/some/dir to receive only writes under it.
//
// Messages sent to clients:
//
//	{"event": "hello", "files": 3}
//	{"event": "append", "path": "/logs/2014/01/01/app.log", "bytes": 120, "length": 4096}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The server mounts the hub at /ws/tail.
package ws
