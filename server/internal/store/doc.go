// Package store is a thread-safe in-memory tree of append-only files, the
// storage behind the WebHDFS emulator. Subscribers are notified of every
// write.
package store
