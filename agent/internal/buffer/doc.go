// Package buffer groups formatted lines into time-slice chunks and hands
// closed chunks to a Writer.
//
// Append(key, line) adds a line to the open chunk for its partition key. A
// chunk closes when its slice is older than the slice containing
// now - SliceWait, or early when it would grow past ChunkLimit bytes.
//
// Run(ctx) checks for closed chunks every FlushInterval and writes each one in
// its own goroutine; at most one chunk per key is in flight, so appends to the
// same remote file keep their order. A failed chunk stays queued and is tried
// again after a truncated exponential backoff (1s doubling to 60s, ±25 %
// jitter) until RetryLimit requeues are spent, then it is dropped and logged.
//
// When ctx is cancelled Run waits for in-flight writes, then writes every
// remaining chunk once, open slices included, each under ShutdownTimeout.
package buffer
