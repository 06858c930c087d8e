// Package shipper writes finalized time-slice chunks to the remote store.
//
// Shipper.Write(ctx, chunk) resolves the chunk's partition key to a
// destination path (package partition), optionally compresses the chunk body
// (gzip or zstd, with the matching path suffix) and hands it to the delivery
// client (package hoop). Delivery errors are logged with the endpoint and path
// and returned unchanged so the buffering layer can requeue the chunk. On
// success Write returns the resolved path.
//
// Shipper.Format delegates to the configured format.Formatter; the formatter
// can be replaced at runtime with SetFormatter (config hot-reload).
//
// Write keeps no per-call state on the Shipper and may be called
// concurrently for different chunks.
package shipper
