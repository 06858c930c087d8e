// Package hoop delivers chunks to an HttpFS ("hoop") / WebHDFS-style file
// store using the append-or-create protocol.
//
// Client.Deliver(ctx, path, body) performs, over one connection:
//
//	PUT  /webhdfs/v1<path>?op=append                  body, Content-Type: application/octet-stream
//	POST /webhdfs/v1<path>?op=create&overwrite=false  same body, only after append returned 404
//
// Status handling:
//   - 2xx: delivered.
//   - 401: logged; returned as *StatusError wrapping ErrUnauthorized, never retried.
//   - 404: triggers the create request; its response is the outcome.
//   - 500: the whole append-or-create attempt is repeated up to 3 more
//     times, 300ms apart; then *StatusError wrapping ErrServerError.
//   - other: logged as a warning; the Response is returned with a nil error.
//
// Every socket read has a 5s deadline, so a stalled body fails like a stalled
// header. Transport failures (refused, timeout, DNS) are returned wrapped and are not
// retried here; requeueing is the caller's decision. The connection opened by
// a Deliver call is released exactly once before it returns.
//
// The dial field is injectable for tests, like the shipper's dialFn.
package hoop
