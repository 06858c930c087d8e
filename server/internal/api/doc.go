// Package api implements an in-memory HttpFS (WebHDFS REST) server.
//
// New(store, opts) returns an http.Handler that serves:
//
//	PUT|POST /webhdfs/v1/<path>?op=append          append the body; 404 if missing
//	PUT|POST /webhdfs/v1/<path>?op=create          create the file; 201, or 403 when
//	                                               it exists and overwrite is false
//	GET      /webhdfs/v1/<path>?op=open            file contents
//	GET      /webhdfs/v1/<path>?op=getfilestatus   FileStatus JSON
//	GET      /webhdfs/v1/<path>?op=liststatus      FileStatuses JSON
//	POST     /_emulator/faults?op=&status=&count=  answer the next count requests
//	                                               for op with status
//
// op is case-insensitive. Errors use the HttpFS RemoteException JSON shape.
// Requests under /webhdfs/v1 pass through the configured auth.Authenticator
// first; failures answer 401.
//
// Routing uses gorilla/mux.
package api
