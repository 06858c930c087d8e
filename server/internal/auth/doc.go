// Package auth authenticates requests to the WebHDFS emulator.
//
// New(mode, header, key, users) returns an Authenticator whose Verify(r)
// implements HttpFS pseudo authentication (the user.name query parameter) or
// a fixed API key header. When mode is neither, or the API key is unset,
// every request passes (useful for local development with auth disabled).
package auth
