package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthenticated is wrapped by every Verify failure.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator checks incoming WebHDFS requests.
//
// Behaviour:
//   - mode "pseudo": the user.name query parameter must name a known user.
//   - mode "apikey": header must carry key. An empty key allows everything.
//   - any other mode allows everything.
type Authenticator struct {
	mode   string
	header string
	key    string
	users  map[string]struct{}
}

// New returns an Authenticator for the given mode.
func New(mode, header, key string, users []string) *Authenticator {
	a := &Authenticator{mode: mode, header: header, key: key, users: make(map[string]struct{}, len(users))}
	for _, u := range users {
		a.users[u] = struct{}{}
	}
	return a
}

// Verify returns nil when r is allowed, otherwise an error wrapping
// ErrUnauthenticated.
func (a *Authenticator) Verify(r *http.Request) error {
	if a == nil {
		return nil
	}
	switch a.mode {
	case "pseudo":
		user := r.URL.Query().Get("user.name")
		if user == "" {
			return fmt.Errorf("%w: missing user.name", ErrUnauthenticated)
		}
		if _, ok := a.users[user]; !ok {
			return fmt.Errorf("%w: unknown user %q", ErrUnauthenticated, user)
		}
	case "apikey":
		if a.key == "" {
			return nil
		}
		got := r.Header.Get(a.header)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.key)) != 1 {
			return fmt.Errorf("%w: invalid api key", ErrUnauthenticated)
		}
	}
	return nil
}
