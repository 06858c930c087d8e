// Package emulator assembles the in-memory WebHDFS store, its REST API and
// the tail hub into one http.Handler. It is the server binary's handler and
// lets agent-side tests run deliveries against a real store.
package emulator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hoopship/hoopship/server/internal/api"
	"github.com/hoopship/hoopship/server/internal/auth"
	"github.com/hoopship/hoopship/server/internal/store"
	"github.com/hoopship/hoopship/server/internal/ws"
)

// TailPath is where the websocket tail hub is mounted.
const TailPath = "/ws/tail"

// Options configures an Emulator. The zero value accepts every request and
// keeps files forever.
type Options struct {
	// AuthMode is pseudo, apikey or none.
	AuthMode string
	// Users are the names accepted in pseudo mode.
	Users []string
	// Header and Key are the API key header and its expected value.
	Header string
	Key    string

	// Retention evicts files not written for this long; zero keeps them.
	Retention time.Duration

	Logger *slog.Logger
}

// Emulator is an HttpFS-compatible server backed by memory.
type Emulator struct {
	store   *store.Store
	handler *api.Handler
	hub     *ws.Hub
}

// New builds an Emulator. Call Run to start eviction and the tail hub.
func New(opts Options) *Emulator {
	st := store.New(opts.Retention)
	h := api.New(st, api.Options{
		Auth:   auth.New(opts.AuthMode, opts.Header, opts.Key, opts.Users),
		Logger: opts.Logger,
	})
	hub := ws.New(st)
	h.Router().Handle(TailPath, hub)
	return &Emulator{store: st, handler: h, hub: hub}
}

func (e *Emulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.handler.ServeHTTP(w, r)
}

// Run drives retention eviction and the tail hub until ctx is cancelled.
func (e *Emulator) Run(ctx context.Context) {
	go e.store.Run(ctx)
	e.hub.Run(ctx)
}

// Open returns a copy of the file at path.
func (e *Emulator) Open(path string) ([]byte, error) {
	return e.store.Open(path)
}

// Files returns the number of stored files.
func (e *Emulator) Files() int {
	return e.store.Count()
}

// InjectFault makes the next count requests for op answer with status.
func (e *Emulator) InjectFault(op string, status, count int) {
	e.handler.InjectFault(op, status, count)
}
