package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/hoopship/hoopship/server/internal/auth"
	"github.com/hoopship/hoopship/server/internal/store"
)

const (
	apiPrefix = "/webhdfs/v1"

	// maxBody caps a single append or create body.
	maxBody = 256 << 20

	blockSize   = 128 << 20
	replication = 3
	permission  = "644"
	dirPerm     = "755"
	group       = "supergroup"
)

// Options configures a Handler.
type Options struct {
	Auth   *auth.Authenticator
	Logger *slog.Logger
}

// Handler is the HTTP handler for the WebHDFS emulator.
type Handler struct {
	store  *store.Store
	auth   *auth.Authenticator
	log    *slog.Logger
	router *mux.Router

	mu     sync.Mutex
	faults map[string][]int // op → queued status codes
}

// New creates a Handler wired to st and registers all routes.
func New(st *store.Store, opts Options) *Handler {
	h := &Handler{
		store:  st,
		auth:   opts.Auth,
		log:    opts.Logger,
		router: mux.NewRouter(),
		faults: make(map[string][]int),
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	fs := h.router.PathPrefix(apiPrefix).Subrouter()
	fs.Use(h.authenticate)
	fs.HandleFunc("/{path:.*}", h.webhdfs)

	h.router.HandleFunc("/_emulator/faults", h.injectFault).Methods(http.MethodPost)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Router exposes the mux router so callers can mount extra routes.
func (h *Handler) Router() *mux.Router { return h.router }

// InjectFault makes the next count requests for op answer with status.
func (h *Handler) InjectFault(op string, status, count int) {
	op = strings.ToLower(op)
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := 0; i < count; i++ {
		h.faults[op] = append(h.faults[op], status)
	}
}

func (h *Handler) nextFault(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.faults[op]
	if len(q) == 0 {
		return 0
	}
	code := q[0]
	if len(q) == 1 {
		delete(h.faults, op)
	} else {
		h.faults[op] = q[1:]
	}
	return code
}

// --- middleware -------------------------------------------------------------

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.auth.Verify(r); err != nil {
			h.log.Debug("api: rejected request", "path", r.URL.Path, "err", err)
			writeException(w, http.StatusUnauthorized, "SecurityException", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- route handlers ---------------------------------------------------------

// webhdfs dispatches /webhdfs/v1/<path> on the op query parameter.
func (h *Handler) webhdfs(w http.ResponseWriter, r *http.Request) {
	p := path.Clean("/" + mux.Vars(r)["path"])
	op := strings.ToLower(r.URL.Query().Get("op"))

	if code := h.nextFault(op); code != 0 {
		h.log.Debug("api: injected fault", "op", op, "path", p, "status", code)
		writeException(w, code, "IOException", fmt.Sprintf("injected fault for %s", op))
		return
	}

	switch op {
	case "append":
		if !allow(w, r, http.MethodPut, http.MethodPost) {
			return
		}
		h.append(w, r, p)
	case "create":
		if !allow(w, r, http.MethodPut, http.MethodPost) {
			return
		}
		h.create(w, r, p)
	case "open":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.open(w, p)
	case "getfilestatus":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.getFileStatus(w, p)
	case "liststatus":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.listStatus(w, p)
	default:
		writeException(w, http.StatusBadRequest, "IllegalArgumentException",
			fmt.Sprintf("Invalid value for webhdfs parameter \"op\": %q", r.URL.Query().Get("op")))
	}
}

func (h *Handler) append(w http.ResponseWriter, r *http.Request, p string) {
	data, err := readBody(w, r)
	if err != nil {
		writeException(w, http.StatusBadRequest, "IOException", err.Error())
		return
	}
	n, err := h.store.Append(p, data)
	if err != nil {
		h.storeErr(w, p, err)
		return
	}
	h.log.Debug("api: append", "path", p, "bytes", len(data), "length", n)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, p string) {
	overwrite := false
	if v := r.URL.Query().Get("overwrite"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeException(w, http.StatusBadRequest, "IllegalArgumentException",
				fmt.Sprintf("Invalid value for webhdfs parameter \"overwrite\": %q", v))
			return
		}
		overwrite = b
	}
	data, err := readBody(w, r)
	if err != nil {
		writeException(w, http.StatusBadRequest, "IOException", err.Error())
		return
	}
	if err := h.store.Create(p, data, r.URL.Query().Get("user.name"), overwrite); err != nil {
		h.storeErr(w, p, err)
		return
	}
	h.log.Debug("api: create", "path", p, "bytes", len(data))
	w.Header().Set("Location", apiPrefix+p)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) open(w http.ResponseWriter, p string) {
	data, err := h.store.Open(p)
	if err != nil {
		h.storeErr(w, p, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func (h *Handler) getFileStatus(w http.ResponseWriter, p string) {
	st, err := h.store.Stat(p)
	if err != nil {
		h.storeErr(w, p, err)
		return
	}
	fs := toFileStatus(st)
	fs.PathSuffix = ""
	jsonResp(w, http.StatusOK, FileStatusResponse{FileStatus: fs})
}

func (h *Handler) listStatus(w http.ResponseWriter, p string) {
	entries, err := h.store.List(p)
	if err != nil {
		h.storeErr(w, p, err)
		return
	}
	var resp ListStatusResponse
	resp.FileStatuses.FileStatus = make([]FileStatus, 0, len(entries))
	for _, e := range entries {
		fs := toFileStatus(e)
		if e.Path == p {
			// LISTSTATUS on a file reports the file itself with an empty suffix.
			fs.PathSuffix = ""
		}
		resp.FileStatuses.FileStatus = append(resp.FileStatuses.FileStatus, fs)
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) injectFault(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	op := q.Get("op")
	status, err := strconv.Atoi(q.Get("status"))
	if op == "" || err != nil || status < 100 || status > 599 {
		writeException(w, http.StatusBadRequest, "IllegalArgumentException", "op and a valid status are required")
		return
	}
	count := 1
	if c := q.Get("count"); c != "" {
		if count, err = strconv.Atoi(c); err != nil || count < 1 {
			writeException(w, http.StatusBadRequest, "IllegalArgumentException", "count must be a positive integer")
			return
		}
	}
	h.InjectFault(op, status, count)
	h.log.Info("api: fault injected", "op", op, "status", status, "count", count)
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) storeErr(w http.ResponseWriter, p string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeException(w, http.StatusNotFound, "FileNotFoundException", "File does not exist: "+p)
	case errors.Is(err, store.ErrExists):
		writeException(w, http.StatusForbidden, "FileAlreadyExistsException", p+" already exists")
	case errors.Is(err, store.ErrInvalidPath):
		writeException(w, http.StatusBadRequest, "IllegalArgumentException", err.Error())
	default:
		h.log.Error("api: store failure", "path", p, "err", err)
		writeException(w, http.StatusInternalServerError, "IOException", err.Error())
	}
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	writeException(w, http.StatusMethodNotAllowed, "UnsupportedOperationException",
		fmt.Sprintf("%s is not supported for this operation", r.Method))
	return false
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
}

func toFileStatus(st store.FileStatus) FileStatus {
	fs := FileStatus{
		PathSuffix:       path.Base(st.Path),
		Type:             "FILE",
		Length:           st.Length,
		Owner:            st.Owner,
		Group:            group,
		Permission:       permission,
		ModificationTime: st.Modified.UnixMilli(),
		AccessTime:       st.Modified.UnixMilli(),
		BlockSize:        blockSize,
		Replication:      replication,
	}
	if st.Dir {
		fs.Type = "DIRECTORY"
		fs.Permission = dirPerm
		fs.Length = 0
		fs.BlockSize = 0
		fs.Replication = 0
		fs.AccessTime = 0
	}
	if st.Modified.IsZero() {
		fs.ModificationTime, fs.AccessTime = 0, 0
	}
	return fs
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeException(w http.ResponseWriter, code int, exception, msg string) {
	jsonResp(w, code, exceptionResponse{RemoteException: RemoteException{
		Exception:     exception,
		JavaClassName: javaClassNames[exception],
		Message:       msg,
	}})
}
