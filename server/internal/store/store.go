package store

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for a path with no file.
	ErrNotFound = errors.New("store: file not found")
	// ErrExists is returned by Create for an existing file without overwrite.
	ErrExists = errors.New("store: file already exists")
	// ErrInvalidPath is returned for paths that are not absolute.
	ErrInvalidPath = errors.New("store: path must be absolute")
)

// Event describes one write.
type Event struct {
	Op    string `json:"event"` // append | create
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
	// Length is the file size after the write.
	Length int64 `json:"length"`
}

// FileStatus is the metadata of one file or implied directory.
type FileStatus struct {
	Path     string
	Dir      bool
	Length   int64
	Owner    string
	Modified time.Time
}

type file struct {
	data     []byte
	owner    string
	modified time.Time
}

// Store holds files keyed by their cleaned absolute path. Directories are
// implied by file paths. When a retention is set, Run periodically evicts
// files not written within it.
type Store struct {
	mu        sync.RWMutex
	files     map[string]*file
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests

	subMu sync.Mutex
	subs  map[chan Event]struct{}
}

// New creates a Store. retention <= 0 keeps files forever.
func New(retention time.Duration) *Store {
	return &Store{
		files:     make(map[string]*file),
		retention: retention,
		now:       time.Now,
		subs:      make(map[chan Event]struct{}),
	}
}

func clean(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	return path.Clean(p), nil
}

// Append adds data to the end of an existing file and returns its new length.
func (s *Store) Append(p string, data []byte) (int64, error) {
	p, err := clean(p)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	f, ok := s.files[p]
	if !ok {
		s.mu.Unlock()
		return 0, ErrNotFound
	}
	f.data = append(f.data, data...)
	f.modified = s.now()
	n := int64(len(f.data))
	s.mu.Unlock()

	s.publish(Event{Op: "append", Path: p, Bytes: len(data), Length: n})
	return n, nil
}

// Create writes a new file. With overwrite an existing file is replaced,
// otherwise ErrExists is returned.
func (s *Store) Create(p string, data []byte, owner string, overwrite bool) error {
	p, err := clean(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.files[p]; ok && !overwrite {
		s.mu.Unlock()
		return ErrExists
	}
	s.files[p] = &file{
		data:     append([]byte(nil), data...),
		owner:    owner,
		modified: s.now(),
	}
	s.mu.Unlock()

	s.publish(Event{Op: "create", Path: p, Bytes: len(data), Length: int64(len(data))})
	return nil
}

// Open returns a copy of the file contents.
func (s *Store) Open(p string) ([]byte, error) {
	p, err := clean(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[p]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), f.data...), nil
}

// Stat returns the status of a file or implied directory.
func (s *Store) Stat(p string) (FileStatus, error) {
	p, err := clean(p)
	if err != nil {
		return FileStatus{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.files[p]; ok {
		return fileStatus(p, f), nil
	}
	if st, ok := s.dirStatus(p); ok {
		return st, nil
	}
	return FileStatus{}, ErrNotFound
}

// List returns the direct children of directory p sorted by name, or the
// file itself when p is a file.
func (s *Store) List(p string) ([]FileStatus, error) {
	p, err := clean(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f, ok := s.files[p]; ok {
		return []FileStatus{fileStatus(p, f)}, nil
	}

	prefix := p
	if prefix != "/" {
		prefix += "/"
	}
	children := make(map[string]FileStatus)
	for fp, f := range s.files {
		if !strings.HasPrefix(fp, prefix) {
			continue
		}
		rest := fp[len(prefix):]
		name, _, nested := strings.Cut(rest, "/")
		if !nested {
			children[name] = fileStatus(fp, f)
			continue
		}
		d := children[name]
		d.Path, d.Dir = prefix+name, true
		if f.modified.After(d.Modified) {
			d.Modified = f.modified
		}
		children[name] = d
	}
	if len(children) == 0 && p != "/" {
		return nil, ErrNotFound
	}

	out := make([]FileStatus, 0, len(children))
	for _, st := range children {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) dirStatus(p string) (FileStatus, bool) {
	if p == "/" {
		return FileStatus{Path: "/", Dir: true}, true
	}
	prefix := p + "/"
	st := FileStatus{Path: p, Dir: true}
	found := false
	for fp, f := range s.files {
		if strings.HasPrefix(fp, prefix) {
			found = true
			if f.modified.After(st.Modified) {
				st.Modified = f.modified
			}
		}
	}
	return st, found
}

func fileStatus(p string, f *file) FileStatus {
	return FileStatus{Path: p, Length: int64(len(f.data)), Owner: f.owner, Modified: f.modified}
}

// Count returns the number of files.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Subscribe registers for write events. The returned cancel func must be
// called to unsubscribe. Events are dropped for a subscriber whose buffer is
// full.
func (s *Store) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, buf)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Evict removes files last written before now minus the retention.
// It returns the number of files removed.
func (s *Store) Evict(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.retention)
	removed := 0
	for p, f := range s.files {
		if !f.modified.After(cutoff) {
			delete(s.files, p)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the retention
// (minimum 1 second) and returns at once when retention is disabled. Run
// blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	interval := s.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted expired files", "count", n)
			}
		}
	}
}
