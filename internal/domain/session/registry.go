package session

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Info is the public description of a live session.
type Info struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	State      string    `json:"state"`
	Command    string    `json:"command,omitempty"`
	SSH        bool      `json:"ssh"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	StartedAt  time.Time `json:"started_at"`
}

type entry struct {
	id         string
	remoteAddr string
	startedAt  time.Time
	cancel     context.CancelFunc
	done       chan struct{}

	mu      sync.Mutex
	bridge  *Bridge
	command string
	ssh     bool
}

func (e *entry) attach(b *Bridge, command string, ssh bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bridge = b
	e.command = command
	e.ssh = ssh
}

func (e *entry) info() Info {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := Info{
		ID:         e.id,
		RemoteAddr: e.remoteAddr,
		State:      StateConnecting.String(),
		Command:    e.command,
		SSH:        e.ssh,
		StartedAt:  e.startedAt,
	}
	if e.bridge != nil {
		info.State = e.bridge.State().String()
		size := e.bridge.Size()
		info.Cols, info.Rows = int(size.Cols), int(size.Rows)
	}
	return info
}

// Registry tracks live connections. It is created once at service start
// and is the only state shared across sessions.
type Registry struct {
	count   atomic.Int64
	entries sync.Map // map[string]*entry
	metrics Metrics
}

// NewRegistry creates an empty registry reporting to metrics.
func NewRegistry(metrics Metrics) *Registry {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Registry{metrics: metrics}
}

// add registers a connection at accept time.
func (r *Registry) add(id, remoteAddr string, cancel context.CancelFunc) *entry {
	e := &entry{
		id:         id,
		remoteAddr: remoteAddr,
		startedAt:  time.Now(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	r.entries.Store(id, e)
	r.count.Add(1)
	r.metrics.IncConnections()
	return e
}

// remove unregisters a connection after full teardown.
func (r *Registry) remove(id string) {
	v, ok := r.entries.LoadAndDelete(id)
	if !ok {
		return
	}
	close(v.(*entry).done)
	r.count.Add(-1)
	r.metrics.DecConnections()
}

// Count returns the number of live connections.
func (r *Registry) Count() int64 {
	return r.count.Load()
}

// Snapshot lists live sessions ordered by start time.
func (r *Registry) Snapshot() []Info {
	var infos []Info
	r.entries.Range(func(_, v interface{}) bool {
		infos = append(infos, v.(*entry).info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Get returns one live session.
func (r *Registry) Get(id string) (Info, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return Info{}, false
	}
	return v.(*entry).info(), true
}

// CloseAll cancels every live session and waits until they are torn down
// or ctx expires.
func (r *Registry) CloseAll(ctx context.Context) error {
	var pending []*entry
	r.entries.Range(func(_, v interface{}) bool {
		e := v.(*entry)
		e.cancel()
		pending = append(pending, e)
		return true
	})

	for _, e := range pending {
		select {
		case <-e.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
