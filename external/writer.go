package external

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/watchmen-go/kernel/errors"
)

// Request is the payload of a write-to-external action.
type Request struct {
	EventCode  string         `json:"code"`
	PipelineID string         `json:"pipelineId"`
	TopicID    string         `json:"topicId"`
	TenantID   string         `json:"tenantId,omitempty"`
	TraceID    string         `json:"traceId"`
	DataID     string         `json:"dataId,omitempty"`
	Previous   map[string]any `json:"previous,omitempty"`
	Current    map[string]any `json:"current,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// Writer delivers requests to a system outside the kernel. Retrying is up
// to the writer.
type Writer interface {
	ID() string
	Write(ctx context.Context, req *Request) error
}

// WriterFunc adapts a function to Writer under a fixed id.
type WriterFunc struct {
	WriterID string
	Fn       func(ctx context.Context, req *Request) error
}

func (w WriterFunc) ID() string { return w.WriterID }

func (w WriterFunc) Write(ctx context.Context, req *Request) error { return w.Fn(ctx, req) }

// Registry resolves writers by id.
type Registry struct {
	mu      sync.RWMutex
	writers map[string]Writer
}

// NewRegistry creates a registry holding writers.
func NewRegistry(writers ...Writer) *Registry {
	r := &Registry{writers: make(map[string]Writer, len(writers))}
	for _, w := range writers {
		r.Register(w)
	}
	return r
}

// Register adds or replaces a writer.
func (r *Registry) Register(w Writer) {
	r.mu.Lock()
	r.writers[w.ID()] = w
	r.mu.Unlock()
}

// Get returns the writer with the given id.
func (r *Registry) Get(id string) (Writer, error) {
	r.mu.RLock()
	w, ok := r.writers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("external writer", id)
	}
	return w, nil
}

// IDs lists the registered writer ids in order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.writers))
	for id := range r.writers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
