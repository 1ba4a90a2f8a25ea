package metadata

import (
	"context"
	"sort"
	"sync"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/principal"
)

// TopicService looks up topic definitions.
type TopicService interface {
	FindByID(ctx context.Context, topicID string) (*model.Topic, error)
	FindByName(ctx context.Context, name string) (*model.Topic, error)
}

// PipelineService looks up pipeline definitions.
type PipelineService interface {
	// FindByTopicID returns every pipeline bound to the topic, enabled or not.
	FindByTopicID(ctx context.Context, topicID string) ([]*model.Pipeline, error)
	FindByID(ctx context.Context, pipelineID string) (*model.Pipeline, error)
}

// Registry is an in-memory TopicService. Pipelines exposes the same
// definitions as a PipelineService.
//
// Stored definitions are never modified in place. Put replaces the pointer,
// so callers caching by identity see the change.
type Registry struct {
	mu        sync.RWMutex
	topics    map[string]*model.Topic
	byName    map[string]string
	pipelines map[string]*model.Pipeline
}

var (
	_ TopicService    = (*Registry)(nil)
	_ PipelineService = pipelineView{}
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		topics:    make(map[string]*model.Topic),
		byName:    make(map[string]string),
		pipelines: make(map[string]*model.Pipeline),
	}
}

// PutTopic stores a copy of topic, replacing any topic with the same id.
func (r *Registry) PutTopic(topic model.Topic) *model.Topic {
	t := topic
	t.Factors = append([]model.Factor(nil), topic.Factors...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.topics[t.TopicID]; ok && old.Name != t.Name {
		delete(r.byName, nameKey(old.TenantID, old.Name))
	}
	r.topics[t.TopicID] = &t
	r.byName[nameKey(t.TenantID, t.Name)] = t.TopicID
	return &t
}

// PutPipeline stores a copy of pipeline, replacing any pipeline with the same id.
func (r *Registry) PutPipeline(pipeline model.Pipeline) *model.Pipeline {
	p := pipeline
	r.mu.Lock()
	r.pipelines[p.PipelineID] = &p
	r.mu.Unlock()
	return &p
}

// RemovePipeline drops a pipeline. It reports whether one was stored.
func (r *Registry) RemovePipeline(pipelineID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pipelines[pipelineID]
	delete(r.pipelines, pipelineID)
	return ok
}

// Load validates defs as a whole and stores them. Nothing is stored when
// validation fails.
func (r *Registry) Load(defs *Definitions) error {
	if err := Validate(defs, r); err != nil {
		return err
	}
	for i := range defs.Topics {
		r.PutTopic(defs.Topics[i])
	}
	for i := range defs.Pipelines {
		r.PutPipeline(defs.Pipelines[i])
	}
	return nil
}

// FindByID returns the topic with the given id.
func (r *Registry) FindByID(ctx context.Context, topicID string) (*model.Topic, error) {
	r.mu.RLock()
	t, ok := r.topics[topicID]
	r.mu.RUnlock()
	if !ok || !visible(ctx, t.TenantID) {
		return nil, apperrors.NotFound("topic", topicID)
	}
	return t, nil
}

// FindByName returns the topic with the given name in the caller's tenant,
// falling back to a topic shared by all tenants.
func (r *Registry) FindByName(ctx context.Context, name string) (*model.Topic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := principal.Get(ctx); ok {
		if id, ok := r.byName[nameKey(p.TenantID, name)]; ok {
			return r.topics[id], nil
		}
	}
	if id, ok := r.byName[nameKey("", name)]; ok {
		return r.topics[id], nil
	}
	return nil, apperrors.NotFound("topic", name)
}

// PipelineByID returns the pipeline with the given id.
func (r *Registry) PipelineByID(ctx context.Context, pipelineID string) (*model.Pipeline, error) {
	r.mu.RLock()
	p, ok := r.pipelines[pipelineID]
	r.mu.RUnlock()
	if !ok || !visible(ctx, p.TenantID) {
		return nil, apperrors.NotFound("pipeline", pipelineID)
	}
	return p, nil
}

// Pipelines adapts the registry to PipelineService, whose FindByID clashes
// with the topic lookup of the same name.
func (r *Registry) Pipelines() PipelineService { return pipelineView{r} }

// FindByTopicID returns the pipelines bound to topicID ordered by id.
func (r *Registry) FindByTopicID(ctx context.Context, topicID string) ([]*model.Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Pipeline
	for _, p := range r.pipelines {
		if p.TopicID == topicID && visible(ctx, p.TenantID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PipelineID < out[j].PipelineID })
	return out, nil
}

type pipelineView struct{ r *Registry }

func (v pipelineView) FindByTopicID(ctx context.Context, topicID string) ([]*model.Pipeline, error) {
	return v.r.FindByTopicID(ctx, topicID)
}

func (v pipelineView) FindByID(ctx context.Context, pipelineID string) (*model.Pipeline, error) {
	return v.r.PipelineByID(ctx, pipelineID)
}

// visible reports whether a definition of tenantID may be seen by the caller.
// Definitions without a tenant are shared.
func visible(ctx context.Context, tenantID string) bool {
	if tenantID == "" {
		return true
	}
	p, ok := principal.Get(ctx)
	if !ok {
		return true
	}
	return p.TenantID == tenantID || p.IsSuperAdmin()
}

func nameKey(tenantID, name string) string { return tenantID + "\x00" + name }
