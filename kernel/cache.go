package kernel

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/watchmen-go/kernel/model"
)

// PipelineCompiler compiles pipeline definitions. *Kernel implements it.
type PipelineCompiler interface {
	Compile(ctx context.Context, pipeline *model.Pipeline) (*CompiledPipeline, error)
}

// PipelineCache holds compiled pipelines by pipeline id. An entry is valid
// only for the exact definition pointer it was compiled from; passing a
// different pointer for the same id recompiles and replaces it.
type PipelineCache struct {
	compiler PipelineCompiler
	mu       sync.RWMutex
	entries  map[string]*CompiledPipeline
	group    singleflight.Group
}

// NewPipelineCache creates an empty cache compiling through compiler.
func NewPipelineCache(compiler PipelineCompiler) *PipelineCache {
	return &PipelineCache{
		compiler: compiler,
		entries:  make(map[string]*CompiledPipeline),
	}
}

// GetOrCompile returns the compiled form of pipeline, compiling it on a
// miss. Concurrent misses on the same definition compile once. Failed
// compilations are not cached, and a compile only replaces the entry it
// missed on, so a slow compile of an older definition cannot evict a
// newer one.
func (c *PipelineCache) GetOrCompile(ctx context.Context, pipeline *model.Pipeline) (*CompiledPipeline, error) {
	if cp, _ := c.lookup(pipeline); cp != nil {
		return cp, nil
	}
	key := fmt.Sprintf("%s@%p", pipeline.PipelineID, pipeline)
	v, err, _ := c.group.Do(key, func() (any, error) {
		cp, missed := c.lookup(pipeline)
		if cp != nil {
			return cp, nil
		}
		cp, err := c.compiler.Compile(ctx, pipeline)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.entries[pipeline.PipelineID] == missed {
			c.entries[pipeline.PipelineID] = cp
		}
		c.mu.Unlock()
		return cp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CompiledPipeline), nil
}

// lookup returns the entry compiled from pipeline, or nil and whatever
// entry currently holds its id.
func (c *PipelineCache) lookup(pipeline *model.Pipeline) (hit, current *CompiledPipeline) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	current = c.entries[pipeline.PipelineID]
	if current != nil && current.definition == pipeline {
		return current, current
	}
	return nil, current
}

// Invalidate drops the entry of a pipeline id.
func (c *PipelineCache) Invalidate(pipelineID string) {
	c.mu.Lock()
	delete(c.entries, pipelineID)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *PipelineCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*CompiledPipeline)
	c.mu.Unlock()
}

// Len returns the number of cached pipelines.
func (c *PipelineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
