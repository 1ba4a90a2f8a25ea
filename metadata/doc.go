// Package metadata holds topic and pipeline definitions.
//
// TopicService and PipelineService are the lookups the kernel depends on.
// Registry implements both in memory and is filled from YAML files:
//
//	defs, err := metadata.Load("definitions/")
//	reg := metadata.NewRegistry()
//	err = reg.Load(defs)
//
// Load validates the struct tags of every definition with validator/v10 and
// then checks references between pipelines, topics and factors.
package metadata
