package kernel

import (
	"context"

	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/model"
)

// PendingRun is a pipeline run waiting to be executed: the pipeline, the
// topic it is bound to and the trigger data it runs on.
type PendingRun struct {
	Pipeline       *model.Pipeline
	Topic          *model.Topic
	Previous       map[string]any
	Current        map[string]any
	TraceID        string
	InternalDataID string
}

// reactsTo lists the pipeline types each trigger type starts.
var reactsTo = map[model.TriggerType][]model.TriggerType{
	model.TriggerInsert: {model.TriggerInsert, model.TriggerInsertOrMerge},
	model.TriggerMerge:  {model.TriggerMerge, model.TriggerInsertOrMerge},
	model.TriggerDelete: {model.TriggerDelete},
}

// Reacts reports whether a pipeline of type pipelineType starts on a
// trigger of type triggerType.
func Reacts(pipelineType, triggerType model.TriggerType) bool {
	for _, t := range reactsTo[triggerType] {
		if t == pipelineType {
			return true
		}
	}
	return false
}

// ResolveCascades selects the enabled pipelines of topic that react to
// trigger and returns one pending run per pipeline, in the given order.
func ResolveCascades(trigger model.TopicTrigger, topic *model.Topic, pipelines []*model.Pipeline, traceID string) []PendingRun {
	var runs []PendingRun
	for _, p := range pipelines {
		if p == nil || !p.Enabled || p.TopicID != topic.TopicID || !Reacts(p.Type, trigger.TriggerType) {
			continue
		}
		runs = append(runs, PendingRun{
			Pipeline:       p,
			Topic:          topic,
			Previous:       trigger.Previous,
			Current:        trigger.Current,
			TraceID:        traceID,
			InternalDataID: trigger.InternalDataID,
		})
	}
	return runs
}

// cascades turns the triggers collected during a run into pending runs.
// A topic whose pipelines cannot be listed is logged and skipped.
func (k *Kernel) cascades(ctx context.Context, s *scope) []PendingRun {
	var runs []PendingRun
	pipelinesOf := make(map[string][]*model.Pipeline)
	for _, c := range s.triggers.all() {
		pipelines, ok := pipelinesOf[c.topic.TopicID]
		if !ok {
			var err error
			if pipelines, err = k.pipelines.FindByTopicID(ctx, c.topic.TopicID); err != nil {
				s.log.Error("pipelines of topic not listed", logger.Fields(
					logger.FieldTopic, c.topic.TopicID,
					logger.FieldError, err.Error(),
				))
			}
			pipelinesOf[c.topic.TopicID] = pipelines
		}
		runs = append(runs, ResolveCascades(c.trigger, c.topic, pipelines, s.traceID)...)
	}
	return runs
}
