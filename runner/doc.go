// Package runner executes the pipelines started by a topic trigger.
//
// A trigger starts every enabled pipeline of its topic whose type reacts to
// the change. Each run returns the runs its own writes trigger; the Runner
// queues them and drains the queue first in, first out, so all runs caused
// by one write finish before the runs they cause in turn. Compiled
// pipelines come from a kernel.PipelineCache shared by every trigger.
//
//	r, _ := runner.New(runner.Options{Kernel: k, Topics: reg, Pipelines: reg.Pipelines(), Storage: store})
//	report, err := r.Ingest(ctx, "orders", row, principal, "")
package runner
