// Package kernel compiles pipeline definitions and runs them against topic
// data.
//
// A Kernel turns a model.Pipeline into a CompiledPipeline once: topic and
// factor references are resolved and every prerequisite, criteria and
// mapping is compiled into a closure. Running a compiled pipeline walks its
// stages, units and actions in declared order and stops at the first
// failing action. Every run produces exactly one monitor.PipelineLog, handed
// to the configured monitor.Handler, and the PendingRuns of the pipelines
// its writes trigger:
//
//	k, _ := kernel.New(kernel.Options{Topics: reg, Pipelines: reg.Pipelines(), Storage: store})
//	cache := kernel.NewPipelineCache(k)
//	compiled, _ := cache.GetOrCompile(ctx, pipeline)
//	result := compiled.Run(ctx, run, principal)
//	// result.Pending is executed by the caller, see package runner.
//
// Failures never unwind past a run. An error or panic inside an action is
// recorded as ERROR on its action log and short-circuits the rest of the
// run.
package kernel
