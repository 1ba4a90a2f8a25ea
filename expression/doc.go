// Package expression compiles the parameter and condition trees of pipeline
// definitions into closures over the variable context.
//
// Four kinds of closure are produced:
//
//   - prerequisites, gating pipelines, stages, units and alarms
//   - parameters, evaluated in memory
//   - storage criteria, built from the by-condition of topic actions
//   - mappings, producing the factor values of write actions
//
// Constants may reference the context with {path}; a constant that is
// exactly one reference keeps the referenced value's type. Expression
// parameters are expr-lang programs compiled once at definition load.
package expression
