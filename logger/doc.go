// Package logger provides structured logging for the pipeline kernel
// using zerolog.
//
// It supports JSON and console output, level configuration and
// component-scoped loggers carrying map-based structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("kernel")
//	log.Info("pipeline finished", logger.Fields(logger.FieldPipelineID, id))
package logger
