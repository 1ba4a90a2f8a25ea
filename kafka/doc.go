// Package kafka holds the Kafka connection configuration, transport
// construction (TLS, SASL) and error classification shared by the
// producer subpackage.
//
//	kafka:
//	  enabled: true
//	  brokers: ["localhost:9092"]
//	  topic: watchmen.pipeline.monitor
package kafka
