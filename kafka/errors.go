package kafka

import (
	"errors"
	"net"
	"strings"

	kafkago "github.com/segmentio/kafka-go"
)

// ErrorClass groups write failures by how a producer should react.
type ErrorClass int

const (
	// ClassUnknown is a failure with no recognizable cause.
	ClassUnknown ErrorClass = iota
	// ClassConnection means the broker could not be reached.
	ClassConnection
	// ClassTransient is a broker-side failure that may pass on retry.
	ClassTransient
	// ClassRejected means the broker refused the message for good.
	ClassRejected
)

// Retryable reports whether another attempt may succeed.
func (c ErrorClass) Retryable() bool {
	return c == ClassConnection || c == ClassTransient
}

var rejectedCodes = map[kafkago.Error]bool{
	kafkago.MessageSizeTooLarge:        true,
	kafkago.InvalidTopic:               true,
	kafkago.UnknownTopicOrPartition:    true,
	kafkago.TopicAuthorizationFailed:   true,
	kafkago.ClusterAuthorizationFailed: true,
}

// Text hints for errors that reach us without a protocol code.
var (
	rejectedHints   = []string{"message too large", "invalid topic", "unknown topic", "authorization failed"}
	connectionHints = []string{"connection refused", "connection reset", "broken pipe", "no route to host", "network is unreachable", "connection closed", "dial tcp"}
	transientHints  = []string{"temporary", "timed out", "i/o timeout", "not enough replicas", "leader not available"}
)

// Classify sorts a write error. Protocol errors are classified by code, a
// batch by its worst member, network errors by their timeout flag, and
// anything else by its text.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	var batch kafkago.WriteErrors
	if errors.As(err, &batch) {
		worst := ClassUnknown
		for _, e := range batch {
			if c := Classify(e); c > worst {
				worst = c
			}
		}
		return worst
	}
	var code kafkago.Error
	if errors.As(err, &code) {
		switch {
		case rejectedCodes[code]:
			return ClassRejected
		case code.Temporary(), code.Timeout():
			return ClassTransient
		}
		return ClassUnknown
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTransient
		}
		return ClassConnection
	}

	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, rejectedHints):
		return ClassRejected
	case containsAny(text, connectionHints):
		return ClassConnection
	case containsAny(text, transientHints):
		return ClassTransient
	}
	return ClassUnknown
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
