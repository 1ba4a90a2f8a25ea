package kafka

import (
	apperrors "github.com/watchmen-go/kernel/errors"
)

// FromKafka converts a Kafka write error to an AppError carrying the topic.
// Connection and transient failures stay retryable.
func FromKafka(err error, topic string) *apperrors.AppError {
	if err == nil {
		return nil
	}

	switch class := Classify(err); {
	case class == ClassRejected:
		appErr := apperrors.New(apperrors.ErrCodeInvalidInput, "message rejected by broker").WithCause(err)
		appErr.Retryable = false
		return appErr.WithDetail("topic", topic)
	case class.Retryable():
		return apperrors.Storage("kafka write", err).WithDetail("topic", topic)
	}
	return apperrors.Internal(err).WithDetail("topic", topic)
}
