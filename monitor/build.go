package monitor

import (
	"fmt"

	"github.com/watchmen-go/kernel/kafka/producer"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/redis"
)

// Backends are the clients sinks may need. Unused ones may be nil.
type Backends struct {
	Redis      *redis.Client
	Publisher  producer.Publisher
	KafkaTopic string
}

// BuildSinks creates the sinks named in cfg.
func BuildSinks(cfg Config, log *logger.Logger, b Backends) ([]Sink, error) {
	cfg.ApplyDefaults()
	sinks := make([]Sink, 0, len(cfg.Sinks))
	for _, name := range cfg.Sinks {
		switch name {
		case SinkLogger:
			sinks = append(sinks, NewLoggerSink(log))
		case SinkRedis:
			if b.Redis == nil {
				return nil, fmt.Errorf("monitor sink %q needs a redis client", name)
			}
			sinks = append(sinks, NewRedisSink(b.Redis, cfg))
		case SinkKafka:
			if b.Publisher == nil {
				return nil, fmt.Errorf("monitor sink %q needs a kafka publisher", name)
			}
			sinks = append(sinks, NewKafkaSink(b.Publisher, b.KafkaTopic))
		default:
			return nil, fmt.Errorf("unknown monitor sink %q", name)
		}
	}
	return sinks, nil
}
