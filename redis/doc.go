// Package redis wraps go-redis with kernel logging, configuration
// conventions and key namespacing.
//
// The monitor package keeps pipeline monitor logs in a Journal: each log
// under its own expiring key, indexed in capped lists per pipeline.
//
//	client, err := redis.New(cfg, log)
//	defer client.Close()
//	logs := redis.NewJournal[Log](client, "monitor", 1000, 24*time.Hour)
//	err = logs.Append(ctx, traceID, entry, "recent", "pipeline:"+pipelineID)
package redis
