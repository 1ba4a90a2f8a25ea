package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Journal keeps JSON entries under their own expiring keys and indexes them
// in capped lists, newest last. Keys live under the client prefix:
// <name>:entry:<id> and <name>:list:<list>.
type Journal[T any] struct {
	client *Client
	name   string
	maxLen int64
	ttl    time.Duration
}

// NewJournal creates a journal. A maxLen of zero keeps every list entry and
// a ttl of zero keeps entries forever.
func NewJournal[T any](client *Client, name string, maxLen int64, ttl time.Duration) *Journal[T] {
	return &Journal[T]{client: client, name: name, maxLen: maxLen, ttl: ttl}
}

func (j *Journal[T]) entryKey(id string) string { return j.client.Key(j.name, "entry", id) }

func (j *Journal[T]) listKey(list string) string { return j.client.Key(j.name, "list", list) }

// Append stores v under id and pushes it onto every named list in one
// transaction.
func (j *Journal[T]) Append(ctx context.Context, id string, v *T, lists ...string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("journal %s encode %q: %w", j.name, id, err)
	}
	_, err = j.client.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, j.entryKey(id), data, j.ttl)
		for _, list := range lists {
			key := j.listKey(list)
			pipe.RPush(ctx, key, data)
			if j.maxLen > 0 {
				pipe.LTrim(ctx, key, -j.maxLen, -1)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("journal %s append %q: %w", j.name, id, err)
	}
	return nil
}

// Get returns the entry stored under id, or nil when it expired or never
// existed.
func (j *Journal[T]) Get(ctx context.Context, id string) (*T, error) {
	raw, err := j.client.Get(ctx, j.entryKey(id))
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal %s get %q: %w", j.name, id, err)
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("journal %s decode %q: %w", j.name, id, err)
	}
	return &v, nil
}

// Recent returns up to n of the newest entries of list, newest last.
func (j *Journal[T]) Recent(ctx context.Context, list string, n int64) ([]*T, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := j.client.Range(ctx, j.listKey(list), -n, -1)
	if err != nil {
		return nil, fmt.Errorf("journal %s read %q: %w", j.name, list, err)
	}
	out := make([]*T, 0, len(raw))
	for _, r := range raw {
		var v T
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			return nil, fmt.Errorf("journal %s decode %q: %w", j.name, list, err)
		}
		out = append(out, &v)
	}
	return out, nil
}
