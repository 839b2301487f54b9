// Package expiry removes items whose expiry timestamp has passed: a
// periodic sweep under a redis lease, cascading over the reference graph
// and archiving published history before deletion.
package expiry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Lease is a named time-bound mutex on redis guaranteeing at most one
// concurrent sweep across processes.
type Lease struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// NewLease builds a lease on the given key.
func NewLease(client *redis.Client, key string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lease{client: client, key: key, ttl: ttl}
}

// Acquire attempts to take the lease. A false return means another
// holder is active and the caller must skip its run entirely.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release frees the lease if this instance still holds it. Safe to call
// after the lease has expired on its own.
func (l *Lease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
}
