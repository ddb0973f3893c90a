// Package mirror copies presence changes to Redis for outside readers.
// Nothing is ever read back into the relay.
package mirror

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// OnlineKey is the set of users with a live connection.
	OnlineKey  = "presence:online"
	userPrefix = "presence:user:"

	DefaultQueue = 1024
)

// Client is the part of *redis.Client the mirror uses.
type Client interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
	Close() error
}

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

func UserKey(userID string) string { return userPrefix + userID }

// Presence is a router observer. Observe queues presence changes and Run
// writes them, so a slow Redis never stalls the relay. Changes that do not
// fit the queue are dropped and counted.
type Presence struct {
	client  Client
	queue   chan model.PresenceChange
	log     logrus.FieldLogger
	timeout time.Duration
	dropped atomic.Int64
}

func NewPresence(client Client, size int, log logrus.FieldLogger) *Presence {
	if size <= 0 {
		size = DefaultQueue
	}
	return &Presence{
		client:  client,
		queue:   make(chan model.PresenceChange, size),
		log:     log,
		timeout: 2 * time.Second,
	}
}

func (p *Presence) Observe(n model.Notification) {
	if n.Type != model.EventPresenceChanged {
		return
	}
	change, ok := n.Data.(model.PresenceChange)
	if !ok {
		return
	}
	select {
	case p.queue <- change:
	default:
		p.dropped.Add(1)
	}
}

func (p *Presence) Dropped() int64 { return p.dropped.Load() }

// Run writes queued changes until ctx is done.
func (p *Presence) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change := <-p.queue:
			if err := p.write(ctx, change); err != nil {
				p.log.WithFields(logrus.Fields{
					"function": "Run",
					"user":     change.UserID,
					"error":    err,
				}).Warn("Failed to mirror presence")
			}
		}
	}
}

func (p *Presence) write(ctx context.Context, change model.PresenceChange) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	lastSeen := ""
	if change.LastSeen != nil {
		lastSeen = change.LastSeen.UTC().Format(time.RFC3339Nano)
	}
	if err := p.client.HSet(ctx, UserKey(change.UserID), "status", string(change.Status), "last_seen", lastSeen).Err(); err != nil {
		return err
	}

	if change.Status == model.PresenceOffline {
		return p.client.SRem(ctx, OnlineKey, change.UserID).Err()
	}
	return p.client.SAdd(ctx, OnlineKey, change.UserID).Err()
}

func (p *Presence) Close() error { return p.client.Close() }
