// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package redis implements the coordination driver on Redis. Node traffic
// uses PUBLISH/SUBSCRIBE; leases are keys with a millisecond expiry that are
// only ever changed by Lua scripts, which Redis runs atomically.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/driver"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

// Driver is a Redis backed driver.Driver
type Driver struct {
	config *Config
	client *redis.Client
	logger log.Logger
	closed *atomic.Bool
}

// enforce compilation error
var _ driver.Driver = (*Driver)(nil)

// NewDriver connects to Redis and checks the connection
func NewDriver(ctx context.Context, config *Config, opts ...Option) (*Driver, error) {
	if config == nil {
		return nil, errors.New("driver/redis: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Driver{
		config: config,
		logger: log.DefaultLogger,
		closed: atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(d)
	}

	d.client = redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Username:    config.Username,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, config.DialTimeout)
	defer cancel()
	if err := d.client.Ping(pingCtx).Err(); err != nil {
		_ = d.client.Close()
		return nil, fmt.Errorf("driver/redis: connect: %w", err)
	}
	return d, nil
}

// Close closes the client. Close is idempotent.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.client.Close()
}

// Subscribe subscribes on the channel of nodeID
func (d *Driver) Subscribe(ctx context.Context, nodeID string) (driver.Subscription, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	pubsub := d.client.Subscribe(ctx, d.channel(nodeID))
	// wait for the subscription confirmation so that no publish is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("driver/redis: subscribe: %w", err)
	}

	sub := &subscription{
		pubsub: pubsub,
		ch:     make(chan []byte, d.config.BufferSize),
		done:   make(chan struct{}),
		logger: d.logger,
	}
	go sub.forward(pubsub.Channel(redis.WithChannelSize(d.config.BufferSize)))
	return sub, nil
}

// Publish publishes payload on the channel of targetNodeID
func (d *Driver) Publish(ctx context.Context, targetNodeID string, payload []byte) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	if err := d.client.Publish(ctx, d.channel(targetNodeID), payload).Err(); err != nil {
		return fmt.Errorf("driver/redis: publish: %w", err)
	}
	return nil
}

// CreateActor implements driver.ActorStore
func (d *Driver) CreateActor(ctx context.Context, record driver.ActorRecord) error {
	if err := d.check(ctx); err != nil {
		return err
	}

	payload, err := msgpack.Marshal(record)
	if err != nil {
		return err
	}

	created, err := d.client.SetNX(ctx, d.actorKey(record.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("driver/redis: create actor: %w", err)
	}

	if created {
		return nil
	}

	existing, err := d.getActor(ctx, record.ID)
	if err != nil {
		return err
	}

	if existing == nil || !existing.Equal(record) {
		return fmt.Errorf("actor (%s): %w", record.ID, gerrors.ErrActorAlreadyExists)
	}
	return nil
}

// GetActorLeader implements driver.LeaseStore
func (d *Driver) GetActorLeader(ctx context.Context, actorID string) (*driver.ActorLeader, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	exists, err := d.client.Exists(ctx, d.actorKey(actorID)).Result()
	if err != nil {
		return nil, fmt.Errorf("driver/redis: get actor: %w", err)
	}

	if exists == 0 {
		return &driver.ActorLeader{}, nil
	}

	leader, err := d.client.Get(ctx, d.leaseKey(actorID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("driver/redis: get lease: %w", err)
	}
	return &driver.ActorLeader{Exists: true, LeaderNodeID: leader}, nil
}

// StartActorAndAcquireLease implements driver.LeaseStore
func (d *Driver) StartActorAndAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.StartActorOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	record, err := d.getActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return &driver.StartActorOutput{}, nil
	}

	leader, err := d.acquire(ctx, actorID, nodeID, duration)
	if err != nil {
		return nil, err
	}
	if leader == "" {
		return &driver.StartActorOutput{}, nil
	}

	return &driver.StartActorOutput{Actor: record, LeaderNodeID: leader}, nil
}

// ExtendLease implements driver.LeaseStore
func (d *Driver) ExtendLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.ExtendLeaseOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	extended, err := extendScript.Run(ctx, d.client, []string{d.leaseKey(actorID)}, nodeID, duration.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("driver/redis: extend lease: %w", err)
	}
	return &driver.ExtendLeaseOutput{LeaseValid: extended == 1}, nil
}

// AttemptAcquireLease implements driver.LeaseStore
func (d *Driver) AttemptAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.AttemptAcquireLeaseOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	leader, err := d.acquire(ctx, actorID, nodeID, duration)
	if err != nil {
		return nil, err
	}
	return &driver.AttemptAcquireLeaseOutput{NewLeaderNodeID: leader}, nil
}

// ReleaseLease implements driver.LeaseStore
func (d *Driver) ReleaseLease(ctx context.Context, actorID, nodeID string) error {
	if err := d.check(ctx); err != nil {
		return err
	}

	if err := releaseScript.Run(ctx, d.client, []string{d.leaseKey(actorID)}, nodeID).Err(); err != nil {
		return fmt.Errorf("driver/redis: release lease: %w", err)
	}
	return nil
}

// acquire returns the leader after the attempt, or an empty string for an unknown actor
func (d *Driver) acquire(ctx context.Context, actorID, nodeID string, duration time.Duration) (string, error) {
	keys := []string{d.actorKey(actorID), d.leaseKey(actorID)}
	leader, err := acquireScript.Run(ctx, d.client, keys, nodeID, duration.Milliseconds()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("driver/redis: acquire lease: %w", err)
	}
	return leader, nil
}

func (d *Driver) getActor(ctx context.Context, actorID string) (*driver.ActorRecord, error) {
	payload, err := d.client.Get(ctx, d.actorKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("driver/redis: get actor: %w", err)
	}

	record := new(driver.ActorRecord)
	if err := msgpack.Unmarshal(payload, record); err != nil {
		return nil, fmt.Errorf("driver/redis: decode actor: %w", err)
	}
	return record, nil
}

func (d *Driver) actorKey(actorID string) string {
	return d.config.KeyPrefix + ":actor:" + actorID
}

func (d *Driver) leaseKey(actorID string) string {
	return d.config.KeyPrefix + ":lease:" + actorID
}

func (d *Driver) channel(nodeID string) string {
	return d.config.ChannelPrefix + nodeID
}

func (d *Driver) check(ctx context.Context) error {
	if d.closed.Load() {
		return gerrors.ErrDriverClosed
	}
	return ctx.Err()
}

type subscription struct {
	pubsub *redis.PubSub
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
	logger log.Logger
}

// forward drains the client channel until the pubsub is closed
func (s *subscription) forward(messages <-chan *redis.Message) {
	defer close(s.ch)
	for msg := range messages {
		select {
		case s.ch <- []byte(msg.Payload):
		case <-s.done:
			return
		default:
			s.logger.Warnf("subscription on (%s) is full, message dropped", msg.Channel)
		}
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.ch
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
