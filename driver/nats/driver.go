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

// Package nats implements the coordination driver on top of NATS: node
// traffic flows over core NATS subjects and leases live in a JetStream
// KeyValue bucket updated with revision-based compare-and-swap.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/driver"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

// leaseValue is the stored form of a lease.
// An empty Leader means the lease was released.
type leaseValue struct {
	Leader    string `msgpack:"l"`
	ExpiresAt int64  `msgpack:"e"`
}

// Driver is a NATS backed driver.Driver
type Driver struct {
	config *Config
	conn   *nats.Conn
	kv     nats.KeyValue
	logger log.Logger
	clock  func() time.Time
	closed *atomic.Bool
}

// enforce compilation error
var _ driver.Driver = (*Driver)(nil)

// NewDriver connects to NATS and ensures the KeyValue bucket exists.
func NewDriver(ctx context.Context, config *Config, opts ...Option) (*Driver, error) {
	if config == nil {
		return nil, errors.New("driver/nats: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Driver{
		config: config,
		logger: log.DefaultLogger,
		clock:  time.Now,
		closed: atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(d)
	}

	natsOpts := nats.GetDefaultOptions()
	natsOpts.Url = config.URL
	natsOpts.Timeout = config.ConnectTimeout
	natsOpts.ReconnectWait = 2 * time.Second
	natsOpts.MaxReconnect = -1

	// connect using an exponential backoff, the server may still be starting
	retrier := retry.NewRetrier(config.MaxConnectAttempts, 100*time.Millisecond, natsOpts.ReconnectWait)
	err := retrier.RunContext(ctx, func(context.Context) error {
		conn, err := natsOpts.Connect()
		if err != nil {
			return err
		}
		d.conn = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("driver/nats: connect: %w", err)
	}

	js, err := d.conn.JetStream(nats.MaxWait(config.Timeout))
	if err != nil {
		d.conn.Close()
		return nil, fmt.Errorf("driver/nats: jetstream: %w", err)
	}

	// get the existing bucket first, then create it if it doesn't exist
	kv, err := js.KeyValue(config.Bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      config.Bucket,
			Description: "coordinate actor records and leases",
			History:     1,
		})
		if err != nil {
			// another node may have created the bucket concurrently
			if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
				kv, err = js.KeyValue(config.Bucket)
			}

			if err != nil {
				d.conn.Close()
				return nil, fmt.Errorf("driver/nats: create bucket: %w", err)
			}
		}
	}

	d.kv = kv
	return d, nil
}

// Close releases the NATS connection. Close is idempotent.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.conn != nil {
		d.conn.Close()
	}
	return nil
}

// Subscribe subscribes on the subject of nodeID
func (d *Driver) Subscribe(ctx context.Context, nodeID string) (driver.Subscription, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	subject, err := d.subject(nodeID)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		ch:     make(chan []byte, d.config.BufferSize),
		logger: d.logger,
	}

	natsSub, err := d.conn.Subscribe(subject, sub.handle)
	if err != nil {
		return nil, fmt.Errorf("driver/nats: subscribe: %w", err)
	}

	// make sure the server knows about the interest before anyone publishes
	if err := d.conn.FlushTimeout(d.config.Timeout); err != nil {
		_ = natsSub.Unsubscribe()
		return nil, fmt.Errorf("driver/nats: flush: %w", err)
	}

	sub.sub = natsSub
	return sub, nil
}

// Publish publishes payload on the subject of targetNodeID
func (d *Driver) Publish(ctx context.Context, targetNodeID string, payload []byte) error {
	if err := d.check(ctx); err != nil {
		return err
	}

	subject, err := d.subject(targetNodeID)
	if err != nil {
		return err
	}

	if err := d.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("driver/nats: publish: %w", err)
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

	key := actorKey(record.ID)
	if _, err := d.kv.Create(key, payload); err != nil {
		if !errors.Is(err, nats.ErrKeyExists) {
			return fmt.Errorf("driver/nats: create actor: %w", err)
		}

		existing, err := d.getActor(record.ID)
		if err != nil {
			return err
		}

		if existing == nil || !existing.Equal(record) {
			return fmt.Errorf("actor (%s): %w", record.ID, gerrors.ErrActorAlreadyExists)
		}
	}
	return nil
}

// GetActorLeader implements driver.LeaseStore
func (d *Driver) GetActorLeader(ctx context.Context, actorID string) (*driver.ActorLeader, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	record, err := d.getActor(actorID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return &driver.ActorLeader{}, nil
	}

	current, _, err := d.getLease(actorID)
	if err != nil {
		return nil, err
	}

	return &driver.ActorLeader{Exists: true, LeaderNodeID: d.liveLeader(current)}, nil
}

// StartActorAndAcquireLease implements driver.LeaseStore
func (d *Driver) StartActorAndAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.StartActorOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	record, err := d.getActor(actorID)
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

	return &driver.StartActorOutput{Actor: record, LeaderNodeID: leader}, nil
}

// ExtendLease implements driver.LeaseStore
func (d *Driver) ExtendLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.ExtendLeaseOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	valid := false
	err := d.compareAndSwap(ctx, actorID, func(current *leaseValue) *leaseValue {
		valid = current != nil && current.Leader == nodeID
		if !valid {
			return nil
		}
		return &leaseValue{Leader: nodeID, ExpiresAt: d.clock().Add(duration).UnixNano()}
	})
	if err != nil {
		return nil, err
	}

	return &driver.ExtendLeaseOutput{LeaseValid: valid}, nil
}

// AttemptAcquireLease implements driver.LeaseStore
func (d *Driver) AttemptAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.AttemptAcquireLeaseOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	record, err := d.getActor(actorID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return &driver.AttemptAcquireLeaseOutput{}, nil
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

	return d.compareAndSwap(ctx, actorID, func(current *leaseValue) *leaseValue {
		if current == nil || current.Leader != nodeID {
			return nil
		}
		return &leaseValue{}
	})
}

// acquire makes nodeID the leader when the lease is free and returns the resulting leader
func (d *Driver) acquire(ctx context.Context, actorID, nodeID string, duration time.Duration) (string, error) {
	var leader string
	err := d.compareAndSwap(ctx, actorID, func(current *leaseValue) *leaseValue {
		leader = d.liveLeader(current)
		if leader != "" {
			return nil
		}
		leader = nodeID
		return &leaseValue{Leader: nodeID, ExpiresAt: d.clock().Add(duration).UnixNano()}
	})
	return leader, err
}

// compareAndSwap reads the lease of actorID, lets mutate compute the next value
// and writes it conditionally on the read revision. A nil result leaves the
// lease untouched. Conflicting writers make the loop start over.
func (d *Driver) compareAndSwap(ctx context.Context, actorID string, mutate func(current *leaseValue) *leaseValue) error {
	key := leaseKey(actorID)
	for range d.config.MaxCASAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, revision, err := d.getLease(actorID)
		if err != nil {
			return err
		}

		next := mutate(current)
		if next == nil {
			return nil
		}

		payload, err := msgpack.Marshal(next)
		if err != nil {
			return err
		}

		if revision == 0 {
			_, err = d.kv.Create(key, payload)
		} else {
			_, err = d.kv.Update(key, payload, revision)
		}

		switch {
		case err == nil:
			return nil
		case isRevisionConflict(err):
			d.logger.Debugf("lease of actor (%s) changed concurrently, retrying", actorID)
			continue
		default:
			return fmt.Errorf("driver/nats: write lease: %w", err)
		}
	}
	return fmt.Errorf("driver/nats: lease of actor (%s) kept changing after %d attempts", actorID, d.config.MaxCASAttempts)
}

func (d *Driver) getActor(actorID string) (*driver.ActorRecord, error) {
	entry, err := d.kv.Get(actorKey(actorID))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return nil, nil
		}
		return nil, fmt.Errorf("driver/nats: get actor: %w", err)
	}

	record := new(driver.ActorRecord)
	if err := msgpack.Unmarshal(entry.Value(), record); err != nil {
		return nil, fmt.Errorf("driver/nats: decode actor: %w", err)
	}
	return record, nil
}

// getLease returns the stored lease and its revision; a zero revision means no key
func (d *Driver) getLease(actorID string) (*leaseValue, uint64, error) {
	entry, err := d.kv.Get(leaseKey(actorID))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("driver/nats: get lease: %w", err)
	}

	value := new(leaseValue)
	if err := msgpack.Unmarshal(entry.Value(), value); err != nil {
		return nil, 0, fmt.Errorf("driver/nats: decode lease: %w", err)
	}
	return value, entry.Revision(), nil
}

func (d *Driver) liveLeader(value *leaseValue) string {
	if value == nil || value.Leader == "" {
		return ""
	}
	if d.clock().UnixNano() >= value.ExpiresAt {
		return ""
	}
	return value.Leader
}

func (d *Driver) subject(nodeID string) (string, error) {
	if nodeID == "" || strings.ContainsAny(nodeID, ".*> \t\r\n") {
		return "", fmt.Errorf("driver/nats: invalid node id %q", nodeID)
	}
	return d.config.SubjectPrefix + "." + nodeID, nil
}

func (d *Driver) check(ctx context.Context) error {
	if d.closed.Load() {
		return gerrors.ErrDriverClosed
	}
	return ctx.Err()
}

func isRevisionConflict(err error) bool {
	if errors.Is(err, nats.ErrKeyExists) {
		return true
	}
	var apiErr *nats.APIError
	if errors.As(err, &apiErr) && apiErr != nil && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence {
		return true
	}
	return false
}

type subscription struct {
	mu     sync.Mutex
	sub    *nats.Subscription
	ch     chan []byte
	closed bool
	logger log.Logger
}

func (s *subscription) handle(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- msg.Data:
	default:
		s.logger.Warnf("subscription on (%s) is full, message dropped", msg.Subject)
	}
}

func (s *subscription) Messages() <-chan []byte {
	return s.ch
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)

	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("driver/nats: unsubscribe: %w", err)
	}
	return nil
}
