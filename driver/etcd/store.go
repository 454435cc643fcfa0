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

// Package etcd implements the lease store on etcd. Leases are plain keys
// whose value carries the leader and the expiry; every change is a
// transaction guarded by the revision read just before it.
//
// The package carries no pub/sub, use driver.Compose to pair the store
// with a transport.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/driver"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

const (
	actorPrefix = "actor/"
	leasePrefix = "lease/"
)

type leaseValue struct {
	Leader    string `msgpack:"l"`
	ExpiresAt int64  `msgpack:"e"`
}

// Store is an etcd backed driver.Store
type Store struct {
	config *Config
	client *clientv3.Client
	kv     clientv3.KV
	logger log.Logger
	clock  func() time.Time
	closed *atomic.Bool
}

// enforce compilation error
var _ driver.Store = (*Store)(nil)

// NewStore connects to etcd and checks the first endpoint is reachable
func NewStore(config *Config, opts ...Option) (*Store, error) {
	if config == nil {
		return nil, errors.New("driver/etcd: config is nil")
	}

	config.Sanitize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		TLS:         config.TLS,
		Username:    config.Username,
		Password:    config.Password,
		Context:     config.Context,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(config.Context, config.DialTimeout)
	defer cancel()

	if _, err = client.Status(ctx, config.Endpoints[0]); err != nil {
		if cerr := client.Close(); cerr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to close etcd client: %w", cerr))
		}
		return nil, fmt.Errorf("driver/etcd: connect: %w", err)
	}

	store := &Store{
		config: config,
		client: client,
		kv:     namespace.NewKV(client.KV, normalizeNamespace(config.Namespace)),
		logger: log.DefaultLogger,
		clock:  time.Now,
		closed: atomic.NewBool(false),
	}

	for _, opt := range opts {
		opt.Apply(store)
	}
	return store, nil
}

// Close closes the etcd client. Close is idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}

// CreateActor implements driver.ActorStore
func (s *Store) CreateActor(ctx context.Context, record driver.ActorRecord) error {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	payload, err := msgpack.Marshal(record)
	if err != nil {
		return err
	}

	key := actorPrefix + record.ID
	resp, err := s.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(payload))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return fmt.Errorf("driver/etcd: create actor: %w", err)
	}

	if resp.Succeeded {
		return nil
	}

	kvs := resp.Responses[0].GetResponseRange().GetKvs()
	if len(kvs) == 0 {
		return fmt.Errorf("actor (%s): %w", record.ID, gerrors.ErrActorAlreadyExists)
	}

	existing := new(driver.ActorRecord)
	if err := msgpack.Unmarshal(kvs[0].Value, existing); err != nil {
		return fmt.Errorf("driver/etcd: decode actor: %w", err)
	}

	if !existing.Equal(record) {
		return fmt.Errorf("actor (%s): %w", record.ID, gerrors.ErrActorAlreadyExists)
	}
	return nil
}

// GetActorLeader implements driver.LeaseStore
func (s *Store) GetActorLeader(ctx context.Context, actorID string) (*driver.ActorLeader, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	record, err := s.getActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return &driver.ActorLeader{}, nil
	}

	current, _, err := s.getLease(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return &driver.ActorLeader{Exists: true, LeaderNodeID: s.liveLeader(current)}, nil
}

// StartActorAndAcquireLease implements driver.LeaseStore
func (s *Store) StartActorAndAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.StartActorOutput, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	record, err := s.getActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return &driver.StartActorOutput{}, nil
	}

	leader, err := s.acquire(ctx, actorID, nodeID, duration)
	if err != nil {
		return nil, err
	}
	return &driver.StartActorOutput{Actor: record, LeaderNodeID: leader}, nil
}

// ExtendLease implements driver.LeaseStore
func (s *Store) ExtendLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.ExtendLeaseOutput, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	valid := false
	err = s.compareAndSwap(ctx, actorID, func(current *leaseValue) *leaseValue {
		valid = current != nil && current.Leader == nodeID
		if !valid {
			return nil
		}
		return &leaseValue{Leader: nodeID, ExpiresAt: s.clock().Add(duration).UnixNano()}
	})
	if err != nil {
		return nil, err
	}
	return &driver.ExtendLeaseOutput{LeaseValid: valid}, nil
}

// AttemptAcquireLease implements driver.LeaseStore
func (s *Store) AttemptAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.AttemptAcquireLeaseOutput, error) {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	record, err := s.getActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return &driver.AttemptAcquireLeaseOutput{}, nil
	}

	leader, err := s.acquire(ctx, actorID, nodeID, duration)
	if err != nil {
		return nil, err
	}
	return &driver.AttemptAcquireLeaseOutput{NewLeaderNodeID: leader}, nil
}

// ReleaseLease implements driver.LeaseStore
func (s *Store) ReleaseLease(ctx context.Context, actorID, nodeID string) error {
	ctx, cancel, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	return s.compareAndSwap(ctx, actorID, func(current *leaseValue) *leaseValue {
		if current == nil || current.Leader != nodeID {
			return nil
		}
		return &leaseValue{}
	})
}

func (s *Store) acquire(ctx context.Context, actorID, nodeID string, duration time.Duration) (string, error) {
	var leader string
	err := s.compareAndSwap(ctx, actorID, func(current *leaseValue) *leaseValue {
		leader = s.liveLeader(current)
		if leader != "" {
			return nil
		}
		leader = nodeID
		return &leaseValue{Leader: nodeID, ExpiresAt: s.clock().Add(duration).UnixNano()}
	})
	return leader, err
}

// compareAndSwap writes the value computed by mutate only if the lease key
// still has the revision it was read at. A nil result leaves the key untouched.
func (s *Store) compareAndSwap(ctx context.Context, actorID string, mutate func(current *leaseValue) *leaseValue) error {
	key := leasePrefix + actorID
	for range s.config.MaxCASAttempts {
		current, revision, err := s.getLease(ctx, actorID)
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

		condition := clientv3.Compare(clientv3.ModRevision(key), "=", revision)
		if revision == 0 {
			condition = clientv3.Compare(clientv3.CreateRevision(key), "=", 0)
		}

		resp, err := s.kv.Txn(ctx).If(condition).Then(clientv3.OpPut(key, string(payload))).Commit()
		if err != nil {
			return fmt.Errorf("driver/etcd: write lease: %w", err)
		}

		if resp.Succeeded {
			return nil
		}
		s.logger.Debugf("lease of actor (%s) changed concurrently, retrying", actorID)
	}
	return fmt.Errorf("driver/etcd: lease of actor (%s) kept changing after %d attempts", actorID, s.config.MaxCASAttempts)
}

func (s *Store) getActor(ctx context.Context, actorID string) (*driver.ActorRecord, error) {
	resp, err := s.kv.Get(ctx, actorPrefix+actorID)
	if err != nil {
		return nil, fmt.Errorf("driver/etcd: get actor: %w", err)
	}

	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	record := new(driver.ActorRecord)
	if err := msgpack.Unmarshal(resp.Kvs[0].Value, record); err != nil {
		return nil, fmt.Errorf("driver/etcd: decode actor: %w", err)
	}
	return record, nil
}

func (s *Store) getLease(ctx context.Context, actorID string) (*leaseValue, int64, error) {
	resp, err := s.kv.Get(ctx, leasePrefix+actorID)
	if err != nil {
		return nil, 0, fmt.Errorf("driver/etcd: get lease: %w", err)
	}

	if len(resp.Kvs) == 0 {
		return nil, 0, nil
	}

	value := new(leaseValue)
	if err := msgpack.Unmarshal(resp.Kvs[0].Value, value); err != nil {
		return nil, 0, fmt.Errorf("driver/etcd: decode lease: %w", err)
	}
	return value, resp.Kvs[0].ModRevision, nil
}

func (s *Store) liveLeader(value *leaseValue) string {
	if value == nil || value.Leader == "" {
		return ""
	}
	if s.clock().UnixNano() >= value.ExpiresAt {
		return ""
	}
	return value.Leader
}

func (s *Store) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if s.closed.Load() {
		return nil, nil, gerrors.ErrDriverClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	return ctx, cancel, nil
}
