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

package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/driver"
	gerrors "github.com/tochemey/coordinate/errors"
)

// Driver is one node's view of a Hub
type Driver struct {
	hub           *Hub
	mu            sync.Mutex
	subscriptions map[*subscription]struct{}
	closed        atomic.Bool
}

// enforce compilation error
var _ driver.Driver = (*Driver)(nil)

// Subscribe registers nodeID on the hub
func (d *Driver) Subscribe(ctx context.Context, nodeID string) (driver.Subscription, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}

	sub, err := d.hub.subscribe(d, nodeID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.subscriptions[sub] = struct{}{}
	d.mu.Unlock()
	return sub, nil
}

// Publish delivers payload to the subscription of targetNodeID, if any
func (d *Driver) Publish(ctx context.Context, targetNodeID string, payload []byte) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	d.hub.publish(targetNodeID, payload)
	return nil
}

// GetActorLeader implements driver.LeaseStore
func (d *Driver) GetActorLeader(ctx context.Context, actorID string) (*driver.ActorLeader, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	return d.hub.getActorLeader(actorID), nil
}

// StartActorAndAcquireLease implements driver.LeaseStore
func (d *Driver) StartActorAndAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.StartActorOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	return d.hub.startActorAndAcquireLease(actorID, nodeID, duration), nil
}

// ExtendLease implements driver.LeaseStore
func (d *Driver) ExtendLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.ExtendLeaseOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	return d.hub.extendLease(actorID, nodeID, duration)
}

// AttemptAcquireLease implements driver.LeaseStore
func (d *Driver) AttemptAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*driver.AttemptAcquireLeaseOutput, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	return d.hub.attemptAcquireLease(actorID, nodeID, duration)
}

// ReleaseLease implements driver.LeaseStore
func (d *Driver) ReleaseLease(ctx context.Context, actorID, nodeID string) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	d.hub.releaseLease(actorID, nodeID)
	return nil
}

// CreateActor implements driver.ActorStore
func (d *Driver) CreateActor(ctx context.Context, record driver.ActorRecord) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	return d.hub.createActor(record)
}

// Close closes the subscriptions created through this driver.
// Leases and actor records stay on the hub.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	subs := make([]*subscription, 0, len(d.subscriptions))
	for sub := range d.subscriptions {
		subs = append(subs, sub)
	}
	d.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (d *Driver) check(ctx context.Context) error {
	if d.closed.Load() {
		return gerrors.ErrDriverClosed
	}
	return ctx.Err()
}

func (d *Driver) forget(sub *subscription) {
	d.mu.Lock()
	delete(d.subscriptions, sub)
	d.mu.Unlock()
}

type subscription struct {
	hub    *Hub
	owner  *Driver
	nodeID string
	ch     chan []byte
	once   sync.Once
}

func (s *subscription) Messages() <-chan []byte {
	return s.ch
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
		s.owner.forget(s)
	})
	return nil
}
