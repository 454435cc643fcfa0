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

// Package driver defines the contract between the coordination core and the
// external systems that hold leases and carry node-to-node traffic.
//
// Every lease operation must be atomic with respect to the others for the same
// actor ID: the core relies on the store alone to guarantee that at most one
// node holds an unexpired lease for an actor at any instant.
package driver

import (
	"context"
	"time"
)

// ActorRecord describes a created actor.
// Name selects the actor implementation; Key is free-form addressing data.
type ActorRecord struct {
	ID   string   `msgpack:"id"`
	Name string   `msgpack:"n"`
	Key  []string `msgpack:"k,omitempty"`
}

// ActorLeader is the answer to GetActorLeader.
// LeaderNodeID is empty when no node holds an unexpired lease.
type ActorLeader struct {
	Exists       bool
	LeaderNodeID string
}

// StartActorOutput is the answer to StartActorAndAcquireLease.
// Actor is nil when no record exists for the requested ID.
type StartActorOutput struct {
	Actor        *ActorRecord
	LeaderNodeID string
}

// ExtendLeaseOutput is the answer to ExtendLease
type ExtendLeaseOutput struct {
	LeaseValid bool
}

// AttemptAcquireLeaseOutput is the answer to AttemptAcquireLease.
// NewLeaderNodeID is the leader after the attempt, possibly empty.
type AttemptAcquireLeaseOutput struct {
	NewLeaderNodeID string
}

// Subscription delivers the payloads published to a node
type Subscription interface {
	// Messages returns the bounded channel of received payloads.
	// The channel is closed once the subscription is closed.
	Messages() <-chan []byte
	// Close stops the delivery
	Close() error
}

// PubSub carries opaque payloads between nodes.
// Delivery is at-most-once; the core adds acknowledgement on top of it.
type PubSub interface {
	// Subscribe creates the subscription receiving every payload published to nodeID
	Subscribe(ctx context.Context, nodeID string) (Subscription, error)
	// Publish sends payload to the node subscribed as targetNodeID
	Publish(ctx context.Context, targetNodeID string, payload []byte) error
}

// LeaseStore holds actor leases.
type LeaseStore interface {
	// GetActorLeader returns whether the actor exists and its current unexpired leader
	GetActorLeader(ctx context.Context, actorID string) (*ActorLeader, error)
	// StartActorAndAcquireLease loads the actor record and makes nodeID the leader
	// for duration when no unexpired lease exists.
	StartActorAndAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*StartActorOutput, error)
	// ExtendLease renews the lease for duration when nodeID is the current leader
	ExtendLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*ExtendLeaseOutput, error)
	// AttemptAcquireLease makes nodeID the leader when no unexpired lease exists
	AttemptAcquireLease(ctx context.Context, actorID, nodeID string, duration time.Duration) (*AttemptAcquireLeaseOutput, error)
	// ReleaseLease clears the lease when nodeID is the current leader
	ReleaseLease(ctx context.Context, actorID, nodeID string) error
}

// ActorStore persists actor records.
type ActorStore interface {
	// CreateActor stores record. Creating an identical record twice succeeds;
	// a different record under an existing ID fails with errors.ErrActorAlreadyExists.
	CreateActor(ctx context.Context, record ActorRecord) error
}

// Store groups the persistent side of a driver
type Store interface {
	LeaseStore
	ActorStore
	Close() error
}

// Driver is the full contract used by the coordination core
type Driver interface {
	PubSub
	LeaseStore
	ActorStore
	// Close releases every resource held by the driver
	Close() error
}
