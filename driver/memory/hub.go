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

// Package memory provides an in-process driver. Every node of a test cluster
// obtains its own Driver from a shared Hub, which plays the role of both the
// lease store and the pub/sub bus.
package memory

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/tochemey/coordinate/driver"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

const defaultBufferSize = 1024

// Op names a lease store operation recorded by the hub
type Op string

const (
	OpGetActorLeader            Op = "GetActorLeader"
	OpStartActorAndAcquireLease Op = "StartActorAndAcquireLease"
	OpExtendLease               Op = "ExtendLease"
	OpAttemptAcquireLease       Op = "AttemptAcquireLease"
	OpReleaseLease              Op = "ReleaseLease"
)

// Call is a recorded lease store operation
type Call struct {
	Op      Op
	ActorID string
	NodeID  string
}

type lease struct {
	leader    string
	expiresAt time.Time
}

// Hub is the shared state behind every memory Driver.
type Hub struct {
	mu          sync.Mutex
	clock       func() time.Time
	bufferSize  int
	logger      log.Logger
	actors      map[string]driver.ActorRecord
	leases      map[string]*lease
	subscribers map[string]*subscription
	failExtend  map[string]bool
	leaseErrs   map[string]error
	filter      func(targetNodeID string, payload []byte) bool
	calls       []Call
}

// NewHub creates an empty Hub
func NewHub(opts ...Option) *Hub {
	hub := &Hub{
		clock:       time.Now,
		bufferSize:  defaultBufferSize,
		logger:      log.DiscardLogger,
		actors:      make(map[string]driver.ActorRecord),
		leases:      make(map[string]*lease),
		subscribers: make(map[string]*subscription),
		failExtend:  make(map[string]bool),
		leaseErrs:   make(map[string]error),
	}
	for _, opt := range opts {
		opt.Apply(hub)
	}
	return hub
}

// Driver returns a new driver handle bound to the hub.
// Closing the handle only closes the subscriptions it created.
func (h *Hub) Driver() *Driver {
	return &Driver{
		hub:           h,
		subscriptions: make(map[*subscription]struct{}),
	}
}

// FailExtend makes every ExtendLease issued by nodeID report an invalid lease
// without touching the stored lease.
func (h *Hub) FailExtend(nodeID string, fail bool) {
	h.mu.Lock()
	h.failExtend[nodeID] = fail
	h.mu.Unlock()
}

// SetLeaseError makes ExtendLease and AttemptAcquireLease issued by nodeID
// fail with err, as when the store is unreachable. A nil err clears it.
func (h *Hub) SetLeaseError(nodeID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.leaseErrs, nodeID)
		return
	}
	h.leaseErrs[nodeID] = err
}

// SetPublishFilter installs fn to decide whether a published payload is delivered.
// A nil fn delivers everything.
func (h *Hub) SetPublishFilter(fn func(targetNodeID string, payload []byte) bool) {
	h.mu.Lock()
	h.filter = fn
	h.mu.Unlock()
}

// Calls returns the recorded operations of kind op on actorID
func (h *Hub) Calls(op Op, actorID string) []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Call
	for _, call := range h.calls {
		if call.Op == op && call.ActorID == actorID {
			out = append(out, call)
		}
	}
	return out
}

// Leader returns the node holding an unexpired lease on actorID
func (h *Hub) Leader(actorID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaderLocked(actorID)
}

func (h *Hub) record(op Op, actorID, nodeID string) {
	h.calls = append(h.calls, Call{Op: op, ActorID: actorID, NodeID: nodeID})
}

func (h *Hub) leaderLocked(actorID string) string {
	l, ok := h.leases[actorID]
	if !ok || l.leader == "" || !h.clock().Before(l.expiresAt) {
		return ""
	}
	return l.leader
}

func (h *Hub) grantLocked(actorID, nodeID string, duration time.Duration) {
	h.leases[actorID] = &lease{leader: nodeID, expiresAt: h.clock().Add(duration)}
}

func (h *Hub) createActor(record driver.ActorRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.actors[record.ID]; ok {
		if existing.Equal(record) {
			return nil
		}
		return fmt.Errorf("actor (%s): %w", record.ID, gerrors.ErrActorAlreadyExists)
	}
	record.Key = append([]string(nil), record.Key...)
	h.actors[record.ID] = record
	return nil
}

func (h *Hub) getActorLeader(actorID string) *driver.ActorLeader {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(OpGetActorLeader, actorID, "")
	if _, ok := h.actors[actorID]; !ok {
		return &driver.ActorLeader{}
	}
	return &driver.ActorLeader{Exists: true, LeaderNodeID: h.leaderLocked(actorID)}
}

func (h *Hub) startActorAndAcquireLease(actorID, nodeID string, duration time.Duration) *driver.StartActorOutput {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(OpStartActorAndAcquireLease, actorID, nodeID)
	record, ok := h.actors[actorID]
	if !ok {
		return &driver.StartActorOutput{}
	}

	leader := h.leaderLocked(actorID)
	if leader == "" {
		h.grantLocked(actorID, nodeID, duration)
		leader = nodeID
	}

	record.Key = append([]string(nil), record.Key...)
	return &driver.StartActorOutput{Actor: &record, LeaderNodeID: leader}
}

func (h *Hub) extendLease(actorID, nodeID string, duration time.Duration) (*driver.ExtendLeaseOutput, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(OpExtendLease, actorID, nodeID)
	if err := h.leaseErrs[nodeID]; err != nil {
		return nil, err
	}

	if h.failExtend[nodeID] {
		return &driver.ExtendLeaseOutput{}, nil
	}

	l, ok := h.leases[actorID]
	if !ok || l.leader != nodeID {
		return &driver.ExtendLeaseOutput{}, nil
	}
	h.grantLocked(actorID, nodeID, duration)
	return &driver.ExtendLeaseOutput{LeaseValid: true}, nil
}

func (h *Hub) attemptAcquireLease(actorID, nodeID string, duration time.Duration) (*driver.AttemptAcquireLeaseOutput, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(OpAttemptAcquireLease, actorID, nodeID)
	if err := h.leaseErrs[nodeID]; err != nil {
		return nil, err
	}

	if _, ok := h.actors[actorID]; !ok {
		return &driver.AttemptAcquireLeaseOutput{}, nil
	}

	leader := h.leaderLocked(actorID)
	if leader == "" {
		h.grantLocked(actorID, nodeID, duration)
		leader = nodeID
	}
	return &driver.AttemptAcquireLeaseOutput{NewLeaderNodeID: leader}, nil
}

func (h *Hub) releaseLease(actorID, nodeID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(OpReleaseLease, actorID, nodeID)
	if l, ok := h.leases[actorID]; ok && l.leader == nodeID {
		delete(h.leases, actorID)
	}
}

func (h *Hub) subscribe(owner *Driver, nodeID string) (*subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[nodeID]; ok {
		return nil, fmt.Errorf("node (%s) is already subscribed", nodeID)
	}

	sub := &subscription{
		hub:    h,
		owner:  owner,
		nodeID: nodeID,
		ch:     make(chan []byte, h.bufferSize),
	}
	h.subscribers[nodeID] = sub
	return sub, nil
}

func (h *Hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.subscribers[sub.nodeID]; ok && current == sub {
		delete(h.subscribers, sub.nodeID)
	}
	close(sub.ch)
}

// publish never blocks: payloads to unknown nodes or full channels are dropped
func (h *Hub) publish(targetNodeID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.filter != nil && !h.filter(targetNodeID, payload) {
		return
	}

	sub, ok := h.subscribers[targetNodeID]
	if !ok {
		h.logger.Debugf("no subscriber for node (%s), payload dropped", targetNodeID)
		return
	}

	select {
	case sub.ch <- bytes.Clone(payload):
	default:
		h.logger.Warnf("subscription of node (%s) is full, payload dropped", targetNodeID)
	}
}
