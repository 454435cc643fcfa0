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

package coordinate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/coordinate/actor"
	gerrors "github.com/tochemey/coordinate/errors"
)

type peerState int

// reasonLeaseUnavailable is sent to the clients of a follower that could not reach the lease store
const reasonLeaseUnavailable = "actor lease unavailable"

const (
	peerStarting peerState = iota
	peerFollower
	peerLeader
	peerDisposed
)

func (x peerState) String() string {
	switch x {
	case peerStarting:
		return "starting"
	case peerFollower:
		return "follower"
	case peerLeader:
		return "leader"
	case peerDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// peer is the local view of an actor on this process.
//
// A peer exists while at least one local relay connection references it.
// It is either the leader, holding the lease and the loaded actor, or a
// follower periodically trying to take the lease over.
type peer struct {
	system  *System
	actorID string

	mu           sync.Mutex
	state        peerState
	leaderNodeID string
	name         string
	key          []string
	instance     *actor.Instance
	refs         mapset.Set[string]

	// closed once start returns, startErr is set before
	ready    chan struct{}
	startErr error
	// closed on dispose, stops the heartbeat
	stop chan struct{}
	// closed and replaced on every state or leader change
	changed chan struct{}
}

func newPeer(system *System, actorID, connID string) *peer {
	refs := mapset.NewThreadUnsafeSet[string]()
	refs.Add(connID)
	return &peer{
		system:  system,
		actorID: actorID,
		state:   peerStarting,
		refs:    refs,
		ready:   make(chan struct{}),
		stop:    make(chan struct{}),
		changed: make(chan struct{}),
	}
}

// acquire returns the started peer of actorID with connID added to its references.
// Concurrent callers for the same actor share one start.
func (s *System) acquire(ctx context.Context, actorID, connID string) (*peer, error) {
	for {
		candidate := newPeer(s, actorID, connID)
		p, loaded := s.peers.LoadOrStore(actorID, candidate)
		if !loaded {
			err := p.start(ctx)
			if err != nil {
				s.peers.DeleteIf(actorID, func(current *peer) bool { return current == p })
			}
			p.markReady(err)
			if err != nil {
				return nil, err
			}
			return p, nil
		}

		select {
		case <-p.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if p.startErr != nil {
			return nil, p.startErr
		}

		if p.addReference(connID) {
			return p, nil
		}
		// the peer got disposed in between, start a fresh one
	}
}

func (p *peer) markReady(err error) {
	p.startErr = err
	close(p.ready)
}

// start loads the actor record, takes the lease when nobody holds it and
// launches the heartbeat
func (p *peer) start(ctx context.Context) error {
	s := p.system
	output, err := s.driver.StartActorAndAcquireLease(ctx, p.actorID, s.config.nodeID, s.config.leaseDuration)
	if err != nil {
		return fmt.Errorf("failed to start actor (%s): %w", p.actorID, err)
	}

	if output.Actor == nil {
		return fmt.Errorf("actor (%s): %w", p.actorID, gerrors.ErrActorNotInitialized)
	}

	p.mu.Lock()
	p.name = output.Actor.Name
	p.key = output.Actor.Key
	p.leaderNodeID = output.LeaderNodeID
	p.state = peerFollower
	p.notifyLocked()
	p.mu.Unlock()

	if output.LeaderNodeID == s.config.nodeID {
		if err := p.convertToLeader(ctx); err != nil {
			p.dispose(ctx, false)
			return err
		}
	}

	s.logger.Debugf("actor (%s) started on node (%s) as %s", p.actorID, s.config.nodeID, p.currentState())

	if _, err := p.nextDelay(); err != nil {
		p.dispose(ctx, true)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == peerDisposed {
		return fmt.Errorf("actor (%s): %w", p.actorID, gerrors.ErrPeerDisposed)
	}

	s.wg.Add(1)
	go p.heartbeat(s.ctx)
	return nil
}

// convertToLeader loads the actor locally. The caller holds the lease,
// which is released again when the actor cannot be loaded.
func (p *peer) convertToLeader(ctx context.Context) error {
	s := p.system
	p.mu.Lock()
	name, key := p.name, p.key
	p.mu.Unlock()

	factory, err := s.registry.Get(name)
	if err != nil {
		p.releaseLease(ctx)
		return err
	}

	instance := actor.NewInstance(p.actorID, name, key, factory(), s.logger)
	if err := instance.Start(ctx); err != nil {
		p.releaseLease(ctx)
		return fmt.Errorf("failed to load actor (%s): %w", p.actorID, err)
	}

	p.mu.Lock()
	if p.state == peerDisposed {
		p.mu.Unlock()
		p.stopInstance(ctx, instance)
		p.releaseLease(ctx)
		return fmt.Errorf("actor (%s): %w", p.actorID, gerrors.ErrPeerDisposed)
	}
	p.instance = instance
	p.leaderNodeID = s.config.nodeID
	p.state = peerLeader
	p.notifyLocked()
	p.mu.Unlock()

	s.metric.LeaseAcquired(ctx, p.actorID)
	s.logger.Infof("node (%s) is now the leader of actor (%s)", s.config.nodeID, p.actorID)
	return nil
}

// nextDelay returns the wait before the next heartbeat round.
// A leader renews renewLeaseGrace before expiry, a follower checks every
// checkLeaseInterval plus a random jitter.
func (p *peer) nextDelay() (time.Duration, error) {
	config := p.system.config
	if p.currentState() == peerLeader {
		delay := config.leaseDuration - config.renewLeaseGrace
		if delay <= 0 {
			return 0, fmt.Errorf("lease duration %s with renew grace %s: %w",
				config.leaseDuration, config.renewLeaseGrace, gerrors.ErrInvalidHeartbeatInterval)
		}
		return delay, nil
	}

	delay := config.checkLeaseInterval
	if delay <= 0 {
		return 0, fmt.Errorf("check lease interval %s: %w", delay, gerrors.ErrInvalidHeartbeatInterval)
	}
	if config.checkLeaseJitter > 0 {
		delay += time.Duration(rand.Int64N(int64(config.checkLeaseJitter) + 1))
	}
	return delay, nil
}

func (p *peer) heartbeat(ctx context.Context) {
	defer p.system.wg.Done()
	for {
		delay, err := p.nextDelay()
		if err != nil {
			p.system.logger.Error(err)
			p.dispose(ctx, true)
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-p.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		switch p.currentState() {
		case peerLeader:
			p.renew(ctx)
		case peerFollower:
			p.check(ctx)
		default:
			return
		}
	}
}

// renew extends the lease held by this node and disposes the peer once it is lost.
// A lease that cannot be extended counts as lost: the lease may expire while
// the store is unreachable and another node may take the actor over.
func (p *peer) renew(ctx context.Context) {
	s := p.system
	output, err := s.driver.ExtendLease(ctx, p.actorID, s.config.nodeID, s.config.leaseDuration)
	if err != nil {
		if ctx.Err() != nil {
			// the system is stopping
			return
		}
		s.logger.Warnf("node (%s) gives up actor (%s), failed to extend its lease: %v", s.config.nodeID, p.actorID, err)
		s.metric.LeaseLost(ctx, p.actorID)
		p.dispose(ctx, false)
		return
	}

	if output.LeaseValid {
		return
	}

	s.logger.Infof("node (%s) lost the lease of actor (%s)", s.config.nodeID, p.actorID)
	s.metric.LeaseLost(ctx, p.actorID)
	// someone else may hold the lease already
	p.dispose(ctx, false)
}

// check tries to take over an expired or free lease
func (p *peer) check(ctx context.Context) {
	s := p.system
	output, err := s.driver.AttemptAcquireLease(ctx, p.actorID, s.config.nodeID, s.config.leaseDuration)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warnf("node (%s) gives up actor (%s), failed to check its lease: %v", s.config.nodeID, p.actorID, err)
		p.dispose(ctx, false)
		p.disconnectRelays(ctx, reasonLeaseUnavailable)
		return
	}

	acquired := output.NewLeaderNodeID == s.config.nodeID

	p.mu.Lock()
	if p.state == peerDisposed {
		p.mu.Unlock()
		if acquired {
			p.releaseLease(ctx)
		}
		return
	}
	if p.leaderNodeID != output.NewLeaderNodeID {
		p.leaderNodeID = output.NewLeaderNodeID
		p.notifyLocked()
	}
	promote := acquired && p.state != peerLeader
	p.mu.Unlock()

	if !promote {
		return
	}

	if err := p.convertToLeader(ctx); err != nil {
		s.logger.Errorf("node (%s) failed to take over actor (%s): %v", s.config.nodeID, p.actorID, err)
		p.dispose(ctx, false)
	}
}

// disconnectRelays closes the local relay connections referencing the peer
func (p *peer) disconnectRelays(ctx context.Context, reason string) {
	p.mu.Lock()
	connIDs := p.refs.ToSlice()
	p.mu.Unlock()

	eg := new(errgroup.Group)
	for _, connID := range connIDs {
		relay, ok := p.system.relays.Get(connID)
		if !ok {
			continue
		}
		eg.Go(func() error {
			return relay.disconnect(ctx, false, reason)
		})
	}
	if err := eg.Wait(); err != nil {
		p.system.logger.Warnf("failed to disconnect the clients of actor (%s): %v", p.actorID, err)
	}
}

// addReference registers a relay connection on the peer.
// It returns false when the peer is disposed.
func (p *peer) addReference(connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == peerDisposed {
		return false
	}
	p.refs.Add(connID)
	return true
}

// removeReference drops a relay connection and disposes the peer with the last one
func (p *peer) removeReference(ctx context.Context, connID string) {
	p.mu.Lock()
	if !p.refs.Contains(connID) {
		p.mu.Unlock()
		p.system.logger.Warnf("connection (%s) does not reference actor (%s)", connID, p.actorID)
		return
	}

	p.refs.Remove(connID)
	if p.refs.Cardinality() > 0 || p.state == peerDisposed {
		p.mu.Unlock()
		return
	}

	wasLeader := p.disposeLocked()
	instance := p.instance
	p.mu.Unlock()

	p.finishDispose(ctx, wasLeader, instance, true)
}

// dispose stops the heartbeat and unloads the actor. The lease is released
// when release is set and this node led the actor. Calling dispose twice is a no-op.
func (p *peer) dispose(ctx context.Context, release bool) {
	p.mu.Lock()
	if p.state == peerDisposed {
		p.mu.Unlock()
		return
	}
	wasLeader := p.disposeLocked()
	instance := p.instance
	p.mu.Unlock()

	p.finishDispose(ctx, wasLeader, instance, release)
}

func (p *peer) disposeLocked() bool {
	wasLeader := p.state == peerLeader
	p.state = peerDisposed
	close(p.stop)
	p.notifyLocked()
	p.system.peers.DeleteIf(p.actorID, func(current *peer) bool { return current == p })
	return wasLeader
}

func (p *peer) finishDispose(ctx context.Context, wasLeader bool, instance *actor.Instance, release bool) {
	if wasLeader && instance != nil {
		p.stopInstance(ctx, instance)
		if release {
			p.releaseLease(ctx)
		}
	}
	p.system.logger.Debugf("actor (%s) disposed on node (%s)", p.actorID, p.system.config.nodeID)
}

// stopInstance unloads the actor, giving up after actorStopTimeout
func (p *peer) stopInstance(ctx context.Context, instance *actor.Instance) {
	timeout := p.system.config.actorStopTimeout
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- instance.Stop(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.system.logger.Warnf("actor (%s) did not stop cleanly: %v", p.actorID, err)
		}
	case <-ctx.Done():
		p.system.logger.Warnf("actor (%s) did not stop within %s", p.actorID, timeout)
	}
}

func (p *peer) releaseLease(ctx context.Context) {
	s := p.system
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.messageAckTimeout)
	defer cancel()
	if err := s.driver.ReleaseLease(ctx, p.actorID, s.config.nodeID); err != nil {
		s.logger.Warnf("failed to release lease of actor (%s): %v", p.actorID, err)
	}
}

func (p *peer) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// awaitLeader returns the loaded actor once the peer leads it. It waits as
// long as this node has a claim on the lease: the peer is starting or it
// won the lease and is loading the actor.
func (p *peer) awaitLeader(ctx context.Context) (*actor.Instance, bool) {
	nodeID := p.system.config.nodeID
	for {
		p.mu.Lock()
		if p.state == peerLeader && p.instance != nil {
			instance := p.instance
			p.mu.Unlock()
			return instance, true
		}
		claimed := p.state == peerStarting || (p.state == peerFollower && p.leaderNodeID == nodeID)
		changed := p.changed
		p.mu.Unlock()

		if !claimed {
			return nil, false
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (p *peer) currentState() peerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// leaderInstance returns the loaded actor when this node leads it
func (p *peer) leaderInstance() (*actor.Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != peerLeader || p.instance == nil {
		return nil, false
	}
	return p.instance, true
}

// leader returns the last known leader node
func (p *peer) leader() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leaderNodeID
}
