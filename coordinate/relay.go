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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/envelope"
)

// tokenSize is the number of random bytes in a connection token
const tokenSize = 32

// RelayConnection is a client connection attached to this process.
// It forwards client payloads to the leader of the actor and hands the
// actor traffic coming back to its Sink.
type RelayConnection struct {
	system  *System
	id      string
	token   string
	actorID string
	params  []byte
	sink    Sink

	// guards peer and the registration in the relay table
	mu   sync.Mutex
	peer *peer

	// canceled on disconnect, aborts pending publishes
	ctx    context.Context
	cancel context.CancelFunc

	disconnected *atomic.Bool
}

func newRelayConnection(system *System, actorID string, params []byte, sink Sink) *RelayConnection {
	ctx, cancel := context.WithCancel(system.ctx)
	return &RelayConnection{
		system:       system,
		id:           uuid.NewString(),
		token:        newConnToken(),
		actorID:      actorID,
		params:       params,
		sink:         sink,
		ctx:          ctx,
		cancel:       cancel,
		disconnected: atomic.NewBool(false),
	}
}

// ID returns the connection ID
func (r *RelayConnection) ID() string {
	return r.id
}

// ActorID returns the ID of the actor the connection is opened on
func (r *RelayConnection) ActorID() string {
	return r.actorID
}

// IsDisconnected reports whether the connection is closed
func (r *RelayConnection) IsDisconnected() bool {
	return r.disconnected.Load()
}

// Start attaches the connection to the actor peer and asks the leader to open it.
// On failure the sink is disconnected with the error as reason.
// Starting a disconnected connection returns ErrConnectionClosed.
func (r *RelayConnection) Start(ctx context.Context) error {
	if r.disconnected.Load() {
		return gerrors.ErrConnectionClosed
	}

	p, err := r.system.acquire(ctx, r.actorID, r.id)
	if err != nil {
		if r.disconnected.CompareAndSwap(false, true) {
			r.cancel()
			if derr := r.sink.Disconnect(ctx, err.Error()); derr != nil {
				r.system.logger.Warnf("failed to disconnect client of connection (%s): %v", r.id, derr)
			}
		}
		return err
	}

	r.mu.Lock()
	// disconnect flips the flag before reading peer under mu
	if r.disconnected.Load() {
		r.mu.Unlock()
		p.removeReference(ctx, r.id)
		return gerrors.ErrConnectionClosed
	}
	r.peer = p
	r.system.relays.Set(r.id, r)
	r.mu.Unlock()

	err = r.publish(ctx, envelope.Body{LeaderConnectionOpen: &envelope.LeaderConnectionOpen{
		ActorID:   r.actorID,
		ConnID:    r.id,
		ConnToken: r.token,
		Params:    r.params,
	}})
	if err != nil {
		if r.disconnected.Load() {
			return gerrors.ErrConnectionClosed
		}
		_ = r.disconnect(ctx, false, err.Error())
		return fmt.Errorf("failed to open connection (%s) on actor (%s): %w", r.id, r.actorID, err)
	}
	return nil
}

// Send forwards a client payload to the actor leader and waits for the leader ack
func (r *RelayConnection) Send(ctx context.Context, payload []byte) error {
	if r.disconnected.Load() {
		return gerrors.ErrConnectionClosed
	}

	return r.publish(ctx, envelope.Body{LeaderMessage: &envelope.LeaderMessage{
		ActorID:   r.actorID,
		ConnID:    r.id,
		ConnToken: r.token,
		Payload:   payload,
	}})
}

// OnMessage hands a payload produced by the actor to the sink
func (r *RelayConnection) OnMessage(ctx context.Context, payload []byte) error {
	if r.disconnected.Load() {
		return gerrors.ErrConnectionClosed
	}
	return r.sink.Send(ctx, payload)
}

// Disconnect closes the connection from the client side and tells the leader
func (r *RelayConnection) Disconnect(ctx context.Context, reason string) error {
	return r.disconnect(ctx, false, reason)
}

// disconnect tears the connection down once. fromLeader is set when the
// leader closed it, in which case the leader is not told again.
func (r *RelayConnection) disconnect(ctx context.Context, fromLeader bool, reason string) error {
	if !r.disconnected.CompareAndSwap(false, true) {
		return nil
	}
	r.cancel()

	err := r.sink.Disconnect(ctx, reason)

	r.mu.Lock()
	p := r.peer
	r.system.relays.DeleteIf(r.id, func(current *RelayConnection) bool { return current == r })
	r.mu.Unlock()

	if p == nil {
		return err
	}

	if !fromLeader && p.leader() != "" {
		perr := r.system.publishToLeader(ctx, r.actorID, envelope.Body{LeaderConnectionClose: &envelope.LeaderConnectionClose{
			ActorID: r.actorID,
			ConnID:  r.id,
		}})
		if perr != nil {
			r.system.logger.Warnf("failed to close connection (%s) on the leader of actor (%s): %v", r.id, r.actorID, perr)
		}
	}

	p.removeReference(ctx, r.id)
	return err
}

// publish sends body to the leader, giving up when either ctx or the
// connection is done
func (r *RelayConnection) publish(ctx context.Context, body envelope.Body) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	return r.system.publishToLeader(ctx, r.actorID, body)
}

func newConnToken() string {
	bytea := make([]byte, tokenSize)
	// crypto/rand.Read never returns an error
	_, _ = rand.Read(bytea)
	return hex.EncodeToString(bytea)
}
