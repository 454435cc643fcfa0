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
	"errors"

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/driver"
	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/internal/envelope"
	"github.com/tochemey/coordinate/internal/xsync"
)

// node drains the subscription of this process and routes every envelope.
//
// The dispatch loop only decodes, acks and resolves acks. Every other body
// runs on a lane: envelopes bound to the leader of an actor share the lane
// of that actor and envelopes bound to a relay connection share the lane of
// that connection, so each keeps its arrival order without holding the loop.
type node struct {
	system *System
	sub    driver.Subscription
	lanes  *xsync.Lanes
	done   chan struct{}
}

func newNode(system *System, sub driver.Subscription) *node {
	return &node{
		system: system,
		sub:    sub,
		lanes:  xsync.NewLanes(),
		done:   make(chan struct{}),
	}
}

func (n *node) run() {
	defer close(n.done)
	for payload := range n.sub.Messages() {
		n.handle(n.system.ctx, payload)
	}
}

// stop closes the subscription and waits for the dispatch loop and the lanes to exit
func (n *node) stop() error {
	err := n.sub.Close()
	<-n.done
	n.lanes.Wait()
	return err
}

func (n *node) handle(ctx context.Context, payload []byte) {
	logger := n.system.logger
	env, err := envelope.Decode(payload)
	if err != nil {
		if gerrors.IsProtocolError(err) {
			logger.Errorf("node (%s) dropped an envelope: %v", n.system.NodeID(), err)
			return
		}
		logger.Warnf("node (%s) dropped an envelope: %v", n.system.NodeID(), err)
		return
	}

	// the ack only says the node received the envelope
	if env.RequestsAck() {
		n.publish(ctx, env.SenderNodeID, envelope.NewAck(env.MessageID))
	}

	body := env.Body
	switch body.Kind() {
	case envelope.KindAck:
		if !n.system.acks.Resolve(body.Ack.MessageID) {
			logger.Debugf("no pending ack for message (%s)", body.Ack.MessageID)
		}
	case envelope.KindUnknown:
		logger.Warnf("node (%s) dropped an envelope without body", n.system.NodeID())
	default:
		sender := env.SenderNodeID
		n.lanes.Go(laneKey(body), func() {
			n.process(ctx, sender, body)
		})
	}
}

// laneKey names the lane a body runs on
func laneKey(body envelope.Body) string {
	switch body.Kind() {
	case envelope.KindLeaderConnectionOpen:
		return "actor/" + body.LeaderConnectionOpen.ActorID
	case envelope.KindLeaderConnectionClose:
		return "actor/" + body.LeaderConnectionClose.ActorID
	case envelope.KindLeaderMessage:
		return "actor/" + body.LeaderMessage.ActorID
	case envelope.KindFollowerConnectionClose:
		return "conn/" + body.FollowerConnectionClose.ConnID
	case envelope.KindFollowerMessage:
		return "conn/" + body.FollowerMessage.ConnID
	default:
		return ""
	}
}

func (n *node) process(ctx context.Context, sender string, body envelope.Body) {
	logger := n.system.logger
	switch body.Kind() {
	case envelope.KindLeaderConnectionOpen:
		n.handleConnectionOpen(ctx, sender, body.LeaderConnectionOpen)
	case envelope.KindLeaderConnectionClose:
		n.handleConnectionClose(ctx, body.LeaderConnectionClose)
	case envelope.KindLeaderMessage:
		n.handleLeaderMessage(ctx, body.LeaderMessage)
	case envelope.KindFollowerConnectionClose:
		msg := body.FollowerConnectionClose
		relay, ok := n.system.relays.Get(msg.ConnID)
		if !ok {
			logger.Debugf("no relay connection (%s) to close", msg.ConnID)
			return
		}
		if err := relay.disconnect(ctx, true, msg.Reason); err != nil {
			logger.Warnf("failed to close relay connection (%s): %v", msg.ConnID, err)
		}
	case envelope.KindFollowerMessage:
		msg := body.FollowerMessage
		relay, ok := n.system.relays.Get(msg.ConnID)
		if !ok {
			logger.Debugf("no relay connection (%s) for message", msg.ConnID)
			return
		}
		if err := relay.OnMessage(ctx, msg.Payload); err != nil {
			logger.Warnf("failed to deliver message to relay connection (%s): %v", msg.ConnID, err)
		}
	}
}

func (n *node) handleConnectionOpen(ctx context.Context, requester string, msg *envelope.LeaderConnectionOpen) {
	logger := n.system.logger
	if requester == "" {
		logger.Warnf("dropping %s without requesting node", msg)
		return
	}

	// the open may overtake the local start or promotion of the actor
	instance, ok := n.awaitLeader(ctx, msg.ActorID)
	if !ok {
		logger.Warnf("node (%s) is not the leader, dropping %s", n.system.NodeID(), msg)
		n.publish(ctx, requester, &envelope.Envelope{Body: envelope.Body{
			FollowerConnectionClose: &envelope.FollowerConnectionClose{ConnID: msg.ConnID, Reason: "actor leader moved"},
		}})
		return
	}

	if conn, exists := instance.Connection(msg.ConnID); exists {
		if !conn.MatchToken(msg.ConnToken) {
			logger.Error(gerrors.NewProtocolError(gerrors.ErrConnTokenMismatch))
			return
		}
		logger.Debugf("connection (%s) is already open", msg.ConnID)
		return
	}

	relayDriver := newRelayConnDriver(n.system, requester)
	if err := instance.PrepareConnection(ctx, msg.Params); err != nil {
		logger.Warnf("actor (%s) refused connection (%s): %v", msg.ActorID, msg.ConnID, err)
		if derr := relayDriver.Disconnect(ctx, msg.ConnID, err.Error()); derr != nil {
			logger.Warnf("failed to close connection (%s): %v", msg.ConnID, derr)
		}
		return
	}

	if _, err := instance.CreateConnection(ctx, msg.ConnID, msg.ConnToken, relayDriver); err != nil {
		if gerrors.IsProtocolError(err) {
			logger.Error(err)
			return
		}
		logger.Warnf("actor (%s) failed to create connection (%s): %v", msg.ActorID, msg.ConnID, err)
	}
}

func (n *node) handleConnectionClose(ctx context.Context, msg *envelope.LeaderConnectionClose) {
	logger := n.system.logger
	instance, ok := n.leaderInstance(msg.ActorID)
	if !ok {
		logger.Warnf("node (%s) is not the leader of actor (%s), connection (%s) not closed", n.system.NodeID(), msg.ActorID, msg.ConnID)
		return
	}

	if err := instance.RemoveConnection(ctx, msg.ConnID); err != nil {
		logger.Warnf("failed to remove connection (%s) of actor (%s): %v", msg.ConnID, msg.ActorID, err)
	}
}

func (n *node) handleLeaderMessage(ctx context.Context, msg *envelope.LeaderMessage) {
	logger := n.system.logger
	instance, ok := n.leaderInstance(msg.ActorID)
	if !ok {
		logger.Warnf("node (%s) is not the leader, dropping %s", n.system.NodeID(), msg)
		return
	}

	err := instance.ProcessMessage(ctx, msg.ConnID, msg.ConnToken, msg.Payload)
	switch {
	case err == nil:
	case gerrors.IsProtocolError(err):
		logger.Errorf("rejected %s: %v", msg, err)
	case errors.Is(err, gerrors.ErrConnectionNotFound):
		logger.Warnf("dropping %s: %v", msg, err)
	default:
		logger.Errorf("actor (%s) failed to process message on connection (%s): %v", msg.ActorID, msg.ConnID, err)
	}
}

func (n *node) leaderInstance(actorID string) (*actor.Instance, bool) {
	p, ok := n.system.peers.Get(actorID)
	if !ok {
		return nil, false
	}
	return p.leaderInstance()
}

// awaitLeader returns the loaded actor once this node leads actorID. It waits
// while the local peer still has a claim on the lease, at most one lease duration.
func (n *node) awaitLeader(ctx context.Context, actorID string) (*actor.Instance, bool) {
	p, ok := n.system.peers.Get(actorID)
	if !ok {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, n.system.config.leaseDuration)
	defer cancel()
	return p.awaitLeader(ctx)
}

// publish sends env to nodeID without waiting for an ack
func (n *node) publish(ctx context.Context, nodeID string, env *envelope.Envelope) {
	if err := n.system.publishToNode(ctx, nodeID, env); err != nil {
		n.system.logger.Warnf("failed to publish %s to node (%s): %v", env.Body.Kind(), nodeID, err)
	}
}
