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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/atomic"

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/driver/memory"
	"github.com/tochemey/coordinate/internal/envelope"
)

// published records the envelopes published to one node
type published struct {
	mu    sync.Mutex
	kinds []envelope.Kind
}

func (p *published) filter(nodeID string) func(string, []byte) bool {
	return func(target string, payload []byte) bool {
		if target != nodeID {
			return true
		}
		env, err := envelope.Decode(payload)
		if err == nil {
			p.mu.Lock()
			p.kinds = append(p.kinds, env.Body.Kind())
			p.mu.Unlock()
		}
		return true
	}
}

func (p *published) list() []envelope.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]envelope.Kind(nil), p.kinds...)
}

func TestNode(t *testing.T) {
	setup := func(t *testing.T) (*System, *memory.Hub, *tracker, *RelayConnection, *recordingSink) {
		ctx := context.Background()
		x := newTracker()
		hub := memory.NewHub()
		system := startSystem(t, hub, newTestRegistry(t, x), "node-a")
		actorID, err := system.CreateActor(ctx, testActorName, nil)
		require.NoError(t, err)
		sink := new(recordingSink)
		relay, err := system.Connect(ctx, actorID, nil, sink)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			_, ok := sink.initFrame()
			return ok
		}, waitFor, tick)
		return system, hub, x, relay, sink
	}

	t.Run("With connection token mismatch", func(t *testing.T) {
		system, _, x, relay, _ := setup(t)
		payload, err := envelope.Encode(&envelope.Envelope{
			SenderNodeID: "node-x",
			MessageID:    "msg-1",
			Body: envelope.Body{LeaderMessage: &envelope.LeaderMessage{
				ActorID:   relay.ActorID(),
				ConnID:    relay.ID(),
				ConnToken: "forged",
				Payload:   []byte("intruder"),
			}},
		})
		require.NoError(t, err)

		system.node.handle(context.Background(), payload)
		assert.Never(t, func() bool { return x.received.Load() > 0 }, 200*time.Millisecond, tick)
		assert.False(t, relay.IsDisconnected())
	})
	t.Run("With duplicate connection open", func(t *testing.T) {
		system, _, _, relay, sink := setup(t)
		payload, err := envelope.Encode(&envelope.Envelope{
			SenderNodeID: system.NodeID(),
			MessageID:    "msg-1",
			Body: envelope.Body{LeaderConnectionOpen: &envelope.LeaderConnectionOpen{
				ActorID:   relay.ActorID(),
				ConnID:    relay.ID(),
				ConnToken: relay.token,
			}},
		})
		require.NoError(t, err)

		system.node.handle(context.Background(), payload)
		instance, ok := system.LocalActor(relay.ActorID())
		require.True(t, ok)
		assert.Never(t, func() bool {
			return len(instance.Connections()) != 1 || len(sink.messages()) != 1
		}, 200*time.Millisecond, tick)
	})
	t.Run("With ack requesting an ack", func(t *testing.T) {
		system, hub, _, _, _ := setup(t)
		recorder := new(published)
		hub.SetPublishFilter(recorder.filter("node-x"))
		t.Cleanup(func() { hub.SetPublishFilter(nil) })

		// built by hand since Encode refuses it
		payload, err := msgpack.Marshal(&envelope.Envelope{
			SenderNodeID: "node-x",
			MessageID:    "msg-1",
			Body:         envelope.Body{Ack: &envelope.Ack{MessageID: "msg-0"}},
		})
		require.NoError(t, err)

		system.node.handle(context.Background(), payload)
		assert.Empty(t, recorder.list())
	})
	t.Run("With garbage payload", func(t *testing.T) {
		system, _, _, relay, _ := setup(t)
		system.node.handle(context.Background(), []byte{0xc1, 0x00, 0x01})
		assert.False(t, relay.IsDisconnected())
	})
	t.Run("With connection open on a non leader", func(t *testing.T) {
		system, hub, _, _, _ := setup(t)
		recorder := new(published)
		hub.SetPublishFilter(recorder.filter("node-x"))
		t.Cleanup(func() { hub.SetPublishFilter(nil) })

		payload, err := envelope.Encode(&envelope.Envelope{
			SenderNodeID: "node-x",
			MessageID:    "msg-1",
			Body: envelope.Body{LeaderConnectionOpen: &envelope.LeaderConnectionOpen{
				ActorID:   "elsewhere",
				ConnID:    "conn-x",
				ConnToken: "token",
			}},
		})
		require.NoError(t, err)

		system.node.handle(context.Background(), payload)
		require.Eventually(t, func() bool { return len(recorder.list()) == 2 }, waitFor, tick)
		assert.Equal(t, []envelope.Kind{envelope.KindAck, envelope.KindFollowerConnectionClose}, recorder.list())
	})
	t.Run("With an actor blocked in Receive", func(t *testing.T) {
		ctx := context.Background()
		x := newTracker()
		registry := newTestRegistry(t, x)
		release := make(chan struct{})
		blocked := atomic.NewInt32(0)
		require.NoError(t, registry.Register("blocking", func() actor.Actor {
			return &blockingActor{release: release, received: blocked}
		}))
		system := startSystem(t, memory.NewHub(), registry, "node-a")
		t.Cleanup(func() { close(release) })

		blockingID, err := system.CreateActor(ctx, "blocking", nil)
		require.NoError(t, err)
		blockingRelay, err := system.Connect(ctx, blockingID, nil, new(recordingSink))
		require.NoError(t, err)

		chatID, err := system.CreateActor(ctx, testActorName, nil)
		require.NoError(t, err)
		sink := new(recordingSink)
		chatRelay, err := system.Connect(ctx, chatID, nil, sink)
		require.NoError(t, err)

		require.NoError(t, blockingRelay.Send(ctx, []byte("hold")))
		require.Eventually(t, func() bool { return blocked.Load() == 1 }, waitFor, tick)

		// acks keep flowing while the other actor holds its lane
		start := time.Now()
		require.NoError(t, chatRelay.Send(ctx, []byte("ping")))
		assert.Less(t, time.Since(start), system.config.messageAckTimeout)
		require.Eventually(t, func() bool { return sink.received("ping") }, waitFor, tick)
		assert.Never(t, func() bool { return x.received.Load() > 1 }, 200*time.Millisecond, tick)
		assert.EqualValues(t, 1, x.received.Load())
		// later messages of the blocked actor are acked, not processed
		require.NoError(t, blockingRelay.Send(ctx, []byte("queued")))
		assert.EqualValues(t, 1, blocked.Load())
	})
	t.Run("With connection open while the leader loads the actor", func(t *testing.T) {
		ctx := context.Background()
		x := newTracker()
		x.startDelay.Store(300 * time.Millisecond)
		hub := memory.NewHub()
		// the lease outlives the slow load
		opts := []Option{WithLeaseDuration(2 * time.Second), WithRenewLeaseGrace(time.Second)}
		nodeA := startSystem(t, hub, newTestRegistry(t, x), "node-a", opts...)
		nodeB := startSystem(t, hub, newTestRegistry(t, x), "node-b", opts...)

		actorID, err := nodeA.CreateActor(ctx, testActorName, nil)
		require.NoError(t, err)

		connected := make(chan error, 1)
		go func() {
			_, err := nodeA.Connect(ctx, actorID, nil, new(recordingSink))
			connected <- err
		}()
		require.Eventually(t, func() bool { return hub.Leader(actorID) == "node-a" }, waitFor, tick)

		sink := new(recordingSink)
		relay, err := nodeB.Connect(ctx, actorID, nil, sink)
		require.NoError(t, err)
		require.NoError(t, <-connected)

		require.Eventually(t, func() bool {
			connID, ok := sink.initFrame()
			return ok && connID == relay.ID()
		}, waitFor, tick)
		assert.Empty(t, sink.disconnectReasons())
		assert.False(t, relay.IsDisconnected())

		require.NoError(t, relay.Send(ctx, []byte("ping")))
		require.Eventually(t, func() bool { return sink.received("ping") }, waitFor, tick)
		assert.EqualValues(t, 1, x.started.Load())
	})
	t.Run("With connection open after the lease went elsewhere", func(t *testing.T) {
		ctx := context.Background()
		hub := memory.NewHub()
		nodeA := startSystem(t, hub, newTestRegistry(t, newTracker()), "node-a")
		nodeB := startSystem(t, hub, newTestRegistry(t, newTracker()), "node-b")
		recorder := new(published)
		hub.SetPublishFilter(recorder.filter("node-x"))
		t.Cleanup(func() { hub.SetPublishFilter(nil) })

		actorID, err := nodeA.CreateActor(ctx, testActorName, nil)
		require.NoError(t, err)
		_, err = nodeA.Connect(ctx, actorID, nil, new(recordingSink))
		require.NoError(t, err)
		_, err = nodeB.Connect(ctx, actorID, nil, new(recordingSink))
		require.NoError(t, err)

		// node-b follows node-a and has no claim on the lease
		payload, err := envelope.Encode(&envelope.Envelope{
			SenderNodeID: "node-x",
			MessageID:    "msg-1",
			Body: envelope.Body{LeaderConnectionOpen: &envelope.LeaderConnectionOpen{
				ActorID:   actorID,
				ConnID:    "conn-x",
				ConnToken: "token",
			}},
		})
		require.NoError(t, err)

		start := time.Now()
		nodeB.node.handle(ctx, payload)
		require.Eventually(t, func() bool { return len(recorder.list()) == 2 }, waitFor, tick)
		assert.Less(t, time.Since(start), testLeaseDuration)
		assert.Equal(t, []envelope.Kind{envelope.KindAck, envelope.KindFollowerConnectionClose}, recorder.list())
	})
	t.Run("With stray ack", func(t *testing.T) {
		system, _, _, _, _ := setup(t)
		payload, err := envelope.Encode(envelope.NewAck("unknown"))
		require.NoError(t, err)
		system.node.handle(context.Background(), payload)
		assert.Zero(t, system.acks.Len())
	})
}
