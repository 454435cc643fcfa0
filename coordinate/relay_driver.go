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

	"github.com/tochemey/coordinate/actor"
	"github.com/tochemey/coordinate/internal/envelope"
)

// relayConnDriver carries the traffic of a leader-side connection back to
// the node holding the RelayConnection. Nothing sent here waits for an ack.
type relayConnDriver struct {
	system *System
	nodeID string
}

// enforce compilation error
var _ actor.ConnDriver = (*relayConnDriver)(nil)

func newRelayConnDriver(system *System, nodeID string) *relayConnDriver {
	return &relayConnDriver{
		system: system,
		nodeID: nodeID,
	}
}

// SendMessage publishes a FollowerMessage to the relay node
func (d *relayConnDriver) SendMessage(ctx context.Context, connID string, payload []byte) error {
	return d.system.publishToNode(ctx, d.nodeID, &envelope.Envelope{Body: envelope.Body{
		FollowerMessage: &envelope.FollowerMessage{ConnID: connID, Payload: payload},
	}})
}

// Disconnect publishes a FollowerConnectionClose to the relay node
func (d *relayConnDriver) Disconnect(ctx context.Context, connID, reason string) error {
	return d.system.publishToNode(ctx, d.nodeID, &envelope.Envelope{Body: envelope.Body{
		FollowerConnectionClose: &envelope.FollowerConnectionClose{ConnID: connID, Reason: reason},
	}})
}
