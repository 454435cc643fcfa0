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

// Package envelope defines the messages exchanged between nodes over the
// pub/sub bus and their wire encoding.
package envelope

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	gerrors "github.com/tochemey/coordinate/errors"
)

// Kind names the variant carried by a Body
type Kind string

const (
	KindUnknown                 Kind = "unknown"
	KindAck                     Kind = "ack"
	KindLeaderConnectionOpen    Kind = "leaderConnectionOpen"
	KindLeaderConnectionClose   Kind = "leaderConnectionClose"
	KindLeaderMessage           Kind = "leaderMessage"
	KindFollowerConnectionClose Kind = "followerConnectionClose"
	KindFollowerMessage         Kind = "followerMessage"
)

// Envelope is the unit published to a node subscription.
//
// SenderNodeID and MessageID are set together when the sender waits for an
// ack. The recipient is implied by the subscription the envelope is delivered to.
type Envelope struct {
	SenderNodeID string `msgpack:"s,omitempty"`
	MessageID    string `msgpack:"i,omitempty"`
	Body         Body   `msgpack:"b"`
}

// Body is a tagged union: exactly one field is set.
type Body struct {
	Ack                     *Ack                     `msgpack:"a,omitempty"`
	LeaderConnectionOpen    *LeaderConnectionOpen    `msgpack:"lco,omitempty"`
	LeaderConnectionClose   *LeaderConnectionClose   `msgpack:"lcc,omitempty"`
	LeaderMessage           *LeaderMessage           `msgpack:"lm,omitempty"`
	FollowerConnectionClose *FollowerConnectionClose `msgpack:"fcc,omitempty"`
	FollowerMessage         *FollowerMessage         `msgpack:"fm,omitempty"`
}

// Ack confirms that the envelope with MessageID reached the node.
type Ack struct {
	MessageID string `msgpack:"i"`
}

// LeaderConnectionOpen asks the leader to open a connection on the actor.
type LeaderConnectionOpen struct {
	ActorID   string `msgpack:"ai"`
	ConnID    string `msgpack:"ci"`
	ConnToken string `msgpack:"ct"`
	Params    []byte `msgpack:"p,omitempty"`
}

// String never prints the connection token
func (x LeaderConnectionOpen) String() string {
	return fmt.Sprintf("LeaderConnectionOpen[actor=%s, conn=%s]", x.ActorID, x.ConnID)
}

// LeaderConnectionClose asks the leader to drop a connection.
type LeaderConnectionClose struct {
	ActorID string `msgpack:"ai"`
	ConnID  string `msgpack:"ci"`
}

// LeaderMessage carries a client payload to the leader.
type LeaderMessage struct {
	ActorID   string `msgpack:"ai"`
	ConnID    string `msgpack:"ci"`
	ConnToken string `msgpack:"ct"`
	Payload   []byte `msgpack:"m"`
}

// String never prints the connection token
func (x LeaderMessage) String() string {
	return fmt.Sprintf("LeaderMessage[actor=%s, conn=%s, size=%d]", x.ActorID, x.ConnID, len(x.Payload))
}

// FollowerConnectionClose tells the follower the leader closed a connection.
type FollowerConnectionClose struct {
	ConnID string `msgpack:"ci"`
	Reason string `msgpack:"r,omitempty"`
}

// FollowerMessage carries an actor payload back to the follower.
type FollowerMessage struct {
	ConnID  string `msgpack:"ci"`
	Payload []byte `msgpack:"m"`
}

// Kind returns the variant set on the body.
// Bodies with zero or several variants report KindUnknown.
func (b Body) Kind() Kind {
	kind := KindUnknown
	count := 0
	if b.Ack != nil {
		kind, count = KindAck, count+1
	}
	if b.LeaderConnectionOpen != nil {
		kind, count = KindLeaderConnectionOpen, count+1
	}
	if b.LeaderConnectionClose != nil {
		kind, count = KindLeaderConnectionClose, count+1
	}
	if b.LeaderMessage != nil {
		kind, count = KindLeaderMessage, count+1
	}
	if b.FollowerConnectionClose != nil {
		kind, count = KindFollowerConnectionClose, count+1
	}
	if b.FollowerMessage != nil {
		kind, count = KindFollowerMessage, count+1
	}
	if count != 1 {
		return KindUnknown
	}
	return kind
}

// RequestsAck reports whether the sender waits for an acknowledgement
func (x *Envelope) RequestsAck() bool {
	return x.SenderNodeID != "" && x.MessageID != ""
}

// Validate checks the union and the ack invariant.
// An ack envelope asking for its own ack is a ProtocolError.
func (x *Envelope) Validate() error {
	kind := x.Body.Kind()
	if kind == KindUnknown {
		return fmt.Errorf("%w: body must carry exactly one message", gerrors.ErrInvalidEnvelope)
	}

	if kind == KindAck && x.MessageID != "" {
		return gerrors.NewProtocolError(gerrors.ErrAckRequested)
	}

	if (x.SenderNodeID == "") != (x.MessageID == "") {
		return fmt.Errorf("%w: sender node and message id must be set together", gerrors.ErrInvalidEnvelope)
	}
	return nil
}

// Encode validates and serializes the envelope
func Encode(x *Envelope) ([]byte, error) {
	if err := x.Validate(); err != nil {
		return nil, err
	}
	return msgpack.Marshal(x)
}

// Decode deserializes and validates an envelope
func Decode(data []byte) (*Envelope, error) {
	x := new(Envelope)
	if err := msgpack.Unmarshal(data, x); err != nil {
		return nil, fmt.Errorf("%w: %w", gerrors.ErrInvalidEnvelope, err)
	}
	if err := x.Validate(); err != nil {
		return nil, err
	}
	return x, nil
}

// NewAck builds the acknowledgement for messageID
func NewAck(messageID string) *Envelope {
	return &Envelope{Body: Body{Ack: &Ack{MessageID: messageID}}}
}
