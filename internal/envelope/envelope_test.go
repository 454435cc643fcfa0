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

package envelope

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/coordinate/errors"
)

func TestEnvelope(t *testing.T) {
	t.Run("With leader message", func(t *testing.T) {
		in := &Envelope{
			SenderNodeID: "node-a",
			MessageID:    "msg-1",
			Body: Body{LeaderMessage: &LeaderMessage{
				ActorID:   "room-1",
				ConnID:    "conn-1",
				ConnToken: "secret",
				Payload:   []byte("hello"),
			}},
		}

		bytea, err := Encode(in)
		require.NoError(t, err)

		out, err := Decode(bytea)
		require.NoError(t, err)
		assert.Equal(t, KindLeaderMessage, out.Body.Kind())
		assert.True(t, out.RequestsAck())
		assert.Equal(t, in.Body.LeaderMessage, out.Body.LeaderMessage)
	})
	t.Run("With ack", func(t *testing.T) {
		bytea, err := Encode(NewAck("msg-1"))
		require.NoError(t, err)
		out, err := Decode(bytea)
		require.NoError(t, err)
		assert.Equal(t, KindAck, out.Body.Kind())
		assert.False(t, out.RequestsAck())
		assert.Equal(t, "msg-1", out.Body.Ack.MessageID)
	})
	t.Run("With ack requesting an ack", func(t *testing.T) {
		x := NewAck("msg-1")
		x.SenderNodeID = "node-a"
		x.MessageID = "msg-2"
		_, err := Encode(x)
		require.ErrorIs(t, err, gerrors.ErrAckRequested)
		assert.True(t, gerrors.IsProtocolError(err))
	})
	t.Run("With empty body", func(t *testing.T) {
		_, err := Encode(&Envelope{})
		require.ErrorIs(t, err, gerrors.ErrInvalidEnvelope)
	})
	t.Run("With two variants", func(t *testing.T) {
		x := &Envelope{Body: Body{
			FollowerMessage:         &FollowerMessage{ConnID: "c"},
			FollowerConnectionClose: &FollowerConnectionClose{ConnID: "c"},
		}}
		assert.Equal(t, KindUnknown, x.Body.Kind())
		require.ErrorIs(t, x.Validate(), gerrors.ErrInvalidEnvelope)
	})
	t.Run("With sender but no message id", func(t *testing.T) {
		x := &Envelope{SenderNodeID: "node-a", Body: Body{FollowerMessage: &FollowerMessage{ConnID: "c"}}}
		require.ErrorIs(t, x.Validate(), gerrors.ErrInvalidEnvelope)
	})
	t.Run("With garbage bytes", func(t *testing.T) {
		_, err := Decode([]byte{0xc1, 0x00})
		require.ErrorIs(t, err, gerrors.ErrInvalidEnvelope)
	})
	t.Run("With token never printed", func(t *testing.T) {
		open := LeaderConnectionOpen{ActorID: "a", ConnID: "c", ConnToken: "secret"}
		msg := LeaderMessage{ActorID: "a", ConnID: "c", ConnToken: "secret"}
		assert.NotContains(t, fmt.Sprint(open), "secret")
		assert.NotContains(t, fmt.Sprint(msg), "secret")
	})
}
