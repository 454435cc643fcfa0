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

package actor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gerrors "github.com/tochemey/coordinate/errors"
	"github.com/tochemey/coordinate/log"
)

func newStartedInstance(t *testing.T, actor *echoActor) *Instance {
	t.Helper()
	instance := NewInstance("room-1", "room", []string{"lobby"}, actor, log.DiscardLogger)
	require.NoError(t, instance.Start(context.Background()))
	return instance
}

func TestInstance(t *testing.T) {
	ctx := context.Background()

	t.Run("With lifecycle", func(t *testing.T) {
		actor := new(echoActor)
		instance := newStartedInstance(t, actor)
		require.NoError(t, instance.Start(ctx))
		assert.Equal(t, 1, actor.started)
		assert.True(t, instance.IsRunning())
		assert.Equal(t, "room-1", actor.actx.ActorID())
		assert.Equal(t, "room", actor.actx.Name())
		assert.Equal(t, []string{"lobby"}, actor.actx.Key())

		driver := newRecordingDriver()
		_, err := instance.CreateConnection(ctx, "c1", "t1", driver)
		require.NoError(t, err)

		require.NoError(t, instance.Stop(ctx))
		require.NoError(t, instance.Stop(ctx))
		assert.Equal(t, 1, actor.stopped)
		assert.Equal(t, []string{"c1"}, actor.disconnected)
		assert.False(t, instance.IsRunning())

		reason, ok := driver.reason("c1")
		require.True(t, ok)
		assert.Equal(t, ReasonActorStopped, reason)

		_, err = instance.CreateConnection(ctx, "c2", "t2", driver)
		require.ErrorIs(t, err, gerrors.ErrActorStopped)
		require.ErrorIs(t, instance.Start(ctx), gerrors.ErrActorStopped)
	})
	t.Run("With init frame first", func(t *testing.T) {
		instance := newStartedInstance(t, new(echoActor))
		driver := newRecordingDriver()
		_, err := instance.CreateConnection(ctx, "c1", "t1", driver)
		require.NoError(t, err)
		require.NoError(t, instance.ProcessMessage(ctx, "c1", "t1", []byte("hello")))

		sent := driver.sent()
		require.Len(t, sent, 2)
		frame, err := DecodeInitFrame(sent[0].payload)
		require.NoError(t, err)
		assert.Equal(t, "c1", frame.ConnectionID)
		assert.Equal(t, []byte("hello"), sent[1].payload)
	})
	t.Run("With idempotent create", func(t *testing.T) {
		actor := new(echoActor)
		instance := newStartedInstance(t, actor)
		driver := newRecordingDriver()
		first, err := instance.CreateConnection(ctx, "c1", "t1", driver)
		require.NoError(t, err)
		second, err := instance.CreateConnection(ctx, "c1", "t1", driver)
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Len(t, driver.sent(), 1)
		assert.Equal(t, []string{"c1"}, actor.connected)

		_, err = instance.CreateConnection(ctx, "c1", "forged", driver)
		require.ErrorIs(t, err, gerrors.ErrConnTokenMismatch)
		assert.True(t, gerrors.IsProtocolError(err))
	})
	t.Run("With token mismatch", func(t *testing.T) {
		instance := newStartedInstance(t, new(echoActor))
		driver := newRecordingDriver()
		_, err := instance.CreateConnection(ctx, "c1", "t1", driver)
		require.NoError(t, err)

		err = instance.ProcessMessage(ctx, "c1", "t2", []byte("hello"))
		require.ErrorIs(t, err, gerrors.ErrConnTokenMismatch)
		assert.Len(t, driver.sent(), 1)

		err = instance.ProcessMessage(ctx, "unknown", "t1", []byte("hello"))
		require.ErrorIs(t, err, gerrors.ErrConnectionNotFound)
	})
	t.Run("With connection rejected", func(t *testing.T) {
		instance := newStartedInstance(t, &echoActor{rejectOnConn: true})
		driver := newRecordingDriver()
		_, err := instance.CreateConnection(ctx, "c1", "t1", driver)
		require.Error(t, err)
		_, ok := instance.Connection("c1")
		assert.False(t, ok)
		reason, ok := driver.reason("c1")
		require.True(t, ok)
		assert.Contains(t, reason, "connection refused")
	})
	t.Run("With params rejected", func(t *testing.T) {
		instance := newStartedInstance(t, &echoActor{rejectParams: true})
		require.Error(t, instance.PrepareConnection(ctx, []byte("reject")))
		require.NoError(t, instance.PrepareConnection(ctx, []byte("ok")))
	})
	t.Run("With init frame failure", func(t *testing.T) {
		instance := newStartedInstance(t, new(echoActor))
		driver := newRecordingDriver()
		driver.sendErr = assert.AnError
		_, err := instance.CreateConnection(ctx, "c1", "t1", driver)
		require.ErrorIs(t, err, assert.AnError)
		assert.Empty(t, instance.Connections())
	})
	t.Run("With remove connection", func(t *testing.T) {
		actor := new(echoActor)
		instance := newStartedInstance(t, actor)
		_, err := instance.CreateConnection(ctx, "c1", "t1", newRecordingDriver())
		require.NoError(t, err)

		require.NoError(t, instance.RemoveConnection(ctx, "c1"))
		assert.Equal(t, []string{"c1"}, actor.disconnected)
		require.ErrorIs(t, instance.RemoveConnection(ctx, "c1"), gerrors.ErrConnectionNotFound)
	})
	t.Run("With broadcast", func(t *testing.T) {
		instance := newStartedInstance(t, new(echoActor))
		d1, d2 := newRecordingDriver(), newRecordingDriver()
		_, err := instance.CreateConnection(ctx, "c1", "t1", d1)
		require.NoError(t, err)
		_, err = instance.CreateConnection(ctx, "c2", "t2", d2)
		require.NoError(t, err)

		require.NoError(t, instance.ProcessMessage(ctx, "c1", "t1", []byte("broadcast")))
		assert.Equal(t, []byte("all"), d1.sent()[1].payload)
		assert.Equal(t, []byte("all"), d2.sent()[1].payload)
	})
	t.Run("With actor closing a connection", func(t *testing.T) {
		actor := new(echoActor)
		instance := newStartedInstance(t, actor)
		driver := newRecordingDriver()
		conn, err := instance.CreateConnection(ctx, "c1", "t1", driver)
		require.NoError(t, err)

		require.NoError(t, instance.ProcessMessage(ctx, "c1", "t1", []byte("close")))
		assert.True(t, conn.IsClosed())
		assert.Empty(t, actor.disconnected)
		reason, ok := driver.reason("c1")
		require.True(t, ok)
		assert.Equal(t, "bye", reason)
		require.ErrorIs(t, conn.Send(ctx, []byte("late")), gerrors.ErrConnectionClosed)
	})
	t.Run("With panic in receive", func(t *testing.T) {
		instance := newStartedInstance(t, &echoActor{panicOnRecv: true})
		_, err := instance.CreateConnection(ctx, "c1", "t1", newRecordingDriver())
		require.NoError(t, err)

		err = instance.ProcessMessage(ctx, "c1", "t1", []byte("x"))
		var perr *gerrors.PanicError
		require.ErrorAs(t, err, &perr)
		assert.True(t, instance.IsRunning())
	})
	t.Run("With calls before start", func(t *testing.T) {
		instance := NewInstance("room-1", "room", nil, new(echoActor), log.DiscardLogger)
		_, err := instance.CreateConnection(ctx, "c1", "t1", newRecordingDriver())
		require.Error(t, err)
		require.NoError(t, instance.Stop(ctx))
	})
}

func TestConnectionMatchToken(t *testing.T) {
	conn := newConnection("c1", "secret", newRecordingDriver(), nil)
	assert.True(t, conn.MatchToken("secret"))
	assert.False(t, conn.MatchToken("secreT"))
	assert.False(t, conn.MatchToken(""))
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("room", func() Actor { return new(echoActor) }))
	require.Error(t, registry.Register("room", func() Actor { return new(echoActor) }))
	require.ErrorIs(t, registry.Register(" ", func() Actor { return new(echoActor) }), gerrors.ErrInvalidActorName)
	require.Error(t, registry.Register("nil", nil))

	factory, err := registry.Get("room")
	require.NoError(t, err)
	assert.NotNil(t, factory())

	_, err = registry.Get("chat")
	require.ErrorIs(t, err, gerrors.ErrActorNotRegistered)
	assert.Equal(t, []string{"room"}, registry.Names())
}
