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

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/coordinate/driver"
	"github.com/tochemey/coordinate/driver/drivertest"
	gerrors "github.com/tochemey/coordinate/errors"
)

func TestDriverConformance(t *testing.T) {
	hub := NewHub()
	drivertest.RunLeaseStore(t, hub.Driver())
	drivertest.RunPubSub(t, hub.Driver(), hub.Driver())
}

func TestHub(t *testing.T) {
	ctx := context.Background()

	t.Run("With manual clock", func(t *testing.T) {
		clock := NewManualClock(time.Unix(0, 0))
		hub := NewHub(WithClock(clock.Now))
		d := hub.Driver()
		require.NoError(t, d.CreateActor(ctx, driver.ActorRecord{ID: "a1", Name: "room"}))

		out, err := d.StartActorAndAcquireLease(ctx, "a1", "node-a", time.Second)
		require.NoError(t, err)
		require.Equal(t, "node-a", out.LeaderNodeID)

		clock.Advance(999 * time.Millisecond)
		assert.Equal(t, "node-a", hub.Leader("a1"))

		clock.Advance(time.Millisecond)
		assert.Empty(t, hub.Leader("a1"))

		attempt, err := d.AttemptAcquireLease(ctx, "a1", "node-b", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "node-b", attempt.NewLeaderNodeID)
		assert.Len(t, hub.Calls(OpAttemptAcquireLease, "a1"), 1)
	})
	t.Run("With failing extend", func(t *testing.T) {
		hub := NewHub()
		d := hub.Driver()
		require.NoError(t, d.CreateActor(ctx, driver.ActorRecord{ID: "a1", Name: "room"}))
		_, err := d.StartActorAndAcquireLease(ctx, "a1", "node-a", time.Minute)
		require.NoError(t, err)

		hub.FailExtend("node-a", true)
		ext, err := d.ExtendLease(ctx, "a1", "node-a", time.Minute)
		require.NoError(t, err)
		assert.False(t, ext.LeaseValid)
		assert.Equal(t, "node-a", hub.Leader("a1"))

		hub.FailExtend("node-a", false)
		ext, err = d.ExtendLease(ctx, "a1", "node-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ext.LeaseValid)
	})
	t.Run("With lease store error", func(t *testing.T) {
		hub := NewHub()
		d := hub.Driver()
		require.NoError(t, d.CreateActor(ctx, driver.ActorRecord{ID: "a1", Name: "room"}))
		_, err := d.StartActorAndAcquireLease(ctx, "a1", "node-a", time.Minute)
		require.NoError(t, err)

		unreachable := errors.New("store unreachable")
		hub.SetLeaseError("node-a", unreachable)
		_, err = d.ExtendLease(ctx, "a1", "node-a", time.Minute)
		require.ErrorIs(t, err, unreachable)
		_, err = d.AttemptAcquireLease(ctx, "a1", "node-a", time.Minute)
		require.ErrorIs(t, err, unreachable)

		// other nodes still reach the store
		attempt, err := d.AttemptAcquireLease(ctx, "a1", "node-b", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "node-a", attempt.NewLeaderNodeID)

		hub.SetLeaseError("node-a", nil)
		ext, err := d.ExtendLease(ctx, "a1", "node-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, ext.LeaseValid)
	})
	t.Run("With publish filter", func(t *testing.T) {
		hub := NewHub()
		d := hub.Driver()
		sub, err := d.Subscribe(ctx, "node-a")
		require.NoError(t, err)

		hub.SetPublishFilter(func(string, []byte) bool { return false })
		require.NoError(t, d.Publish(ctx, "node-a", []byte("dropped")))
		hub.SetPublishFilter(nil)
		require.NoError(t, d.Publish(ctx, "node-a", []byte("kept")))

		assert.Equal(t, []byte("kept"), <-sub.Messages())
		require.NoError(t, d.Close())
	})
	t.Run("With duplicate subscription", func(t *testing.T) {
		hub := NewHub()
		d := hub.Driver()
		_, err := d.Subscribe(ctx, "node-a")
		require.NoError(t, err)
		_, err = hub.Driver().Subscribe(ctx, "node-a")
		require.Error(t, err)
		require.NoError(t, d.Close())

		// the node id is free again once the owner closed
		sub, err := hub.Driver().Subscribe(ctx, "node-a")
		require.NoError(t, err)
		require.NoError(t, sub.Close())
	})
	t.Run("With full subscription", func(t *testing.T) {
		hub := NewHub(WithBufferSize(1))
		d := hub.Driver()
		sub, err := d.Subscribe(ctx, "node-a")
		require.NoError(t, err)
		require.NoError(t, d.Publish(ctx, "node-a", []byte("1")))
		require.NoError(t, d.Publish(ctx, "node-a", []byte("2")))
		assert.Equal(t, []byte("1"), <-sub.Messages())
		assert.Empty(t, sub.Messages())
		require.NoError(t, sub.Close())
	})
	t.Run("With closed driver", func(t *testing.T) {
		hub := NewHub()
		d := hub.Driver()
		require.NoError(t, d.Close())
		require.NoError(t, d.Close())

		_, err := d.GetActorLeader(ctx, "a1")
		require.ErrorIs(t, err, gerrors.ErrDriverClosed)
		err = d.Publish(ctx, "node-a", nil)
		require.ErrorIs(t, err, gerrors.ErrDriverClosed)
	})
	t.Run("With canceled context", func(t *testing.T) {
		hub := NewHub()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := hub.Driver().GetActorLeader(cctx, "a1")
		require.ErrorIs(t, err, context.Canceled)
	})
}
