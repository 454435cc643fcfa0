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

// Package drivertest holds the behavior every driver implementation must
// exhibit. Driver packages run these checks against a live backend in their
// own tests.
package drivertest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/coordinate/driver"
	gerrors "github.com/tochemey/coordinate/errors"
)

// ShortLease is the lease duration used to observe expiry
const ShortLease = 500 * time.Millisecond

// LongLease is the lease duration used when expiry must not happen during a check
const LongLease = 30 * time.Second

// Store is the persistent side under test
type Store interface {
	driver.LeaseStore
	driver.ActorStore
}

// RunLeaseStore exercises the lease and actor record rules against store
func RunLeaseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	newActor := func(t *testing.T) driver.ActorRecord {
		t.Helper()
		record := driver.ActorRecord{ID: uuid.NewString(), Name: "room", Key: []string{"lobby", "1"}}
		require.NoError(t, store.CreateActor(ctx, record))
		return record
	}

	t.Run("With idempotent actor creation", func(t *testing.T) {
		record := newActor(t)
		require.NoError(t, store.CreateActor(ctx, record))

		other := record
		other.Name = "chat"
		err := store.CreateActor(ctx, other)
		require.ErrorIs(t, err, gerrors.ErrActorAlreadyExists)
	})
	t.Run("With unknown actor", func(t *testing.T) {
		actorID := uuid.NewString()
		leader, err := store.GetActorLeader(ctx, actorID)
		require.NoError(t, err)
		assert.False(t, leader.Exists)
		assert.Empty(t, leader.LeaderNodeID)

		out, err := store.StartActorAndAcquireLease(ctx, actorID, "node-a", LongLease)
		require.NoError(t, err)
		assert.Nil(t, out.Actor)
		assert.Empty(t, out.LeaderNodeID)
	})
	t.Run("With first starter becoming leader", func(t *testing.T) {
		record := newActor(t)

		leader, err := store.GetActorLeader(ctx, record.ID)
		require.NoError(t, err)
		assert.True(t, leader.Exists)
		assert.Empty(t, leader.LeaderNodeID)

		out, err := store.StartActorAndAcquireLease(ctx, record.ID, "node-a", LongLease)
		require.NoError(t, err)
		require.NotNil(t, out.Actor)
		assert.True(t, record.Equal(*out.Actor))
		assert.Equal(t, "node-a", out.LeaderNodeID)

		out, err = store.StartActorAndAcquireLease(ctx, record.ID, "node-b", LongLease)
		require.NoError(t, err)
		require.NotNil(t, out.Actor)
		assert.Equal(t, "node-a", out.LeaderNodeID)

		leader, err = store.GetActorLeader(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "node-a", leader.LeaderNodeID)
	})
	t.Run("With extend only by the leader", func(t *testing.T) {
		record := newActor(t)
		_, err := store.StartActorAndAcquireLease(ctx, record.ID, "node-a", LongLease)
		require.NoError(t, err)

		ext, err := store.ExtendLease(ctx, record.ID, "node-a", LongLease)
		require.NoError(t, err)
		assert.True(t, ext.LeaseValid)

		ext, err = store.ExtendLease(ctx, record.ID, "node-b", LongLease)
		require.NoError(t, err)
		assert.False(t, ext.LeaseValid)
	})
	t.Run("With attempt against a valid lease", func(t *testing.T) {
		record := newActor(t)
		_, err := store.StartActorAndAcquireLease(ctx, record.ID, "node-a", LongLease)
		require.NoError(t, err)

		attempt, err := store.AttemptAcquireLease(ctx, record.ID, "node-b", LongLease)
		require.NoError(t, err)
		assert.Equal(t, "node-a", attempt.NewLeaderNodeID)
	})
	t.Run("With release only by the leader", func(t *testing.T) {
		record := newActor(t)
		_, err := store.StartActorAndAcquireLease(ctx, record.ID, "node-a", LongLease)
		require.NoError(t, err)

		require.NoError(t, store.ReleaseLease(ctx, record.ID, "node-b"))
		leader, err := store.GetActorLeader(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, "node-a", leader.LeaderNodeID)

		require.NoError(t, store.ReleaseLease(ctx, record.ID, "node-a"))
		leader, err = store.GetActorLeader(ctx, record.ID)
		require.NoError(t, err)
		assert.True(t, leader.Exists)
		assert.Empty(t, leader.LeaderNodeID)

		attempt, err := store.AttemptAcquireLease(ctx, record.ID, "node-b", LongLease)
		require.NoError(t, err)
		assert.Equal(t, "node-b", attempt.NewLeaderNodeID)

		ext, err := store.ExtendLease(ctx, record.ID, "node-a", LongLease)
		require.NoError(t, err)
		assert.False(t, ext.LeaseValid)
	})
	t.Run("With expired lease", func(t *testing.T) {
		record := newActor(t)
		out, err := store.StartActorAndAcquireLease(ctx, record.ID, "node-a", ShortLease)
		require.NoError(t, err)
		require.Equal(t, "node-a", out.LeaderNodeID)

		require.Eventually(t, func() bool {
			leader, err := store.GetActorLeader(ctx, record.ID)
			return err == nil && leader.LeaderNodeID == ""
		}, 5*ShortLease, ShortLease/10)

		attempt, err := store.AttemptAcquireLease(ctx, record.ID, "node-b", LongLease)
		require.NoError(t, err)
		assert.Equal(t, "node-b", attempt.NewLeaderNodeID)

		ext, err := store.ExtendLease(ctx, record.ID, "node-a", LongLease)
		require.NoError(t, err)
		assert.False(t, ext.LeaseValid)

		out, err = store.StartActorAndAcquireLease(ctx, record.ID, "node-c", LongLease)
		require.NoError(t, err)
		assert.Equal(t, "node-b", out.LeaderNodeID)
	})
}

// RunPubSub exercises delivery between two nodes.
// publisher and subscriber may be the same instance.
func RunPubSub(t *testing.T, publisher, subscriber driver.PubSub) {
	t.Helper()
	ctx := context.Background()

	t.Run("With delivery to the subscribed node", func(t *testing.T) {
		nodeID := uuid.NewString()
		sub, err := subscriber.Subscribe(ctx, nodeID)
		require.NoError(t, err)
		defer func() { _ = sub.Close() }()

		// publishing to a node nobody listens on is not an error
		require.NoError(t, publisher.Publish(ctx, uuid.NewString(), []byte("lost")))

		require.Eventually(t, func() bool {
			if err := publisher.Publish(ctx, nodeID, []byte("hello")); err != nil {
				return false
			}
			select {
			case payload := <-sub.Messages():
				return string(payload) == "hello"
			case <-time.After(100 * time.Millisecond):
				return false
			}
		}, 5*time.Second, 10*time.Millisecond)
	})
	t.Run("With messages channel closed on Close", func(t *testing.T) {
		sub, err := subscriber.Subscribe(ctx, uuid.NewString())
		require.NoError(t, err)
		require.NoError(t, sub.Close())

		require.Eventually(t, func() bool {
			select {
			case _, ok := <-sub.Messages():
				return !ok
			default:
				return false
			}
		}, 5*time.Second, 10*time.Millisecond)
	})
}
